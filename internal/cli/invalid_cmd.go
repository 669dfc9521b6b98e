package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rvcleanup/rv-cleanup/internal/browser"
	"github.com/rvcleanup/rv-cleanup/internal/models"
)

func newInvalidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalid",
		Short: "Browse and extend the invalid email list",
	}
	cmd.AddCommand(newInvalidListCmd())
	cmd.AddCommand(newInvalidUploadCmd())
	return cmd
}

func newInvalidListCmd() *cobra.Command {
	var (
		limit       int
		page        int
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List addresses rejected by validation",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = cfg.PageLimit
			}

			b := browser.NewInvalid(client, browser.Options{Limit: limit, Logger: GetLogger()})
			ctx := GetContext()
			b.Load(ctx)
			b.Wait()
			for i := 1; i < page; i++ {
				if !b.NextPage(ctx) {
					break
				}
				b.Wait()
			}

			out := cmd.OutOrStdout()
			if interactive {
				return runInteractive(ctx, cmd.InOrStdin(), out, invalidView{b})
			}
			s := b.Snapshot()
			renderInvalid(out, s)
			if s.Error != nil {
				return errLoadInvalid
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Rows per page (default from config, max 1000)")
	cmd.Flags().IntVar(&page, "page", 1, "Page to show first")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Keep the browser open and page with commands")
	return cmd
}

func newInvalidUploadCmd() *cobra.Command {
	var (
		brandName string
		filePath  string
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Add a CSV of known-bad addresses to the invalid list",
		Long: `Upload a CSV of addresses the validation service should reject.
Without --brand the entries are recorded under "Unknown".

Example:
  rv-cleanup invalid upload --file bounced.csv --brand TR`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			var file models.FileHandle
			if filePath != "" {
				lf, err := models.NewLocalFile(filePath)
				if err != nil {
					return err
				}
				file = lf
			}

			b := browser.NewInvalid(client, browser.Options{Limit: cfg.PageLimit, Logger: GetLogger()})
			ack, err := b.Upload(GetContext(), brandName, file)
			out := cmd.OutOrStdout()
			if err != nil {
				if st := b.UploadStatus(); st.Error != nil {
					printErrorInfo(out, st.Error)
					return errInvalidUpload
				}
				return err
			}

			fmt.Fprintf(out, "✓ Added %d addresses to the invalid list (brand %s)\n", ack.Added, dash(ack.Brand))
			b.Wait()
			renderInvalid(out, b.Snapshot())
			return nil
		},
	}

	cmd.Flags().StringVarP(&brandName, "brand", "b", "", "Brand name or code (default Unknown)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "CSV file with an email column")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func renderInvalid(w io.Writer, s browser.State[struct{}, models.InvalidRecord]) {
	if s.Error != nil {
		printErrorInfo(w, s.Error)
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "EMAIL\tBRAND")
	for _, r := range s.Rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.Email, dash(r.Brand))
	}
	_ = tw.Flush()
	printPageFooter(w, s.AppliedOffset, len(s.Rows), s.Total)
}

// invalidView adapts InvalidBrowser to the interactive loop. The list has
// no filters.
type invalidView struct {
	b *browser.InvalidBrowser
}

func (v invalidView) next(ctx context.Context) bool { return v.b.NextPage(ctx) }
func (v invalidView) prev(ctx context.Context) bool { return v.b.PrevPage(ctx) }
func (v invalidView) refresh(ctx context.Context)   { v.b.Refresh(ctx) }
func (v invalidView) apply(ctx context.Context)     { v.b.Refresh(ctx) }
func (v invalidView) wait()                         { v.b.Wait() }
func (v invalidView) clear()                        {}
func (v invalidView) render(w io.Writer)            { renderInvalid(w, v.b.Snapshot()) }
func (v invalidView) pending() string               { return "none" }

func (v invalidView) setFilter(field, _ string) error {
	return fmt.Errorf("%w: the invalid list has no filters (%s)", browser.ErrUnknownFilter, field)
}
