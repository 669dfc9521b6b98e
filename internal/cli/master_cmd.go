package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rvcleanup/rv-cleanup/internal/browser"
	"github.com/rvcleanup/rv-cleanup/internal/export"
	"github.com/rvcleanup/rv-cleanup/internal/models"
	"github.com/rvcleanup/rv-cleanup/internal/progress"
)

func newMasterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Browse and export the master email registry",
	}
	cmd.AddCommand(newMasterListCmd())
	cmd.AddCommand(newMasterExportCmd())
	return cmd
}

type filterFlags struct {
	search  string
	brand   string
	segment string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "Substring match on email")
	cmd.Flags().StringVarP(&f.brand, "brand", "b", "", "Only addresses of a brand (TR, MFM, NYSS)")
	cmd.Flags().StringVar(&f.segment, "segment", "", "Only addresses in a segment (e.g. Champions)")
}

// apply stages the flag values as pending filters.
func (f *filterFlags) apply(b *browser.MasterBrowser) error {
	for field, value := range map[string]string{
		browser.FilterSearch:  f.search,
		browser.FilterBrand:   f.brand,
		browser.FilterSegment: f.segment,
	} {
		if err := b.SetFilter(field, value); err != nil {
			return err
		}
	}
	return nil
}

func (f *filterFlags) filters() (models.MasterFilters, error) {
	brand, err := models.ParseBrand(f.brand)
	if err != nil {
		return models.MasterFilters{}, err
	}
	seg, err := models.ParseSegment(f.segment)
	if err != nil {
		return models.MasterFilters{}, err
	}
	return models.MasterFilters{Search: strings.TrimSpace(f.search), Brand: brand, Segment: seg}, nil
}

func newMasterListCmd() *cobra.Command {
	var (
		ff          filterFlags
		limit       int
		page        int
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of the master registry",
		Long: `List the deduplicated master registry, newest first.

Interactive mode keeps the browser open:
  n           next page
  p           previous page
  r           refresh
  f key=value stage a filter (search, brand, segment; empty value clears)
  c           clear staged filters
  a           apply staged filters
  q           quit

Examples:
  rv-cleanup master list --brand TR --segment Champions
  rv-cleanup master list --search gmail.com --page 3
  rv-cleanup master list -i`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = cfg.PageLimit
			}

			b := browser.NewMaster(client, browser.Options{Limit: limit, Logger: GetLogger()})
			if err := ff.apply(b); err != nil {
				return err
			}

			ctx := GetContext()
			b.ApplyFilters(ctx)
			b.Wait()
			for i := 1; i < page; i++ {
				if !b.NextPage(ctx) {
					break
				}
				b.Wait()
			}

			out := cmd.OutOrStdout()
			if !interactive {
				s := b.Snapshot()
				renderMaster(out, s)
				if s.Error != nil {
					return errLoadMaster
				}
				return nil
			}
			return runInteractive(ctx, cmd.InOrStdin(), out, masterView{b})
		},
	}

	ff.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Rows per page (default from config, max 1000)")
	cmd.Flags().IntVar(&page, "page", 1, "Page to show first")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Keep the browser open and page with commands")
	return cmd
}

func newMasterExportCmd() *cobra.Command {
	var (
		ff     filterFlags
		out    string
		format string
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the filtered master registry",
		Long: `Export every registry row matching the filters.

Destinations:
  path/to/file.csv            local file
  s3://bucket/key.xlsx        S3 object ([export] s3_region, s3_profile)
  azblob://container/blob     Azure blob ([export] azure_service_url with SAS)

The format is taken from --format or the destination extension.

Examples:
  rv-cleanup master export --out tr.csv --brand TR
  rv-cleanup master export --out s3://crm-exports/master.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			filters, err := ff.filters()
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format, out)
			if err != nil {
				return err
			}

			ctx := GetContext()
			sink, err := export.OpenSink(ctx, out, cfg, GetLogger())
			if err != nil {
				return err
			}

			var reporter progress.Reporter = progress.NewCLIProgress(os.Stderr, progress.UnitRows)
			if quiet {
				reporter = progress.NewNoOpProgress()
			}

			res, err := export.Run(ctx, client, sink, export.Options{
				Filters:  filters,
				Format:   f,
				Reporter: reporter,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d rows (%s, %d bytes) to %s\n", res.Rows, res.Format, res.Bytes, res.Location)
			return nil
		},
	}

	ff.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination path or URL")
	cmd.Flags().StringVar(&format, "format", "", "csv or xlsx (default from extension)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide progress bars")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func renderMaster(w io.Writer, s browser.State[models.MasterFilters, models.MasterRecord]) {
	if s.Error != nil {
		printErrorInfo(w, s.Error)
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "EMAIL\tCARD NO\tNAME\tPHONE\tTR SEGMENT\tMFM SEGMENT\tNYSS SEGMENT\tBRANDS\tUPDATED")
	for _, r := range s.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Email, dash(r.CardNumber), dash(r.Name), dash(r.Phone),
			dash(r.SegmentTR), dash(r.SegmentMFM), dash(r.SegmentNYSS),
			dash(strings.Join(r.BrandCodes(), ",")), r.LastUpdated)
	}
	_ = tw.Flush()
	printPageFooter(w, s.AppliedOffset, len(s.Rows), s.Total)
	if !s.Active.IsZero() {
		fmt.Fprintf(w, "Filters: %s\n", describeFilters(s.Active))
	}
}

func printPageFooter(w io.Writer, offset, rows, total int) {
	if total == 0 {
		fmt.Fprintln(w, "\nNo records.")
		return
	}
	fmt.Fprintf(w, "\nShowing %d - %d of %d\n", offset+1, offset+rows, total)
}

func describeFilters(f models.MasterFilters) string {
	var parts []string
	if f.Search != "" {
		parts = append(parts, "search="+f.Search)
	}
	if f.Brand != "" {
		parts = append(parts, "brand="+f.Brand.Code())
	}
	if f.Segment != "" {
		parts = append(parts, "segment="+string(f.Segment))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// masterView adapts MasterBrowser to the interactive loop.
type masterView struct {
	b *browser.MasterBrowser
}

func (v masterView) next(ctx context.Context) bool  { return v.b.NextPage(ctx) }
func (v masterView) prev(ctx context.Context) bool  { return v.b.PrevPage(ctx) }
func (v masterView) refresh(ctx context.Context)    { v.b.Refresh(ctx) }
func (v masterView) apply(ctx context.Context)      { v.b.ApplyFilters(ctx) }
func (v masterView) wait()                          { v.b.Wait() }
func (v masterView) setFilter(k, val string) error  { return v.b.SetFilter(k, val) }
func (v masterView) clear()                         { v.b.ClearFilters() }
func (v masterView) render(w io.Writer)             { renderMaster(w, v.b.Snapshot()) }
func (v masterView) pending() string                { return describeFilters(v.b.Snapshot().Pending) }
