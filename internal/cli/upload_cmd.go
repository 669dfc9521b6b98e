package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rvcleanup/rv-cleanup/internal/config"
	"github.com/rvcleanup/rv-cleanup/internal/constants"
	"github.com/rvcleanup/rv-cleanup/internal/events"
	"github.com/rvcleanup/rv-cleanup/internal/history"
	"github.com/rvcleanup/rv-cleanup/internal/models"
	"github.com/rvcleanup/rv-cleanup/internal/notify"
	"github.com/rvcleanup/rv-cleanup/internal/progress"
	"github.com/rvcleanup/rv-cleanup/internal/upload"
)

func newUploadCmd() *cobra.Command {
	var (
		brandName string
		filePath  string
		estimate  int
		notifyOn  bool
		noHistory bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a brand guest list to the merge service",
		Long: `Upload one CSV file for a brand. The service validates addresses,
stores the brand list and merges it into the master registry.

The service reports no byte progress; the bar counts down a fixed
estimate (default 8s, [upload] estimate_seconds) and then waits.

Brands: "Tony Romas" (TR), "The Manhattan Fish Market" (MFM),
"New York Steak Shack" (NYSS). Codes and display names are accepted.

Examples:
  rv-cleanup upload --brand TR --file guests.csv
  rv-cleanup upload --brand "NY Steak Shack" --file nyss.csv --notify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			log := GetLogger()

			brand, err := models.ParseBrand(brandName)
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

			if estimate <= 0 {
				estimate = cfg.EstimateSeconds
			}

			bus := events.NewEventBus(constants.EventBusDefaultBuffer)
			defer bus.Close()
			ticks := bus.Subscribe(events.EventUploadProgress)

			orch := upload.New(client, upload.Options{
				EstimateSeconds: estimate,
				TickInterval:    cfg.TickInterval(),
				Bus:             bus,
				Logger:          log,
			})
			if err := orch.SelectBrand(brand); err != nil {
				return err
			}
			if err := orch.SelectFile(file); err != nil {
				return err
			}

			done, err := orch.Submit(GetContext())
			if err != nil {
				return err
			}

			fileName := file.Name()
			bar := progress.NewStderrUploadBar(fmt.Sprintf("%s: %s", brand.Label(), fileName), orch.EstimateSeconds())
			waitForUpload(done, ticks, bar)

			s := orch.Snapshot()
			out := cmd.OutOrStdout()

			ncfg := notify.FromConfig(cfg.Notifications)
			if cmd.Flags().Changed("notify") {
				ncfg.Enabled = notifyOn
			}
			notifier := notify.NewNotifier(ncfg, log)

			if !noHistory {
				recordHistory(s, fileName)
			}

			if s.Status != upload.StatusComplete {
				bar.Fail()
				printErrorInfo(out, s.Error)
				notifier.UploadFailed(brand, fileName, s.Error)
				return errUploadFailed
			}

			bar.Complete()
			printUploadResult(out, s.Result)
			notifier.UploadComplete(brand, fileName, s.Result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&brandName, "brand", "b", "", "Brand name or code (TR, MFM, NYSS)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "CSV file to upload")
	cmd.Flags().IntVar(&estimate, "estimate", 0, "Estimated upload duration in seconds (default from config)")
	cmd.Flags().BoolVar(&notifyOn, "notify", false, "Send a desktop notification when the upload finishes")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this upload in the history file")

	_ = cmd.RegisterFlagCompletionFunc("brand", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		codes := make([]string, 0, len(models.Brands()))
		for _, b := range models.Brands() {
			codes = append(codes, b.Code())
		}
		return codes, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// waitForUpload forwards estimate ticks to the bar until done closes.
func waitForUpload(done <-chan struct{}, ticks <-chan events.Event, bar *progress.UploadBar) {
	for {
		select {
		case ev := <-ticks:
			if p, ok := ev.(*events.UploadProgressEvent); ok {
				bar.Set(p.Percent, p.SecondsRemaining)
			}
		case <-done:
			return
		}
	}
}

func recordHistory(s upload.Session, fileName string) {
	path, err := config.DefaultHistoryPath()
	if err != nil {
		GetLogger().Debug().Err(err).Msg("No history location")
		return
	}
	store, err := history.NewStore(path)
	if err == nil {
		err = store.Append(history.FromSession(s, fileName, time.Now()))
	}
	if err != nil {
		GetLogger().Warn().Err(err).Msg("Failed to record upload history")
	}
}

func printUploadResult(w io.Writer, res *models.UploadResult) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "\nUpload summary for %s\n", res.Brand)
	tw := newTable(w)
	fmt.Fprintf(tw, "  Rows uploaded:\t%d\n", res.RowsUploaded)
	fmt.Fprintf(tw, "  Invalid removed:\t%d\n", res.InvalidCount)
	fmt.Fprintf(tw, "  Rows after removal:\t%d\n", res.RowsAfterInvalidRemoval)
	fmt.Fprintf(tw, "  Inserted to brand:\t%d\n", res.InsertedToBrand)
	if res.HasMerge() {
		updated, inserted := res.MergeCounts()
		fmt.Fprintf(tw, "  Master updated:\t%d\n", updated)
		fmt.Fprintf(tw, "  Master inserted:\t%d\n", inserted)
	} else {
		fmt.Fprintf(tw, "  Master merge:\tnot reported\n")
	}
	_ = tw.Flush()

	if len(res.InvalidSample) > 0 {
		fmt.Fprintf(w, "\nRejected addresses (first %d):\n", len(res.InvalidSample))
		for _, e := range res.InvalidSample {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}
