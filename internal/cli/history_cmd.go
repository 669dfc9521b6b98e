package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rvcleanup/rv-cleanup/internal/config"
	"github.com/rvcleanup/rv-cleanup/internal/history"
	"github.com/rvcleanup/rv-cleanup/internal/upload"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent brand uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultHistoryPath()
			if err != nil {
				return err
			}
			store, err := history.NewStore(path)
			if err != nil {
				return err
			}
			entries, err := store.Recent(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No uploads recorded yet.")
				return nil
			}

			tw := newTable(out)
			fmt.Fprintln(tw, "TIME\tBRAND\tFILE\tSTATUS\tROWS\tINVALID\tINSERTED\tMASTER UPD/NEW\tERROR")
			for _, e := range entries {
				merge := "-"
				if e.Status == upload.StatusComplete {
					merge = fmt.Sprintf("%d/%d", e.MergeUpdated, e.MergeInserted)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					e.Time.Local().Format("2006-01-02 15:04:05"),
					e.Brand.Label(), e.File, e.Status,
					e.RowsUploaded, e.InvalidCount, e.InsertedToBrand,
					merge, dash(e.Error))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}
