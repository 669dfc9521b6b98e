package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rvcleanup/rv-cleanup/internal/stubserver"
)

func newStubServerCmd() *cobra.Command {
	var (
		addr        string
		uploadDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stub-server",
		Short: "Run an in-memory merge service for demos and offline testing",
		Long: `Serve the merge service's REST contract from memory.

Point the client at it with --api-url or [service] base_url:
  rv-cleanup stub-server --addr 127.0.0.1:8000 --upload-delay 5s
  rv-cleanup --api-url http://127.0.0.1:8000 upload -b TR -f guests.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := stubserver.New(stubserver.Options{
				UploadDelay: uploadDelay,
				Logger:      GetLogger(),
			})
			return srv.Run(GetContext(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	cmd.Flags().DurationVar(&uploadDelay, "upload-delay", 0, "Hold each brand upload this long before answering")
	return cmd
}
