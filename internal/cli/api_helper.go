package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rvcleanup/rv-cleanup/internal/api"
	"github.com/rvcleanup/rv-cleanup/internal/config"
	"github.com/rvcleanup/rv-cleanup/internal/logging"
)

// Command failures whose details were already printed.
var (
	errUploadFailed   = errors.New("upload failed")
	errInvalidUpload  = errors.New("invalid list upload failed")
	errLoadMaster     = errors.New("failed to load master registry")
	errLoadInvalid    = errors.New("failed to load invalid emails")
	errConnectionTest = errors.New("connection test failed")
)

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file, applies --api-url and validates.
// When the file names a log file or level, the global logger is rebuilt
// to honor them.
func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if apiBaseURL != "" {
		cfg.BaseURL = apiBaseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.LogFile != "" {
		logger = logging.NewLogger(logging.Options{File: cfg.LogFile})
	}
	if !verbose && !debug && cfg.LogLevel != "" {
		logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	}
	return cfg, nil
}

// getAPIClient loads configuration and creates a client.
func getAPIClient() (*api.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, cfg, nil
}

// printErrorInfo renders a structured error the way the views show it.
func printErrorInfo(w io.Writer, info *api.ErrorInfo) {
	if info == nil {
		return
	}
	fmt.Fprintf(w, "✗ %s error", info.Kind)
	if info.StatusCode != 0 {
		fmt.Fprintf(w, " (HTTP %d)", info.StatusCode)
	}
	fmt.Fprintf(w, ": %s\n", info.Message)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
