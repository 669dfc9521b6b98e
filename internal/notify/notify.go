// Package notify sends desktop notifications when an upload finishes.
// It uses github.com/gen2brain/beeep for cross-platform support.
package notify

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/rvcleanup/rv-cleanup/internal/api"
	"github.com/rvcleanup/rv-cleanup/internal/config"
	"github.com/rvcleanup/rv-cleanup/internal/logging"
	"github.com/rvcleanup/rv-cleanup/internal/models"
)

const appTitle = "RV Cleanup"

// Config holds notification configuration.
type Config struct {
	Enabled bool

	// ShowUploadComplete shows notifications for successful brand uploads.
	ShowUploadComplete bool

	// ShowUploadFailed shows notifications for failed brand uploads.
	ShowUploadFailed bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:            true,
		ShowUploadComplete: true,
		ShowUploadFailed:   true,
	}
}

// FromConfig maps the [notifications] section.
func FromConfig(nc config.NotificationConfig) *Config {
	return &Config{
		Enabled:            nc.Enabled,
		ShowUploadComplete: nc.UploadComplete,
		ShowUploadFailed:   nc.UploadFailed,
	}
}

// Notifier handles desktop notifications.
type Notifier struct {
	logger *logging.Logger
	cfg    Config
	mu     sync.RWMutex

	// send is beeep.Notify outside tests
	send func(title, message string) error
}

// NewNotifier creates a notifier. A nil cfg uses DefaultConfig.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Notifier{
		logger: logging.OrNop(logger).Component("notify"),
		cfg:    *cfg,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg.Enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg.Enabled
}

func (n *Notifier) allowed(show func(Config) bool) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg.Enabled && show(n.cfg)
}

// UploadComplete announces a merged brand file.
func (n *Notifier) UploadComplete(brand models.Brand, fileName string, res *models.UploadResult) {
	if res == nil || !n.allowed(func(c Config) bool { return c.ShowUploadComplete }) {
		return
	}

	title := fmt.Sprintf("%s upload complete", brand.Label())
	message := fmt.Sprintf("%s: %d rows, %d invalid, %d inserted",
		shortenPath(fileName), res.RowsUploaded, res.InvalidCount, res.InsertedToBrand)
	if res.HasMerge() {
		updated, inserted := res.MergeCounts()
		message += fmt.Sprintf("\nMaster: %d updated, %d new", updated, inserted)
	}

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("brand", string(brand)).Msg("Failed to send upload complete notification")
	}
}

// UploadFailed announces a failed brand upload.
func (n *Notifier) UploadFailed(brand models.Brand, fileName string, info *api.ErrorInfo) {
	if info == nil || !n.allowed(func(c Config) bool { return c.ShowUploadFailed }) {
		return
	}

	title := fmt.Sprintf("%s upload failed", brand.Label())
	message := fmt.Sprintf("%s:\n%s", shortenPath(fileName), truncate(info.Message, 100))

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("brand", string(brand)).Msg("Failed to send upload failed notification")
	}
}

// Alert sends a prominent notification, falling back to a regular one.
func (n *Notifier) Alert(message string) {
	if !n.IsEnabled() {
		return
	}
	if err := beeep.Alert(appTitle, message, ""); err != nil {
		if err := n.send(appTitle, message); err != nil {
			n.logger.Error().Err(err).Str("message", message).Msg("Failed to send alert notification")
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath keeps long paths readable in a notification bubble.
func shortenPath(path string) string {
	const maxLen = 60

	if len(path) <= maxLen {
		return path
	}
	short := filepath.Join("...", filepath.Base(filepath.Dir(path)), filepath.Base(path))
	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}
	return short
}
