// Package config provides configuration management for the rv-cleanup client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/rvcleanup/rv-cleanup/internal/constants"
)

// EnvAPIURL overrides [service] base_url when set.
const EnvAPIURL = "RV_CLEANUP_API_URL"

// Config is the client configuration.
//
// INI format:
//
//	[service]
//	base_url = http://localhost:8001
//	timeout_seconds = 120
//	read_retries = 0
//	requests_per_second = 5
//	burst = 10
//
//	[upload]
//	estimate_seconds = 8
//	tick_interval_ms = 1000
//
//	[browser]
//	page_limit = 100
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	password =
//	no_proxy =
//
//	[logging]
//	level = info
//	file =
//
//	[notifications]
//	enabled = true
//	upload_complete = true
//	upload_failed = true
//
//	[export]
//	s3_region =
//	s3_profile =
//	azure_service_url =
type Config struct {
	BaseURL           string
	TimeoutSeconds    int
	ReadRetries       int
	RequestsPerSecond float64
	Burst             float64

	EstimateSeconds int
	TickIntervalMs  int

	PageLimit int

	ProxyMode     string
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string

	LogLevel string
	LogFile  string

	Notifications NotificationConfig

	Export ExportConfig
}

// NotificationConfig contains settings for desktop notifications.
type NotificationConfig struct {
	Enabled        bool
	UploadComplete bool
	UploadFailed   bool
}

// ExportConfig holds defaults for remote export destinations.
type ExportConfig struct {
	S3Region        string
	S3Profile       string
	AzureServiceURL string
}

// Validation errors
var (
	ErrMissingBaseURL      = errors.New("base_url is required")
	ErrInvalidBaseURL      = errors.New("base_url must be an absolute http(s) URL")
	ErrInvalidTimeout      = errors.New("timeout_seconds must be positive")
	ErrInvalidReadRetries  = errors.New("read_retries must be between 0 and 10")
	ErrInvalidRate         = errors.New("requests_per_second and burst must be positive")
	ErrInvalidEstimate     = errors.New("estimate_seconds must be between 1 and 3600")
	ErrInvalidTickInterval = errors.New("tick_interval_ms must be positive")
	ErrInvalidPageLimit    = errors.New("page_limit must be between 1 and 1000")
	ErrInvalidProxyMode    = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost    = errors.New("proxy host is required for basic and ntlm modes")
	ErrUnknownKey          = errors.New("unknown configuration key")
)

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		BaseURL:           constants.DefaultBaseURL,
		TimeoutSeconds:    int(constants.DefaultRequestTimeout / time.Second),
		ReadRetries:       constants.DefaultReadRetries,
		RequestsPerSecond: constants.DefaultRequestsPerSecond,
		Burst:             constants.DefaultRequestBurst,
		EstimateSeconds:   constants.DefaultEstimateSeconds,
		TickIntervalMs:    int(constants.DefaultTickInterval / time.Millisecond),
		PageLimit:         constants.DefaultPageLimit,
		ProxyMode:         "no-proxy",
		ProxyPort:         8080,
		LogLevel:          "info",
		Notifications: NotificationConfig{
			Enabled:        true,
			UploadComplete: true,
			UploadFailed:   true,
		},
	}
}

// Load reads configuration from an INI file and applies environment overrides.
// If the file doesn't exist, the defaults are returned with no error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			cfg.applyEnv()
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); err == nil {
		iniFile, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg.readINI(iniFile)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) readINI(f *ini.File) {
	svc := f.Section("service")
	cfg.BaseURL = svc.Key("base_url").MustString(cfg.BaseURL)
	cfg.TimeoutSeconds = svc.Key("timeout_seconds").MustInt(cfg.TimeoutSeconds)
	cfg.ReadRetries = svc.Key("read_retries").MustInt(cfg.ReadRetries)
	cfg.RequestsPerSecond = svc.Key("requests_per_second").MustFloat64(cfg.RequestsPerSecond)
	cfg.Burst = svc.Key("burst").MustFloat64(cfg.Burst)

	up := f.Section("upload")
	cfg.EstimateSeconds = up.Key("estimate_seconds").MustInt(cfg.EstimateSeconds)
	cfg.TickIntervalMs = up.Key("tick_interval_ms").MustInt(cfg.TickIntervalMs)

	cfg.PageLimit = f.Section("browser").Key("page_limit").MustInt(cfg.PageLimit)

	proxy := f.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(cfg.ProxyPort)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.ProxyPassword = proxy.Key("password").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()

	logSection := f.Section("logging")
	cfg.LogLevel = logSection.Key("level").MustString(cfg.LogLevel)
	cfg.LogFile = logSection.Key("file").String()

	notify := f.Section("notifications")
	cfg.Notifications.Enabled = notify.Key("enabled").MustBool(true)
	cfg.Notifications.UploadComplete = notify.Key("upload_complete").MustBool(true)
	cfg.Notifications.UploadFailed = notify.Key("upload_failed").MustBool(true)

	export := f.Section("export")
	cfg.Export.S3Region = export.Key("s3_region").String()
	cfg.Export.S3Profile = export.Key("s3_profile").String()
	cfg.Export.AzureServiceURL = export.Key("azure_service_url").String()
}

func (cfg *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.BaseURL = v
	}
}

// Save writes the configuration to path, creating parent directories.
// The proxy password is stored in the file, so it is written with 0600 permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	for _, k := range keyTable {
		section := iniFile.Section(k.section)
		section.Key(k.name).SetValue(k.get(cfg))
	}

	// Temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the configuration and returns the first problem found.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}
	if cfg.TimeoutSeconds <= 0 {
		return ErrInvalidTimeout
	}
	if cfg.ReadRetries < 0 || cfg.ReadRetries > 10 {
		return ErrInvalidReadRetries
	}
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		return ErrInvalidRate
	}
	if cfg.EstimateSeconds < 1 || cfg.EstimateSeconds > constants.MaxEstimateSeconds {
		return ErrInvalidEstimate
	}
	if cfg.TickIntervalMs <= 0 {
		return ErrInvalidTickInterval
	}
	if cfg.PageLimit < 1 || cfg.PageLimit > constants.MaxPageLimit {
		return ErrInvalidPageLimit
	}
	switch strings.ToLower(cfg.ProxyMode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if strings.TrimSpace(cfg.ProxyHost) == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}
	return nil
}

// Timeout returns the per-request timeout.
func (cfg *Config) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

// TickInterval returns the upload estimate tick period.
func (cfg *Config) TickInterval() time.Duration {
	return time.Duration(cfg.TickIntervalMs) * time.Millisecond
}

// configKey binds a dotted key name (section.name) to a Config field.
type configKey struct {
	section string
	name    string
	secret  bool
	get     func(*Config) string
	set     func(*Config, string) error
}

func (k configKey) dotted() string { return k.section + "." + k.name }

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("expected an integer: %w", err)
		}
		*field(cfg) = n
		return nil
	}
}

func floatSetter(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("expected a number: %w", err)
		}
		*field(cfg) = f
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("expected true or false: %w", err)
		}
		*field(cfg) = b
		return nil
	}
}

func stringSetter(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = strings.TrimSpace(v)
		return nil
	}
}

var keyTable = []configKey{
	{"service", "base_url", false,
		func(c *Config) string { return c.BaseURL },
		stringSetter(func(c *Config) *string { return &c.BaseURL })},
	{"service", "timeout_seconds", false,
		func(c *Config) string { return strconv.Itoa(c.TimeoutSeconds) },
		intSetter(func(c *Config) *int { return &c.TimeoutSeconds })},
	{"service", "read_retries", false,
		func(c *Config) string { return strconv.Itoa(c.ReadRetries) },
		intSetter(func(c *Config) *int { return &c.ReadRetries })},
	{"service", "requests_per_second", false,
		func(c *Config) string { return strconv.FormatFloat(c.RequestsPerSecond, 'f', -1, 64) },
		floatSetter(func(c *Config) *float64 { return &c.RequestsPerSecond })},
	{"service", "burst", false,
		func(c *Config) string { return strconv.FormatFloat(c.Burst, 'f', -1, 64) },
		floatSetter(func(c *Config) *float64 { return &c.Burst })},
	{"upload", "estimate_seconds", false,
		func(c *Config) string { return strconv.Itoa(c.EstimateSeconds) },
		intSetter(func(c *Config) *int { return &c.EstimateSeconds })},
	{"upload", "tick_interval_ms", false,
		func(c *Config) string { return strconv.Itoa(c.TickIntervalMs) },
		intSetter(func(c *Config) *int { return &c.TickIntervalMs })},
	{"browser", "page_limit", false,
		func(c *Config) string { return strconv.Itoa(c.PageLimit) },
		intSetter(func(c *Config) *int { return &c.PageLimit })},
	{"proxy", "mode", false,
		func(c *Config) string { return c.ProxyMode },
		stringSetter(func(c *Config) *string { return &c.ProxyMode })},
	{"proxy", "host", false,
		func(c *Config) string { return c.ProxyHost },
		stringSetter(func(c *Config) *string { return &c.ProxyHost })},
	{"proxy", "port", false,
		func(c *Config) string { return strconv.Itoa(c.ProxyPort) },
		intSetter(func(c *Config) *int { return &c.ProxyPort })},
	{"proxy", "user", false,
		func(c *Config) string { return c.ProxyUser },
		stringSetter(func(c *Config) *string { return &c.ProxyUser })},
	{"proxy", "password", true,
		func(c *Config) string { return c.ProxyPassword },
		stringSetter(func(c *Config) *string { return &c.ProxyPassword })},
	{"proxy", "no_proxy", false,
		func(c *Config) string { return c.NoProxy },
		stringSetter(func(c *Config) *string { return &c.NoProxy })},
	{"logging", "level", false,
		func(c *Config) string { return c.LogLevel },
		stringSetter(func(c *Config) *string { return &c.LogLevel })},
	{"logging", "file", false,
		func(c *Config) string { return c.LogFile },
		stringSetter(func(c *Config) *string { return &c.LogFile })},
	{"notifications", "enabled", false,
		func(c *Config) string { return strconv.FormatBool(c.Notifications.Enabled) },
		boolSetter(func(c *Config) *bool { return &c.Notifications.Enabled })},
	{"notifications", "upload_complete", false,
		func(c *Config) string { return strconv.FormatBool(c.Notifications.UploadComplete) },
		boolSetter(func(c *Config) *bool { return &c.Notifications.UploadComplete })},
	{"notifications", "upload_failed", false,
		func(c *Config) string { return strconv.FormatBool(c.Notifications.UploadFailed) },
		boolSetter(func(c *Config) *bool { return &c.Notifications.UploadFailed })},
	{"export", "s3_region", false,
		func(c *Config) string { return c.Export.S3Region },
		stringSetter(func(c *Config) *string { return &c.Export.S3Region })},
	{"export", "s3_profile", false,
		func(c *Config) string { return c.Export.S3Profile },
		stringSetter(func(c *Config) *string { return &c.Export.S3Profile })},
	{"export", "azure_service_url", false,
		func(c *Config) string { return c.Export.AzureServiceURL },
		stringSetter(func(c *Config) *string { return &c.Export.AzureServiceURL })},
}

func lookupKey(dotted string) (configKey, bool) {
	dotted = strings.ToLower(strings.TrimSpace(dotted))
	for _, k := range keyTable {
		if k.dotted() == dotted {
			return k, true
		}
	}
	return configKey{}, false
}

// Keys returns every settable key in section.name form, sorted.
func Keys() []string {
	out := make([]string, 0, len(keyTable))
	for _, k := range keyTable {
		out = append(out, k.dotted())
	}
	sort.Strings(out)
	return out
}

// Set assigns a value by dotted key, e.g. "service.base_url".
func (cfg *Config) Set(key, value string) error {
	k, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := k.set(cfg, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", k.dotted(), err)
	}
	return nil
}

// Get returns a value by dotted key.
func (cfg *Config) Get(key string) (string, error) {
	k, ok := lookupKey(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return k.get(cfg), nil
}

// Entries returns every key and value in file order, masking secrets.
func (cfg *Config) Entries() [][2]string {
	out := make([][2]string, 0, len(keyTable))
	for _, k := range keyTable {
		v := k.get(cfg)
		if k.secret && v != "" {
			v = "********"
		}
		out = append(out, [2]string{k.dotted(), v})
	}
	return out
}
