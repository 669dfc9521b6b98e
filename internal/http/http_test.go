package http

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"testing"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/rvcleanup/rv-cleanup/internal/config"
	"github.com/rvcleanup/rv-cleanup/internal/logging"
)

func TestProxyFuncWithBypass_EmptyNoProxy(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "", nil)

	req, _ := nethttp.NewRequest("GET", "http://cleanup.internal:8001/master-emails", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Host != "proxy.corp:8080" {
		t.Fatalf("expected proxy.corp:8080, got %v", result)
	}
}

func TestProxyFuncWithBypass_Domain(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "internal,10.0.0.0/8", logging.Nop())

	tests := []struct {
		target string
		direct bool
	}{
		{"https://cleanup.internal/upload", true},
		{"http://10.1.2.3:8001/", true},
		{"https://bucket.s3.amazonaws.com/key", false},
	}
	for _, tt := range tests {
		req, _ := nethttp.NewRequest("GET", tt.target, nil)
		result, err := proxyFunc(req)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.target, err)
		}
		if tt.direct && result != nil {
			t.Errorf("%s: expected direct, got proxy %v", tt.target, result)
		}
		if !tt.direct && result == nil {
			t.Errorf("%s: expected proxy, got direct", tt.target)
		}
	}
}

func TestBuildProxyURL(t *testing.T) {
	cfg := config.New()
	cfg.ProxyHost = "proxy.corp"
	cfg.ProxyPort = 0
	cfg.ProxyUser = "ops"

	u := buildProxyURL(cfg)
	if u.Host != "proxy.corp:8080" {
		t.Errorf("Host = %s, want proxy.corp:8080", u.Host)
	}
	if u.User != nil {
		t.Error("credentials must not be embedded without a password")
	}

	cfg.ProxyPassword = "pw"
	u = buildProxyURL(cfg)
	if u.User == nil || u.User.Username() != "ops" {
		t.Errorf("expected user ops, got %v", u.User)
	}
}

func TestConfigureHTTPClientModes(t *testing.T) {
	cfg := config.New()
	cfg.TimeoutSeconds = 7

	client, err := ConfigureHTTPClient(cfg, nil)
	if err != nil {
		t.Fatalf("no-proxy: %v", err)
	}
	if client.Timeout != 7*time.Second {
		t.Errorf("Timeout = %v, want 7s", client.Timeout)
	}
	if tr := client.Transport.(*nethttp.Transport); tr.Proxy != nil {
		t.Error("no-proxy mode must not set a proxy func")
	}

	cfg.ProxyMode = "ntlm"
	cfg.ProxyHost = "proxy.corp"
	client, err = ConfigureHTTPClient(cfg, nil)
	if err != nil {
		t.Fatalf("ntlm: %v", err)
	}
	if _, ok := client.Transport.(ntlmssp.Negotiator); !ok {
		t.Errorf("ntlm mode transport = %T, want ntlmssp.Negotiator", client.Transport)
	}

	cfg.ProxyMode = "socks"
	if _, err := ConfigureHTTPClient(cfg, nil); err == nil {
		t.Error("expected error for unsupported proxy mode")
	}
}

func TestCreateTransferClientClearsTimeout(t *testing.T) {
	cfg := config.New()
	client, err := CreateTransferClient(cfg, nil)
	if err != nil {
		t.Fatalf("CreateTransferClient: %v", err)
	}
	if client.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", client.Timeout)
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	cfg := config.New()
	cfg.ProxyMode = "basic"
	cfg.ProxyUser = "ops"
	if !NeedsProxyPassword(cfg) {
		t.Error("expected prompt when user is set without password")
	}
	cfg.ProxyMode = "system"
	if NeedsProxyPassword(cfg) {
		t.Error("system mode never prompts")
	}
}

func TestExecuteWithRetry(t *testing.T) {
	fast := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("success first try", func(t *testing.T) {
		calls := 0
		err := ExecuteWithRetry(context.Background(), fast, func() error { calls++; return nil })
		if err != nil || calls != 1 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("fatal not retried", func(t *testing.T) {
		calls := 0
		err := ExecuteWithRetry(context.Background(), fast, func() error {
			calls++
			return errors.New("NoSuchBucket: the specified bucket does not exist")
		})
		if err == nil || calls != 1 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("transient then success", func(t *testing.T) {
		calls := 0
		retries := 0
		cfg := fast
		cfg.OnRetry = func(int, error, ErrorType) { retries++ }
		err := ExecuteWithRetry(context.Background(), cfg, func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("put object: %w", errors.New("connection reset by peer"))
			}
			return nil
		})
		if err != nil || calls != 3 || retries != 2 {
			t.Fatalf("err=%v calls=%d retries=%d", err, calls, retries)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := ExecuteWithRetry(context.Background(), fast, func() error {
			calls++
			return errors.New("SlowDown: reduce your request rate")
		})
		if err == nil || calls != 3 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := ExecuteWithRetry(ctx, fast, func() error { return nil })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v, want context.Canceled", err)
		}
	})
}

func TestCalculateBackoffBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := CalculateBackoff(attempt, 10*time.Millisecond, 50*time.Millisecond)
		if d < 0 || d > 50*time.Millisecond {
			t.Errorf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
	if CalculateBackoff(0, time.Second, time.Minute) != 0 {
		t.Error("attempt 0 should not wait")
	}
}
