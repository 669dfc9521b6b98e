package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"
	"strings"

	"golang.org/x/net/http2"

	"github.com/rvcleanup/rv-cleanup/internal/config"
	"github.com/rvcleanup/rv-cleanup/internal/logging"
)

// CreateTransferClient returns a client for bulk object-storage writes (export sinks).
// It shares the proxy setup of ConfigureHTTPClient but drops the overall
// timeout; callers bound each transfer with a context instead.
//
// HTTP/2 is attempted unless a proxy is active or DISABLE_HTTP2=true.
func CreateTransferClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	base, err := ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	base.Timeout = 0

	tr, ok := base.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a negotiator; leave it as configured.
		return base, nil
	}

	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || proxyActive(cfg) {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	base.Transport = tr
	return base, nil
}

// proxyActive reports whether requests will traverse a proxy. Proxies
// commonly mishandle HTTP/2 streams, so the transfer client avoids it then.
func proxyActive(cfg *config.Config) bool {
	switch strings.ToLower(cfg.ProxyMode) {
	case "no-proxy", "":
		return false
	case "system":
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return true
	}
}
