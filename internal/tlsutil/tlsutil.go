package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ServerTLSConfig returns the hardened config pinned to serverName,
// used for Redis connections with TLS enabled.
func ServerTLSConfig(serverName string) *tls.Config {
	cfg := DefaultTLSConfig()
	cfg.ServerName = serverName
	return cfg
}

// ClientOptions tunes the transport shared by the outbound HTTP clients
// (LLM provider, CSE market data, news search).
type ClientOptions struct {
	Timeout             time.Duration
	MaxIdleConnsPerHost int
	// UseEnvProxy honours HTTP_PROXY / HTTPS_PROXY.
	UseEnvProxy bool
}

// SecureTransport returns an http.Transport with TLS hardening.
func SecureTransport(opts ClientOptions) *http.Transport {
	perHost := opts.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = 10
	}
	tr := &http.Transport{
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.UseEnvProxy {
		tr.Proxy = http.ProxyFromEnvironment
	}
	return tr
}

// NewHTTPClient returns an http.Client with TLS hardening and the given options.
func NewHTTPClient(opts ClientOptions) *http.Client {
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: SecureTransport(opts),
	}
}

// SecureHTTPClient is shorthand for NewHTTPClient with only a timeout.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return NewHTTPClient(ClientOptions{Timeout: timeout, UseEnvProxy: true})
}
