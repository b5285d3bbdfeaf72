package tlsutil

import (
	"crypto/tls"
	"testing"
	"time"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %d, want %d", cfg.MinVersion, tls.VersionTLS12)
	}
	if len(cfg.CipherSuites) == 0 {
		t.Error("CipherSuites should not be empty")
	}
}

func TestServerTLSConfig(t *testing.T) {
	cfg := ServerTLSConfig("redis.internal")
	if cfg.ServerName != "redis.internal" {
		t.Errorf("ServerName = %q", cfg.ServerName)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %d, want %d", cfg.MinVersion, tls.VersionTLS12)
	}
}

func TestSecureTransport(t *testing.T) {
	tr := SecureTransport(ClientOptions{})
	if tr.TLSClientConfig == nil {
		t.Fatal("TLSClientConfig should not be nil")
	}
	if tr.MaxIdleConnsPerHost != 10 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 10", tr.MaxIdleConnsPerHost)
	}
	if tr.Proxy != nil {
		t.Error("Proxy should be nil unless UseEnvProxy is set")
	}

	tr = SecureTransport(ClientOptions{MaxIdleConnsPerHost: 4, UseEnvProxy: true})
	if tr.MaxIdleConnsPerHost != 4 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 4", tr.MaxIdleConnsPerHost)
	}
	if tr.Proxy == nil {
		t.Error("Proxy should be set when UseEnvProxy is true")
	}
}

func TestSecureHTTPClient(t *testing.T) {
	timeout := 5 * time.Second
	client := SecureHTTPClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("Timeout = %v, want %v", client.Timeout, timeout)
	}
	if client.Transport == nil {
		t.Fatal("Transport should not be nil")
	}
}
