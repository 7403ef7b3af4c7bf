package tls

import (
	"crypto/tls"
	"io"
	"testing"
	"time"

	"mercator-hq/sluice/pkg/config"
)

func TestServerConfig(t *testing.T) {
	dir := t.TempDir()
	notBefore, notAfter := validFor(24 * time.Hour)
	certFile, keyFile := writeCert(t, dir, "gateway.test", notBefore, notAfter)
	certs := NewReloader(certFile, keyFile, nil)

	tests := []struct {
		name           string
		cfg            config.TLSConfig
		wantMinVersion uint16
		wantClientAuth tls.ClientAuthType
		wantErr        bool
	}{
		{
			name:           "defaults to 1.3",
			cfg:            config.TLSConfig{MinVersion: "1.3"},
			wantMinVersion: tls.VersionTLS13,
			wantClientAuth: tls.NoClientCert,
		},
		{
			name:           "1.2",
			cfg:            config.TLSConfig{MinVersion: "1.2"},
			wantMinVersion: tls.VersionTLS12,
			wantClientAuth: tls.NoClientCert,
		},
		{
			name:           "client CA required",
			cfg:            config.TLSConfig{MinVersion: "1.3", ClientCAFile: certFile, ClientAuth: "require"},
			wantMinVersion: tls.VersionTLS13,
			wantClientAuth: tls.RequireAndVerifyClientCert,
		},
		{
			name:           "client CA optional",
			cfg:            config.TLSConfig{MinVersion: "1.3", ClientCAFile: certFile, ClientAuth: "verify_if_given"},
			wantMinVersion: tls.VersionTLS13,
			wantClientAuth: tls.VerifyClientCertIfGiven,
		},
		{
			name:    "client CA is not PEM",
			cfg:     config.TLSConfig{ClientCAFile: keyFile + ".missing"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ServerConfig(&tt.cfg, certs)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ServerConfig() error = %v", err)
			}
			if got.MinVersion != tt.wantMinVersion {
				t.Errorf("MinVersion = %x, want %x", got.MinVersion, tt.wantMinVersion)
			}
			if got.ClientAuth != tt.wantClientAuth {
				t.Errorf("ClientAuth = %v, want %v", got.ClientAuth, tt.wantClientAuth)
			}
		})
	}
}

func TestServerConfig_Handshake(t *testing.T) {
	notBefore, notAfter := validFor(24 * time.Hour)
	certFile, keyFile := writeCert(t, t.TempDir(), "gateway.test", notBefore, notAfter)
	certs := NewReloader(certFile, keyFile, nil)
	if err := certs.Load(); err != nil {
		t.Fatal(err)
	}
	serverConfig, err := ServerConfig(&config.TLSConfig{MinVersion: "1.3"}, certs)
	if err != nil {
		t.Fatal(err)
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverConfig)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.WriteString(conn, "ok")
	}()

	// #nosec G402 - self-signed test certificate
	conn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	defer conn.Close()

	state := conn.ConnectionState()
	if state.Version != tls.VersionTLS13 {
		t.Errorf("negotiated version = %x, want TLS 1.3", state.Version)
	}
	if cn := state.PeerCertificates[0].Subject.CommonName; cn != "gateway.test" {
		t.Errorf("peer subject = %q", cn)
	}
	buf := make([]byte, 2)
	if _, err := io.ReadFull(conn, buf); err != nil || string(buf) != "ok" {
		t.Errorf("read = %q, %v", buf, err)
	}
}

func TestValidateCertificate(t *testing.T) {
	if err := ValidateCertificate(nil, time.Now()); err == nil {
		t.Error("nil certificate should be rejected")
	}
}
