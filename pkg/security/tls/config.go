package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"mercator-hq/sluice/pkg/config"
)

// ServerConfig builds the listener configuration. Certificates come from
// certs on every handshake; a client CA bundle enables client certificate
// verification.
func ServerConfig(cfg *config.TLSConfig, certs *Reloader) (*tls.Config, error) {
	if cfg == nil {
		return nil, errors.New("tls config is nil")
	}
	if certs == nil {
		return nil, errors.New("certificate reloader is required")
	}

	// #nosec G402 - MinVersion is validated to 1.2 or 1.3
	tlsConfig := &tls.Config{
		MinVersion:     parseVersion(cfg.MinVersion),
		GetCertificate: certs.GetCertificate,
	}

	if cfg.ClientCAFile != "" {
		pool, err := loadCAPool(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = parseClientAuth(cfg.ClientAuth)
	}

	return tlsConfig, nil
}

// parseVersion maps a configured version to its constant. Anything but
// "1.2" selects TLS 1.3.
func parseVersion(v string) uint16 {
	if v == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}

func parseClientAuth(mode string) tls.ClientAuthType {
	if mode == "verify_if_given" {
		return tls.VerifyClientCertIfGiven
	}
	return tls.RequireAndVerifyClientCert
}

func loadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("client CA %q contains no PEM certificates", path)
	}
	return pool, nil
}
