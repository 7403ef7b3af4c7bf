package tls

import (
	"crypto/x509"
	"fmt"
	"time"
)

// ExpiryWarning is how close to expiry a certificate reports degraded health.
const ExpiryWarning = 30 * 24 * time.Hour

// ValidateCertificate rejects a certificate outside its validity window.
func ValidateCertificate(cert *x509.Certificate, now time.Time) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid (valid from %s)", cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired on %s", cert.NotAfter.Format(time.RFC3339))
	}
	return nil
}

// DaysUntilExpiry returns the whole days left before cert expires.
func DaysUntilExpiry(cert *x509.Certificate, now time.Time) int {
	return int(cert.NotAfter.Sub(now).Hours() / 24)
}
