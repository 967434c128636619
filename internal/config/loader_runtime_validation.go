package config

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// applyRuntimeValidation applies runtime validations and transformations
func applyRuntimeValidation(cfg *Config) error {
	if err := checkTLSFiles(&cfg.MQTT); err != nil {
		return err
	}
	return applyClientIDFromCert(&cfg.MQTT)
}

// checkTLSFiles fails early when TLS is enabled with unreadable files.
func checkTLSFiles(cfg *MQTTConfig) error {
	if !cfg.TLSEnabled {
		return nil
	}
	for _, path := range []string{cfg.CACert, cfg.ClientCert, cfg.ClientKey} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("mqtt tls file %s: %w", path, err)
		}
	}
	return nil
}

// applyClientIDFromCert prefixes the MQTT client ID with the certificate CN,
// which brokers with CN based ACLs require.
func applyClientIDFromCert(cfg *MQTTConfig) error {
	if cfg.UseCertCNClientID && cfg.ClientCert != "" {
		cn, err := extractCNFromCertFile(cfg.ClientCert)
		if err != nil {
			return fmt.Errorf("failed to extract CN from certificate: %w", err)
		}
		cfg.ClientID = cn + "-" + cfg.ClientID
	}
	return nil
}

// extractCNFromCertFile extracts the CN from a PEM certificate file
func extractCNFromCertFile(certPath string) (string, error) {
	certPEM, err := os.ReadFile(certPath) // #nosec G304 - certPath is from config, not user input
	if err != nil {
		return "", fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	if cert.Subject.CommonName == "" {
		return "", fmt.Errorf("certificate has no CN")
	}

	return cert.Subject.CommonName, nil
}
