package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TemporalTLS returns the mTLS client config for the Temporal frontend, or
// nil when no client certificate is configured.
func (c *Config) TemporalTLS() (*tls.Config, error) {
	if c.TemporalTLSCert == "" && c.TemporalTLSKey == "" {
		return nil, nil
	}
	return clientTLS("temporal", c.TemporalTLSCert, c.TemporalTLSKey, c.TemporalTLSCACert, c.TemporalTLSServerName)
}

func clientTLS(name, certFile, keyFile, caFile, serverName string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load %s client cert: %w", name, err)
	}

	out := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}

	if caFile == "" {
		return out, nil
	}
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read %s CA cert: %w", name, err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("parse %s CA cert: no certificates found", name)
	}
	out.RootCAs = roots
	return out, nil
}
