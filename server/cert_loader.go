package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
)

// CertLoader holds the TLS certificate served by the listener. The server
// calls Reload when the certificate or key file changes on disk.
type CertLoader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

// NewCertLoader creates a new CertLoader and loads the key pair.
func NewCertLoader(certFile, keyFile string, logger *slog.Logger) (*CertLoader, error) {
	loader := &CertLoader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger,
	}
	if err := loader.Reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

// Files returns the certificate and key paths.
func (l *CertLoader) Files() []string {
	return []string{l.certFile, l.keyFile}
}

// GetCertificate is a callback for tls.Config.GetCertificate.
func (l *CertLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cert, nil
}

// Reload reads the key pair from disk. On error the previous certificate
// stays in use.
func (l *CertLoader) Reload() error {
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}

	l.mu.Lock()
	l.cert = &cert
	l.mu.Unlock()

	l.logger.Info("loaded tls certificate", "cert", l.certFile, "key", l.keyFile)
	return nil
}
