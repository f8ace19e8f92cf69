package api

import (
	"crypto/tls"
	"errors"
	"fmt"
)

// LoadCertificate reads a PEM certificate and key for serving HTTPS. Both
// empty means plain HTTP and returns nil, nil.
func LoadCertificate(certFile, keyFile string) (*tls.Config, error) {
	switch {
	case certFile == "" && keyFile == "":
		return nil, nil
	case certFile == "" || keyFile == "":
		return nil, errors.New("tls needs both a certificate and a key")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// UseTLS makes ListenAndServe serve HTTPS with the given pair. Empty paths
// keep plain HTTP.
func (s *Server) UseTLS(certFile, keyFile string) error {
	cfg, err := LoadCertificate(certFile, keyFile)
	if err != nil {
		return err
	}
	s.tls = cfg
	return nil
}

// TLSEnabled reports whether s serves HTTPS.
func (s *Server) TLSEnabled() bool {
	return s.tls != nil
}
