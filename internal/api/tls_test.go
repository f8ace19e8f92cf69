package api

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeKeyPair writes a self-signed certificate and its key.
func writeKeyPair(t *testing.T) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "storyplayer"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestLoadCertificate(t *testing.T) {
	cert, key := writeKeyPair(t)

	tests := []struct {
		name    string
		cert    string
		key     string
		enabled bool
		wantErr bool
	}{
		{"neither", "", "", false, false},
		{"only cert", cert, "", false, true},
		{"only key", "", key, false, true},
		{"missing files", "/nonexistent/cert.pem", "/nonexistent/key.pem", false, true},
		{"swapped", key, cert, false, true},
		{"both", cert, key, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadCertificate(tt.cert, tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (cfg != nil) != tt.enabled {
				t.Fatalf("config = %v, want enabled %v", cfg, tt.enabled)
			}
			if cfg != nil {
				if cfg.MinVersion != tls.VersionTLS12 {
					t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
				}
				if len(cfg.Certificates) != 1 {
					t.Errorf("expected one certificate, got %d", len(cfg.Certificates))
				}
			}
		})
	}
}

func TestUseTLS(t *testing.T) {
	s, _ := newTestServer(t)
	if s.TLSEnabled() {
		t.Fatal("new server should serve plain HTTP")
	}

	if err := s.UseTLS("/nonexistent/cert.pem", "/nonexistent/key.pem"); err == nil {
		t.Fatal("expected an error for missing files")
	}
	if s.TLSEnabled() {
		t.Error("failed UseTLS must not enable TLS")
	}

	cert, key := writeKeyPair(t)
	if err := s.UseTLS(cert, key); err != nil {
		t.Fatalf("UseTLS: %v", err)
	}
	if !s.TLSEnabled() {
		t.Error("expected TLS after UseTLS")
	}
}
