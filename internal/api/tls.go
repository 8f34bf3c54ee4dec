package api

import (
	"crypto/tls"
	"errors"
	"log"
	"os"
)

// TLSConfig holds the certificate and key paths for HTTPS.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

var tlsConfig *TLSConfig

var errHalfTLS = errors.New("STORYENGINE_TLS_CERT and STORYENGINE_TLS_KEY must be set together")

// InitTLS reads STORYENGINE_TLS_CERT and STORYENGINE_TLS_KEY. Neither set
// means plain HTTP; only one set is a configuration error and leaves TLS off.
func InitTLS() error {
	certFile := os.Getenv("STORYENGINE_TLS_CERT")
	keyFile := os.Getenv("STORYENGINE_TLS_KEY")

	tlsConfig = nil
	switch {
	case certFile == "" && keyFile == "":
		return nil
	case certFile == "" || keyFile == "":
		return errHalfTLS
	}
	tlsConfig = &TLSConfig{CertFile: certFile, KeyFile: keyFile}
	return nil
}

func IsTLSEnabled() bool {
	return tlsConfig != nil
}

func GetTLSConfig() *TLSConfig {
	return tlsConfig
}

// LoadTLSConfig loads the key pair. It returns nil, and the server falls
// back to plain HTTP, when TLS is off or the files cannot be loaded.
func LoadTLSConfig() *tls.Config {
	cfg := tlsConfig
	if cfg == nil {
		return nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		log.Printf("tls: %v; serving plain HTTP", err)
		return nil
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}

// SetTLSConfigForTest replaces the package TLS settings.
func SetTLSConfigForTest(cfg *TLSConfig) {
	tlsConfig = cfg
}
