// Package tlscert provides the certificate for the optional local HTTPS listener.
package tlscert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const validFor = 365 * 24 * time.Hour

// Generate creates a self-signed certificate for localhost and the given extra hosts,
// returned as PEM blocks.
func Generate(hosts ...string) (certPEM, keyPEM []byte, err error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, errors.Wrap(err, "generate key")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, errors.Wrap(err, "generate serial")
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Storefront Dev"}, CommonName: "localhost"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create certificate")
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	return certPEM, keyPEM, nil
}

// LoadOrCreate loads the key pair from certFile and keyFile. When either file is
// missing a self-signed pair is generated and written there.
func LoadOrCreate(certFile, keyFile string, hosts ...string) (tls.Certificate, error) {
	_, certErr := os.Stat(certFile)
	_, keyErr := os.Stat(keyFile)
	if certErr == nil && keyErr == nil {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return tls.Certificate{}, errors.Wrap(err, "load key pair")
		}
		log.WithField("cert", certFile).Info("TLS - certificate loaded")
		return cert, nil
	}

	certPEM, keyPEM, err := Generate(hosts...)
	if err != nil {
		return tls.Certificate{}, err
	}
	for path, data := range map[string][]byte{certFile: certPEM, keyFile: keyPEM} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return tls.Certificate{}, errors.Wrapf(err, "create dir for %s", path)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return tls.Certificate{}, errors.Wrapf(err, "write %s", path)
		}
	}
	log.WithFields(log.Fields{"cert": certFile, "key": keyFile}).Info("TLS - self-signed certificate generated")

	return tls.X509KeyPair(certPEM, keyPEM)
}
