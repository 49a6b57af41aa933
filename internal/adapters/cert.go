package adapters

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// dnsNamePrefix is prepended to all encoded public keys in certificate DNS names
const dnsNamePrefix = "e"

var base32Encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

var ErrInvalidCertificate = errors.New("invalid peer certificate")

// EncodePubKeyToDNS encodes an ed25519 public key as "e" + base32(key).
// The same string is the node's peer id.
func EncodePubKeyToDNS(pub ed25519.PublicKey) string {
	return dnsNamePrefix + base32Encoding.EncodeToString(pub)
}

// GenerateCertificate creates a self-signed certificate for the node key,
// usable for both server and client authentication.
func GenerateCertificate(priv ed25519.PrivateKey, validity time.Duration) (*tls.Certificate, error) {
	pub := priv.Public().(ed25519.PublicKey)
	dnsName := EncodePubKeyToDNS(pub)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: dnsName,
		},
		DNSNames:  []string{dnsName},
		NotBefore: time.Now().Add(-time.Minute),
		NotAfter:  time.Now().Add(validity),
		KeyUsage:  x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		SignatureAlgorithm:    x509.PureEd25519,
		PublicKeyAlgorithm:    x509.Ed25519,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  priv,
		Leaf:        leaf,
	}, nil
}

// ValidateCertificate checks a peer certificate: ed25519 signature, a single
// DNS name matching the embedded key, and the validity window.
func ValidateCertificate(cert *x509.Certificate) error {
	if cert.SignatureAlgorithm != x509.PureEd25519 {
		return fmt.Errorf("%w: signature algorithm is not Ed25519", ErrInvalidCertificate)
	}
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("%w: public key is not Ed25519", ErrInvalidCertificate)
	}
	if len(cert.DNSNames) != 1 || !strings.HasPrefix(cert.DNSNames[0], dnsNamePrefix) {
		return fmt.Errorf("%w: want exactly one encoded DNS name", ErrInvalidCertificate)
	}
	if cert.DNSNames[0] != EncodePubKeyToDNS(pub) {
		return fmt.Errorf("%w: DNS name does not match public key", ErrInvalidCertificate)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf("%w: outside validity period", ErrInvalidCertificate)
	}
	return nil
}
