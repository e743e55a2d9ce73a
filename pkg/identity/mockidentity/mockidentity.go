/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mockidentity issues real X.509 credentials from an in-process CA
// for use in tests.
package mockidentity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/pkg/errors"
)

// CA is a self-signed certificate authority
type CA struct {
	key  *ecdsa.PrivateKey
	cert *x509.Certificate
	PEM  []byte
}

// NewCA creates a CA with a fresh P-256 key
func NewCA() (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate CA key")
	}

	template := &x509.Certificate{
		SerialNumber:          serial(),
		Subject:               pkix.Name{CommonName: "mock-ca", Organization: []string{"mock"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CA certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse CA certificate")
	}

	return &CA{key: key, cert: cert, PEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})}, nil
}

// Certificate returns the CA certificate
func (ca *CA) Certificate() *x509.Certificate {
	return ca.cert
}

// Sign issues a certificate for pub with attrs embedded in the Fabric CA
// attribute extension. A nil attrs map omits the extension.
func (ca *CA) Sign(cn string, pub interface{}, attrs map[string]string) ([]byte, error) {
	template := &x509.Certificate{
		SerialNumber: serial(),
		Subject:      pkix.Name{CommonName: cn, OrganizationalUnit: []string{"client"}},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	if attrs != nil {
		ext, err := identity.NewAttributesExtension(attrs)
		if err != nil {
			return nil, err
		}
		template.ExtraExtensions = []pkix.Extension{ext}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, pub, ca.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create certificate")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), nil
}

// SignCSR issues a certificate for a PEM encoded certificate request
func (ca *CA) SignCSR(csrPEM []byte, attrs map[string]string) ([]byte, error) {
	block, _ := pem.Decode(csrPEM)
	if block == nil {
		return nil, errors.New("CSR is not PEM encoded")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse CSR")
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, errors.Wrap(err, "invalid CSR signature")
	}
	return ca.Sign(csr.Subject.CommonName, csr.PublicKey, attrs)
}

// NewCredential issues a credential with a fresh key
func (ca *CA) NewCredential(mspID, cn string, attrs map[string]string) (*identity.Credential, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}
	certPEM, err := ca.Sign(cn, &key.PublicKey, attrs)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal key")
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return identity.NewX509Credential(mspID, string(certPEM), string(keyPEM)), nil
}

func serial() *big.Int {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		panic(err)
	}
	return n
}
