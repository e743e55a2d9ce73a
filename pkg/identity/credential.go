/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package identity models the X.509 credentials issued to participants.
//
// A Credential serializes to the same JSON document the Fabric wallet uses
// for X.509 identities, so stored entries can be shared with other Fabric
// tooling.
package identity

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/pkg/errors"
)

// X509Type is the credential type of X.509 identities
const X509Type = "X.509"

// Credential is an issued X.509 certificate with its private key
type Credential struct {
	Version     int     `json:"version"`
	MSPID       string  `json:"mspId"`
	Type        string  `json:"type"`
	Credentials Secrets `json:"credentials"`
}

// Secrets holds the PEM encoded certificate and private key
type Secrets struct {
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"privateKey"`
}

// String never includes the private key
func (s Secrets) String() string {
	return fmt.Sprintf("{certificate: %d bytes, privateKey: [redacted]}", len(s.Certificate))
}

// NewX509Credential creates a credential from PEM encoded material
func NewX509Credential(mspID string, cert string, key string) *Credential {
	return &Credential{Version: 1, MSPID: mspID, Type: X509Type, Credentials: Secrets{Certificate: cert, PrivateKey: key}}
}

// CertificatePEM returns the PEM encoded certificate
func (c *Credential) CertificatePEM() string {
	return c.Credentials.Certificate
}

// KeyPEM returns the PEM encoded private key
func (c *Credential) KeyPEM() string {
	return c.Credentials.PrivateKey
}

// Certificate parses the certificate
func (c *Credential) Certificate() (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(c.Credentials.Certificate))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("certificate is not PEM encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse certificate")
	}
	return cert, nil
}

// Key parses the private key. Only ECDSA keys are supported.
func (c *Credential) Key() (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(c.Credentials.PrivateKey))
	if block == nil {
		return nil, errors.New("private key is not PEM encoded")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.Errorf("unsupported private key type %T", key)
		}
		return ecKey, nil
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return key, nil
}

// Signer returns the private key as a crypto.Signer
func (c *Credential) Signer() (crypto.Signer, error) {
	return c.Key()
}

// EnrollmentID returns the certificate common name
func (c *Credential) EnrollmentID() (string, error) {
	cert, err := c.Certificate()
	if err != nil {
		return "", err
	}
	return cert.Subject.CommonName, nil
}

// Validate checks that the credential is well formed
func (c *Credential) Validate() error {
	if c.Type != X509Type {
		return errors.Errorf("unsupported credential type [%s]", c.Type)
	}
	if c.MSPID == "" {
		return errors.New("membership ID is missing")
	}
	if _, err := c.Certificate(); err != nil {
		return err
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	return nil
}

// Verify checks that the private key matches the certificate
func (c *Credential) Verify() error {
	_, err := tls.X509KeyPair([]byte(c.Credentials.Certificate), []byte(c.Credentials.PrivateKey))
	return errors.Wrap(err, "certificate and private key do not match")
}

// Equal reports whether c and other hold the same certificate and membership
func (c *Credential) Equal(other *Credential) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.MSPID == other.MSPID && c.Credentials.Certificate == other.Credentials.Certificate
}

// String never includes the private key
func (c *Credential) String() string {
	if c == nil {
		return "<nil>"
	}
	id, err := c.EnrollmentID()
	if err != nil {
		id = "?"
	}
	return fmt.Sprintf("Credential{mspId: %s, type: %s, enrollmentId: %s}", c.MSPID, c.Type, id)
}

// GoString never includes the private key
func (c *Credential) GoString() string {
	return c.String()
}
