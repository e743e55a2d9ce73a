/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/json"

	"github.com/pkg/errors"
)

// AttributesOID is the certificate extension in which Fabric CA embeds attributes
var AttributesOID = asn1.ObjectIdentifier{1, 2, 3, 4, 5, 6, 7, 8, 1}

type attributes struct {
	Attrs map[string]string `json:"attrs"`
}

// Attributes returns the attribute claims embedded in the certificate. A
// certificate without the extension has no attributes.
func (c *Credential) Attributes() (map[string]string, error) {
	cert, err := c.Certificate()
	if err != nil {
		return nil, err
	}
	return CertificateAttributes(cert)
}

// CertificateAttributes returns the attribute claims embedded in cert
func CertificateAttributes(cert *x509.Certificate) (map[string]string, error) {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(AttributesOID) {
			continue
		}
		attrs := &attributes{}
		if err := json.Unmarshal(ext.Value, attrs); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal attributes extension")
		}
		if attrs.Attrs == nil {
			attrs.Attrs = map[string]string{}
		}
		return attrs.Attrs, nil
	}
	return map[string]string{}, nil
}

// MissingAttributes returns the names that are not claimed by the certificate
func (c *Credential) MissingAttributes(names ...string) ([]string, error) {
	attrs, err := c.Attributes()
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range names {
		if _, ok := attrs[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// NewAttributesExtension encodes attrs the way Fabric CA does
func NewAttributesExtension(attrs map[string]string) (pkix.Extension, error) {
	value, err := json.Marshal(&attributes{Attrs: attrs})
	if err != nil {
		return pkix.Extension{}, errors.Wrap(err, "failed to marshal attributes")
	}
	return pkix.Extension{Id: AttributesOID, Critical: false, Value: value}, nil
}
