/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fabricca

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/hyperledger/fabric-lib-go/bccsp/utils"
	"github.com/pkg/errors"
)

func b64Encode(buf []byte) string {
	return base64.StdEncoding.EncodeToString(buf)
}

// authToken builds the Fabric CA authorization token for a request:
// b64(cert) "." b64(sig) where sig is a low-S ECDSA signature over
// SHA-256(method.b64(uri).b64(body).b64(cert)).
func authToken(cred *identity.Credential, method, uri string, body []byte) (string, error) {
	key, err := cred.Key()
	if err != nil {
		return "", err
	}

	b64cert := b64Encode([]byte(cred.CertificatePEM()))
	payload := method + "." + b64Encode([]byte(uri)) + "." + b64Encode(body) + "." + b64cert
	digest := sha256.Sum256([]byte(payload))

	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return "", errors.Wrap(err, "signature generation failed")
	}
	s, err = utils.ToLowS(&key.PublicKey, s)
	if err != nil {
		return "", errors.WithMessage(err, "failed to normalize signature")
	}
	sig, err := utils.MarshalECDSASignature(r, s)
	if err != nil {
		return "", errors.WithMessage(err, "failed to marshal signature")
	}

	return b64cert + "." + b64Encode(sig), nil
}
