/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fabricca_test

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/foodtrace/onboarding-sdk-go/pkg/identity/mockidentity"
	"github.com/foodtrace/onboarding-sdk-go/pkg/policy"
	"github.com/hyperledger/fabric-lib-go/bccsp/utils"
	"github.com/stretchr/testify/require"
)

type registration struct {
	secret  string
	attrs   map[string]string
	revoked bool
}

type fakeRequest struct {
	ID          string `json:"id"`
	Affiliation string `json:"affiliation"`
	Reason      string `json:"reason"`
	CANameLower string `json:"caname"`
	CSR         string `json:"certificate_request"`
	CAName      string `json:"CAName"`
	Attrs       []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
		ECert bool   `json:"ecert"`
	} `json:"attrs"`
	AttrReqs []struct {
		Name     string `json:"name"`
		Optional bool   `json:"optional"`
	} `json:"attr_reqs"`
}

// fakeCA serves the register, enroll, reenroll, revoke and identity removal endpoints of a
// Fabric CA server, checking authorization tokens against ca
type fakeCA struct {
	t      *testing.T
	ca     *mockidentity.CA
	server *httptest.Server

	mu            sync.Mutex
	registrations map[string]*registration
	caNames       []string
	removals      []string
	unavailable   bool
	slow          bool
	hang          chan struct{}
}

func newFakeCA(t *testing.T) *fakeCA {
	ca, err := mockidentity.NewCA()
	require.NoError(t, err)

	f := &fakeCA{t: t, ca: ca, registrations: make(map[string]*registration), hang: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/register", f.register)
	mux.HandleFunc("/api/v1/enroll", f.enroll)
	mux.HandleFunc("/api/v1/reenroll", f.reenroll)
	mux.HandleFunc("/api/v1/revoke", f.revoke)
	mux.HandleFunc("/api/v1/identities/", f.removeIdentity)
	f.server = httptest.NewServer(f.gate(mux))
	t.Cleanup(func() {
		close(f.hang)
		f.server.Close()
	})
	return f
}

func (f *fakeCA) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		unavailable, slow := f.unavailable, f.slow
		f.mu.Unlock()

		if unavailable {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if slow {
			select {
			case <-r.Context().Done():
			case <-f.hang:
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeCA) setUnavailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable = v
}

func (f *fakeCA) setSlow(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slow = v
}

func (f *fakeCA) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.caNames...)
}

func (f *fakeCA) registered(id string) *registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registrations[id]
}

func (f *fakeCA) register(w http.ResponseWriter, r *http.Request) {
	body, req := f.decode(w, r)
	if req == nil {
		return
	}
	registrar := f.verifyToken(w, r, body)
	if registrar == nil {
		return
	}
	if _, ok := registrar[policy.AttrRegistrarRoles]; !ok {
		writeError(w, http.StatusUnauthorized, 71, "Authorization failure")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.caNames = append(f.caNames, req.CANameLower)

	if _, ok := f.registrations[req.ID]; ok {
		writeError(w, http.StatusBadRequest, 74, fmt.Sprintf("Identity '%s' is already registered", req.ID))
		return
	}
	reg := &registration{secret: "s3cr3t-" + req.ID, attrs: make(map[string]string)}
	for _, a := range req.Attrs {
		if a.Name == "forbidden" {
			writeError(w, http.StatusUnauthorized, 71, fmt.Sprintf("Authorization failure: registrar may not register attribute '%s'", a.Name))
			return
		}
		reg.attrs[a.Name] = a.Value
	}
	f.registrations[req.ID] = reg
	writeResult(w, map[string]string{"secret": reg.secret})
}

func (f *fakeCA) enroll(w http.ResponseWriter, r *http.Request) {
	_, req := f.decode(w, r)
	if req == nil {
		return
	}

	id, secret, ok := r.BasicAuth()
	f.mu.Lock()
	reg := f.registrations[id]
	f.caNames = append(f.caNames, req.CAName)
	f.mu.Unlock()
	if !ok || reg == nil || reg.secret != secret || reg.revoked {
		writeError(w, http.StatusUnauthorized, 20, "Authentication failure")
		return
	}
	f.issue(w, req, reg)
}

func (f *fakeCA) reenroll(w http.ResponseWriter, r *http.Request) {
	body, req := f.decode(w, r)
	if req == nil {
		return
	}
	if attrs := f.verifyToken(w, r, body); attrs == nil {
		return
	}
	f.mu.Lock()
	reg := f.registrations[f.tokenSubject(r)]
	f.caNames = append(f.caNames, req.CAName)
	f.mu.Unlock()
	if reg == nil || reg.revoked {
		writeError(w, http.StatusUnauthorized, 20, "Authentication failure")
		return
	}
	f.issue(w, req, reg)
}

func (f *fakeCA) revoke(w http.ResponseWriter, r *http.Request) {
	body, req := f.decode(w, r)
	if req == nil {
		return
	}
	if attrs := f.verifyToken(w, r, body); attrs == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.caNames = append(f.caNames, req.CANameLower)
	reg := f.registrations[req.ID]
	if reg == nil {
		writeError(w, http.StatusNotFound, 63, fmt.Sprintf("Identity '%s' was not found", req.ID))
		return
	}
	reg.revoked = true
	writeResult(w, map[string]interface{}{"RevokedCerts": []interface{}{}, "CRL": ""})
}

func (f *fakeCA) removeIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	registrar := f.verifyToken(w, r, nil)
	if registrar == nil {
		return
	}
	if _, ok := registrar[policy.AttrRegistrarRoles]; !ok {
		writeError(w, http.StatusUnauthorized, 71, "Authorization failure")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/identities/")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caNames = append(f.caNames, r.URL.Query().Get("ca"))
	f.removals = append(f.removals, r.URL.RawQuery)
	if _, ok := f.registrations[id]; !ok {
		writeError(w, http.StatusNotFound, 63, fmt.Sprintf("Failed to get User: %s", id))
		return
	}
	delete(f.registrations, id)
	writeResult(w, map[string]interface{}{"id": id, "caname": r.URL.Query().Get("ca")})
}

func (f *fakeCA) issue(w http.ResponseWriter, req *fakeRequest, reg *registration) {
	attrs := make(map[string]string)
	for _, ar := range req.AttrReqs {
		v, ok := reg.attrs[ar.Name]
		if !ok {
			if !ar.Optional {
				writeError(w, http.StatusBadRequest, 0, fmt.Sprintf("Attribute '%s' was requested but the identity does not possess it", ar.Name))
				return
			}
			continue
		}
		attrs[ar.Name] = v
	}

	cert, err := f.ca.SignCSR([]byte(req.CSR), attrs)
	if err != nil {
		writeError(w, http.StatusBadRequest, 0, err.Error())
		return
	}
	writeResult(w, map[string]interface{}{
		"Cert":       base64.StdEncoding.EncodeToString(cert),
		"ServerInfo": map[string]string{"CAName": req.CAName, "CAChain": base64.StdEncoding.EncodeToString(f.ca.PEM)},
	})
}

func (f *fakeCA) decode(w http.ResponseWriter, r *http.Request) ([]byte, *fakeRequest) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return nil, nil
	}
	req := &fakeRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, 0, "invalid request body")
		return nil, nil
	}
	return body, req
}

// verifyToken checks the authorization token and returns the attributes of
// the signing certificate
func (f *fakeCA) verifyToken(w http.ResponseWriter, r *http.Request, body []byte) map[string]string {
	cert, err := f.tokenCertificate(r, body)
	if err != nil {
		f.t.Logf("rejecting token: %s", err)
		writeError(w, http.StatusUnauthorized, 20, "Authentication failure")
		return nil
	}
	attrs, err := identity.CertificateAttributes(cert)
	if err != nil {
		writeError(w, http.StatusUnauthorized, 20, "Authentication failure")
		return nil
	}
	return attrs
}

func (f *fakeCA) tokenSubject(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), ".")
	raw, _ := base64.StdEncoding.DecodeString(parts[0])
	block, _ := pem.Decode(raw)
	cert, _ := x509.ParseCertificate(block.Bytes)
	return cert.Subject.CommonName
}

func (f *fakeCA) tokenCertificate(r *http.Request, body []byte) (*x509.Certificate, error) {
	parts := strings.Split(r.Header.Get("Authorization"), ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed token")
	}
	rawCert, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(rawCert)
	if block == nil {
		return nil, fmt.Errorf("token certificate is not PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	if err := cert.CheckSignatureFrom(f.ca.Certificate()); err != nil {
		return nil, err
	}

	sig, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}
	rs, ss, err := utils.UnmarshalECDSASignature(sig)
	if err != nil {
		return nil, err
	}
	pub := cert.PublicKey.(*ecdsa.PublicKey)
	lowS, err := utils.IsLowS(pub, ss)
	if err != nil || !lowS {
		return nil, fmt.Errorf("signature is not low-S")
	}

	b64 := base64.StdEncoding.EncodeToString
	payload := r.Method + "." + b64([]byte(r.URL.RequestURI())) + "." + b64(body) + "." + parts[0]
	digest := sha256.Sum256([]byte(payload))
	if !ecdsa.Verify(pub, digest[:], rs, ss) {
		return nil, fmt.Errorf("invalid token signature")
	}
	return cert, nil
}

func writeResult(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true, "result": result, "errors": []interface{}{}, "messages": []interface{}{},
	})
}

func writeError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false, "result": nil,
		"errors":   []map[string]interface{}{{"code": code, "message": message}},
		"messages": []interface{}{},
	})
}
