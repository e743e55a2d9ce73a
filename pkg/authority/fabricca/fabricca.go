/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package fabricca implements the authority service over the Fabric CA REST API.
package fabricca

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	cfsslapi "github.com/cloudflare/cfssl/api"
	"github.com/cloudflare/cfssl/csr"
	"github.com/cloudflare/cfssl/signer"
	"github.com/foodtrace/onboarding-sdk-go/pkg/authority"
	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
	"github.com/foodtrace/onboarding-sdk-go/pkg/core/config"
	"github.com/foodtrace/onboarding-sdk-go/pkg/identity"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/logging"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("onboard/fabricca")

// Client talks to a Fabric CA server
type Client struct {
	url        string
	caNames    map[string]struct{}
	httpClient *http.Client
}

// New creates a Fabric CA client from the authority configuration
func New(cfg config.AuthorityConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("authority.url is required")
	}
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid authority url [%s]", cfg.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("authority url [%s] must use http or https", cfg.URL)
	}

	tlsConfig, err := newTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	c := &Client{
		url:        u.String(),
		caNames:    make(map[string]struct{}),
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}
	for _, name := range cfg.CANames {
		if name = strings.TrimSpace(name); name != "" {
			c.caNames[name] = struct{}{}
		}
	}
	return c, nil
}

func newTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: cfg.InsecureSkipVerify} //nolint:gosec
	if cfg.CACertFile == "" {
		return tlsConfig, nil
	}

	raw, err := os.ReadFile(cfg.CACertFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read authority TLS CA certificate [%s]", cfg.CACertFile)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, errors.Errorf("no certificates found in [%s]", cfg.CACertFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// Register registers an identity, authenticating as registrar, and returns
// the enrollment secret generated by the server
func (c *Client) Register(ctx context.Context, registrar *identity.Credential, request *authority.RegistrationRequest) (string, error) {
	body, err := json.Marshal(&registrationRequestNet{
		Name:           request.Name,
		Type:           request.Type,
		MaxEnrollments: request.MaxEnrollments,
		Affiliation:    request.Affiliation,
		Attributes:     attributesNet(request.Attributes),
		CAName:         c.caName(request.CAName),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal registration request")
	}

	req, err := c.newPost(ctx, "register", body)
	if err != nil {
		return "", errkind.Wrap(err, errkind.Unknown, errkind.StageRegister, "failed to create registration request")
	}
	if err := authorize(req, registrar, body); err != nil {
		return "", errkind.Wrap(err, errkind.AdminIdentityMissing, errkind.StageRegister, "registrar credential cannot sign requests")
	}

	var result registrationResponseNet
	if err := c.send(req, errkind.StageRegister, &result); err != nil {
		return "", err
	}
	if result.Secret == "" {
		return "", errkind.New(errkind.Unknown, errkind.StageRegister, "authority returned no enrollment secret for [%s]", request.Name)
	}
	return result.Secret, nil
}

// Enroll exchanges an enrollment secret for a certificate over a freshly
// generated P-256 key
func (c *Client) Enroll(ctx context.Context, request *authority.EnrollmentRequest) (*authority.EnrollmentResponse, error) {
	csrPEM, keyPEM, err := newCSR(request.Name)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Unknown, errkind.StageEnroll, "failed to generate certificate request for [%s]", request.Name)
	}

	body, err := json.Marshal(&enrollmentRequestNet{
		SignRequest: signer.SignRequest{Request: string(csrPEM)},
		CAName:      c.caName(request.CAName),
		AttrReqs:    attributeRequestsNet(request.AttrReqs),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal enrollment request")
	}

	req, err := c.newPost(ctx, "enroll", body)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Unknown, errkind.StageEnroll, "failed to create enrollment request")
	}
	req.SetBasicAuth(request.Name, request.Secret)

	return c.enrollment(req, keyPEM, errkind.StageEnroll)
}

// Reenroll renews the certificate of current, authenticating with it, over
// a freshly generated key
func (c *Client) Reenroll(ctx context.Context, current *identity.Credential, request *authority.ReenrollmentRequest) (*authority.EnrollmentResponse, error) {
	name, err := current.EnrollmentID()
	if err != nil {
		return nil, errkind.Wrap(err, errkind.InvalidPayload, errkind.StageReenroll, "current credential has no enrollment ID")
	}

	csrPEM, keyPEM, err := newCSR(name)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Unknown, errkind.StageReenroll, "failed to generate certificate request for [%s]", name)
	}

	body, err := json.Marshal(&enrollmentRequestNet{
		SignRequest: signer.SignRequest{Request: string(csrPEM)},
		CAName:      c.caName(request.CAName),
		AttrReqs:    attributeRequestsNet(request.AttrReqs),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal reenrollment request")
	}

	req, err := c.newPost(ctx, "reenroll", body)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Unknown, errkind.StageReenroll, "failed to create reenrollment request")
	}
	if err := authorize(req, current, body); err != nil {
		return nil, errkind.Wrap(err, errkind.InvalidPayload, errkind.StageReenroll, "current credential of [%s] cannot sign requests", name)
	}

	return c.enrollment(req, keyPEM, errkind.StageReenroll)
}

// Revoke revokes all certificates of an enrollment ID, authenticating as registrar
func (c *Client) Revoke(ctx context.Context, registrar *identity.Credential, request *authority.RevocationRequest) error {
	body, err := json.Marshal(&revocationRequestNet{
		Name:   request.Name,
		Reason: request.Reason,
		CAName: c.caName(request.CAName),
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal revocation request")
	}

	req, err := c.newPost(ctx, "revoke", body)
	if err != nil {
		return errkind.Wrap(err, errkind.Unknown, errkind.StageRevoke, "failed to create revocation request")
	}
	if err := authorize(req, registrar, body); err != nil {
		return errkind.Wrap(err, errkind.AdminIdentityMissing, errkind.StageRevoke, "registrar credential cannot sign requests")
	}

	return c.send(req, errkind.StageRevoke, nil)
}

// RemoveIdentity deletes a registered identity, authenticating as
// registrar. The server revokes the identity's certificates as part of the
// removal and must run with identity removal enabled.
func (c *Client) RemoveIdentity(ctx context.Context, registrar *identity.Credential, request *authority.RemovalRequest) error {
	if request.Name == "" {
		return errkind.New(errkind.InvalidPayload, errkind.StageRemove, "name of the identity to remove is required")
	}

	query := url.Values{}
	query.Set("force", strconv.FormatBool(request.Force))
	if ca := c.caName(request.CAName); ca != "" {
		query.Set("ca", ca)
	}
	curl := fmt.Sprintf("%s/api/v1/identities/%s?%s", c.url, url.PathEscape(request.Name), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, curl, nil)
	if err != nil {
		return errkind.Wrap(err, errkind.Unknown, errkind.StageRemove, "failed to create removal request")
	}
	if err := authorize(req, registrar, nil); err != nil {
		return errkind.Wrap(err, errkind.AdminIdentityMissing, errkind.StageRemove, "registrar credential cannot sign requests")
	}

	return c.send(req, errkind.StageRemove, nil)
}

func (c *Client) enrollment(req *http.Request, keyPEM []byte, stage errkind.Stage) (*authority.EnrollmentResponse, error) {
	var result enrollmentResponseNet
	if err := c.send(req, stage, &result); err != nil {
		return nil, err
	}

	cert, err := base64.StdEncoding.DecodeString(result.Cert)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Unknown, stage, "authority returned an invalid certificate encoding")
	}
	if len(cert) == 0 {
		return nil, errkind.New(errkind.Unknown, stage, "authority returned no certificate")
	}
	logger.Debugf("certificate issued by CA [%s]", result.ServerInfo.CAName)

	return &authority.EnrollmentResponse{Certificate: cert, PrivateKey: keyPEM}, nil
}

// caName keeps name when the server hosts it; otherwise the request is
// served by the default CA
func (c *Client) caName(name string) string {
	if len(c.caNames) == 0 {
		return name
	}
	if _, ok := c.caNames[name]; ok {
		return name
	}
	logger.Debugf("CA [%s] is not hosted by the authority, using the default CA", name)
	return ""
}

func (c *Client) newPost(ctx context.Context, endpoint string, body []byte) (*http.Request, error) {
	curl := fmt.Sprintf("%s/api/v1/%s", c.url, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, curl, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "failed posting to %s", curl)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func authorize(req *http.Request, cred *identity.Credential, body []byte) error {
	token, err := authToken(cred, req.Method, req.URL.RequestURI(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", token)
	return nil
}

// send performs the request and decodes the result of the cfssl response
// envelope into result
func (c *Client) send(req *http.Request, stage errkind.Stage, result interface{}) error {
	logger.Debugf("sending %s %s", req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errkind.Wrap(err, errkind.Transport, stage, "%s %s failed", req.Method, req.URL.Path)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("failed to close the response body: %s", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errkind.Wrap(err, errkind.Transport, stage, "failed to read response of %s", req.URL.Path)
	}
	logger.Debugf("received status %d for %s", resp.StatusCode, req.URL.Path)

	var body cfsslapi.Response
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &body); err != nil {
			if resp.StatusCode >= http.StatusInternalServerError {
				return errkind.New(errkind.Transport, stage, "authority returned status %d for %s", resp.StatusCode, req.URL.Path)
			}
			return errkind.Wrap(err, errkind.Unknown, stage, "failed to parse response of %s", req.URL.Path)
		}
		if len(body.Errors) > 0 {
			return serverError(stage, resp.StatusCode, body.Errors)
		}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return errkind.New(errkind.Transport, stage, "authority returned status %d for %s", resp.StatusCode, req.URL.Path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errkind.New(errkind.AccessDenied, stage, "authority returned status %d for %s", resp.StatusCode, req.URL.Path)
	case resp.StatusCode >= http.StatusBadRequest:
		return errkind.New(errkind.Unknown, stage, "authority returned status %d for %s", resp.StatusCode, req.URL.Path)
	case len(respBody) == 0:
		return errkind.New(errkind.Unknown, stage, "empty response body for %s", req.URL.Path)
	case !body.Success:
		return errkind.New(errkind.Unknown, stage, "authority returned failure for %s", req.URL.Path)
	}

	if result != nil {
		if err := mapstructure.Decode(body.Result, result); err != nil {
			return errkind.Wrap(err, errkind.Unknown, stage, "failed to decode result of %s", req.URL.Path)
		}
	}
	return nil
}

func serverError(stage errkind.Stage, status int, messages []cfsslapi.ResponseMessage) error {
	kind := errkind.Unknown
	var texts []string
	for _, m := range messages {
		texts = append(texts, fmt.Sprintf("code %d: %s", m.Code, m.Message))
		if kind == errkind.Unknown {
			kind = serverErrorKind(stage, m)
		}
	}
	if kind == errkind.Unknown && status >= http.StatusInternalServerError {
		kind = errkind.Transport
	}
	return errkind.New(kind, stage, "authority rejected the request: %s", strings.Join(texts, "; "))
}

func serverErrorKind(stage errkind.Stage, m cfsslapi.ResponseMessage) errkind.Kind {
	concernsAttributes := strings.Contains(strings.ToLower(m.Message), "attribute")

	switch m.Code {
	case errCodeIdentityNotFound:
		return errkind.NotFound
	case errCodeAlreadyRegistered:
		return errkind.AlreadyRegistered
	case errCodeAuthenticationFailure:
		return errkind.AccessDenied
	case errCodeAuthorizationFailure:
		if concernsAttributes {
			return errkind.AttributeRejected
		}
		return errkind.AdminIdentityMissing
	}

	if concernsAttributes && (stage == errkind.StageEnroll || stage == errkind.StageReenroll) {
		return errkind.AttributeRejected
	}
	return errkind.Unknown
}

func newCSR(cn string) ([]byte, []byte, error) {
	return csr.ParseRequest(&csr.CertificateRequest{CN: cn, KeyRequest: csr.NewKeyRequest()})
}
