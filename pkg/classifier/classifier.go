/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package classifier maps failures returned by the onboarding components to a
// closed set of outcome codes and to the status codes exposed to callers.
//
// Classification is driven by the structured kinds carried by errkind errors.
// Errors that carry no kind are inspected for context expiry, network errors
// and Fabric SDK status groups. Anything else is Unknown and its text is kept
// verbatim for operator diagnosis.
package classifier

import (
	"context"
	"net"
	"net/http"

	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/errors/status"
	"github.com/pkg/errors"
	grpccodes "google.golang.org/grpc/codes"
)

// Code is a classified outcome
type Code int32

const (
	// OK no failure
	OK Code = iota
	// AccessDenied the acting credential lacks permission
	AccessDenied
	// AlreadyExists the operation was already carried out
	AlreadyExists
	// MissingAttributes the acting credential lacks required attribute claims
	MissingAttributes
	// InvalidPayload the request is malformed
	InvalidPayload
	// TransportUnavailable the authority or the ledger could not be reached in time
	TransportUnavailable
	// Unknown unrecognized failure
	Unknown
)

var codeName = map[Code]string{
	OK:                   "OK",
	AccessDenied:         "AccessDenied",
	AlreadyExists:        "AlreadyExists",
	MissingAttributes:    "MissingAttributes",
	InvalidPayload:       "InvalidPayload",
	TransportUnavailable: "TransportUnavailable",
	Unknown:              "Unknown",
}

func (c Code) String() string {
	if s, ok := codeName[c]; ok {
		return s
	}
	return codeName[Unknown]
}

// MarshalText encodes the code by name
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

var kindCode = map[errkind.Kind]Code{
	errkind.AccessDenied:         AccessDenied,
	errkind.AdminIdentityMissing: AccessDenied,
	errkind.AttributeRejected:    AccessDenied,
	errkind.IdentityNotFound:     AccessDenied,
	errkind.AlreadyExists:        AlreadyExists,
	errkind.AlreadyRegistered:    AlreadyExists,
	errkind.AlreadyOnboarded:     AlreadyExists,
	errkind.Conflict:             AlreadyExists,
	errkind.MissingAttributes:    MissingAttributes,
	errkind.InvalidPayload:       InvalidPayload,
	errkind.UnsupportedRole:      InvalidPayload,
	errkind.Transport:            TransportUnavailable,
}

// Classify returns the outcome code of err. A nil error is OK.
func Classify(err error) Code {
	if err == nil {
		return OK
	}

	if e, ok := errkind.FromError(err); ok {
		if code, ok := kindCode[e.Kind]; ok {
			return code
		}
		if e.Kind != errkind.Unknown {
			return Unknown
		}
	}

	if isTransport(err) {
		return TransportUnavailable
	}

	return Unknown
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Group {
	case status.GRPCTransportStatus:
		code := status.ToGRPCStatusCode(s.Code)
		return code == grpccodes.Unavailable || code == grpccodes.DeadlineExceeded
	case status.EndorserClientStatus, status.OrdererClientStatus, status.ClientStatus:
		code := status.ToSDKStatusCode(s.Code)
		return code == status.ConnectionFailed || code == status.Timeout
	}
	return false
}

// StatusCode returns the caller-facing status code for err
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch errkind.KindOf(err) {
	case errkind.UnsupportedRole, errkind.InvalidPayload, errkind.AdminIdentityMissing,
		errkind.AttributeRejected, errkind.IdentityNotFound, errkind.NotFound:
		return http.StatusBadRequest
	case errkind.AccessDenied, errkind.MissingAttributes:
		return http.StatusForbidden
	case errkind.AlreadyExists, errkind.AlreadyRegistered, errkind.AlreadyOnboarded, errkind.Conflict:
		return http.StatusConflict
	}

	switch Classify(err) {
	case AccessDenied, MissingAttributes:
		return http.StatusForbidden
	case InvalidPayload:
		return http.StatusBadRequest
	case AlreadyExists:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// NeedsCredentialReissue reports whether the code signals that the acting
// credential must be re-issued with the missing attribute requests. The
// onboarding pipeline never re-issues a credential by itself.
func NeedsCredentialReissue(code Code) bool {
	return code == MissingAttributes
}

// Retryable reports whether the whole operation may be retried by the caller
func Retryable(code Code) bool {
	return code == TransportUnavailable
}
