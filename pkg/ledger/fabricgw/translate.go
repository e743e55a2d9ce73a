/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fabricgw

import (
	"regexp"

	"github.com/foodtrace/onboarding-sdk-go/pkg/classifier"
	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
	cb "github.com/hyperledger/fabric-protos-go/common"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/errors/status"
	"github.com/pkg/errors"
	grpccodes "google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Response codes the onboarding chaincode sets on shim.Error payloads.
const (
	chaincodeUnauthorized = 401
	chaincodeConflict     = 409
)

var (
	missingAttributeText = regexp.MustCompile(`(?i)(?:attribute\s+['"]?(?:role|uuid)['"]?|\b(?:role|uuid)\s+attribute)\s+(?:is\s+)?(?:missing|not found|not present)\b` +
		`|\bmissing\s+(?:required\s+)?attribute\s+['"]?(?:role|uuid)\b`)
	accessDeniedText     = regexp.MustCompile(`(?i)\b(?:access denied|permission denied|(?:is\s+)?not authorized to)\b`)
	alreadyOnboardedText = regexp.MustCompile(`(?i)\balready onboarded\b|\b(?:participant|regulator|farmer|manufacturer|laboratory|labOverseer)\s+\S+\s+already exists\b`)
)

// translate maps gateway and chaincode failures onto errkind kinds. Peer
// status codes decide first; chaincode text is matched only when the codes
// say nothing. Unmatched failures keep their text verbatim with the Unknown
// kind.
func translate(err error, stage errkind.Stage) error {
	if _, ok := errkind.FromError(err); ok {
		return err
	}

	if s, ok := status.FromError(err); ok {
		switch s.Group {
		case status.EventServerStatus:
			return validationError(err, s, stage)
		case status.ChaincodeStatus, status.EndorserServerStatus:
			if kind, ok := responseKind(s.Code); ok {
				return wrapKind(err, kind, stage)
			}
			return wrapKind(err, textKind(s.Message), stage)
		}
	}

	if isTransport(err) {
		return wrapKind(err, errkind.Transport, stage)
	}
	return wrapKind(err, textKind(err.Error()), stage)
}

// validationError handles transactions the committing peer rejected. The
// validation code is authoritative, so no text is consulted.
func validationError(err error, s *status.Status, stage errkind.Stage) error {
	switch peer.TxValidationCode(s.Code) {
	case peer.TxValidationCode_ENDORSEMENT_POLICY_FAILURE:
		return errkind.Wrap(err, errkind.AccessDenied, stage, "endorsement policy not satisfied")
	case peer.TxValidationCode_BAD_CREATOR_SIGNATURE:
		return errkind.Wrap(err, errkind.AccessDenied, stage, "transaction creator rejected")
	}
	return wrapKind(err, errkind.Unknown, stage)
}

func responseKind(code int32) (errkind.Kind, bool) {
	switch code {
	case chaincodeUnauthorized, int32(cb.Status_FORBIDDEN):
		return errkind.AccessDenied, true
	case chaincodeConflict:
		return errkind.AlreadyOnboarded, true
	case int32(cb.Status_SERVICE_UNAVAILABLE):
		return errkind.Transport, true
	}
	return errkind.Unknown, false
}

func textKind(text string) errkind.Kind {
	switch {
	case missingAttributeText.MatchString(text):
		return errkind.MissingAttributes
	case accessDeniedText.MatchString(text):
		return errkind.AccessDenied
	case alreadyOnboardedText.MatchString(text):
		return errkind.AlreadyOnboarded
	}
	return errkind.Unknown
}

func wrapKind(err error, kind errkind.Kind, stage errkind.Stage) error {
	switch kind {
	case errkind.MissingAttributes:
		return errkind.Wrap(err, kind, stage, "acting identity lacks required attributes")
	case errkind.AccessDenied:
		return errkind.Wrap(err, kind, stage, "access denied")
	case errkind.AlreadyOnboarded:
		return errkind.Wrap(err, kind, stage, "participant already onboarded")
	case errkind.Transport:
		return errkind.Wrap(err, kind, stage, "ledger unavailable")
	}
	return errkind.Wrap(err, errkind.Unknown, stage, "gateway request failed")
}

func isTransport(err error) bool {
	if classifier.Classify(err) == classifier.TransportUnavailable {
		return true
	}
	if s, ok := grpcstatus.FromError(errors.Cause(err)); ok {
		return s.Code() == grpccodes.Unavailable || s.Code() == grpccodes.DeadlineExceeded
	}
	return false
}
