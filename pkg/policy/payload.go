/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package policy

import (
	"strings"

	"github.com/foodtrace/onboarding-sdk-go/pkg/common/errors/errkind"
)

// PayloadShape lists the business fields an onboarding payload must carry
type PayloadShape struct {
	Required []string
}

// Validate checks that every required field is present and, for strings,
// non-blank. All missing fields are reported in a single InvalidPayload error.
func (s PayloadShape) Validate(payload map[string]interface{}) error {
	var missing []string
	for _, field := range s.Required {
		v, ok := payload[field]
		if !ok || v == nil {
			missing = append(missing, field)
			continue
		}
		if str, ok := v.(string); ok && strings.TrimSpace(str) == "" {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return errkind.New(errkind.InvalidPayload, errkind.StageValidate,
			"payload is missing required fields [%s]", strings.Join(missing, ", "))
	}
	return nil
}
