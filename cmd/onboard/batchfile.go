/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"
	"os"

	"github.com/foodtrace/onboarding-sdk-go/pkg/onboard"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type batchFile struct {
	Requests []onboard.Request `yaml:"requests"`
}

func readBatchFile(name string) ([]onboard.Request, error) {
	content, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read batch file [%s]", name)
	}
	return parseBatch(content)
}

// parseBatch decodes a YAML request list. Nested payload maps are converted
// to string keys so that payloads encode as JSON.
func parseBatch(content []byte) ([]onboard.Request, error) {
	var f batchFile
	if err := yaml.UnmarshalStrict(content, &f); err != nil {
		return nil, errors.Wrap(err, "invalid batch file")
	}
	if len(f.Requests) == 0 {
		return nil, errors.New("batch file lists no requests")
	}

	for i := range f.Requests {
		for k, v := range f.Requests[i].Payload {
			f.Requests[i].Payload[k] = normalize(v)
		}
	}
	return f.Requests, nil
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []interface{}:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	}
	return v
}
