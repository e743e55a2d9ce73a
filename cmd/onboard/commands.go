/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/foodtrace/onboarding-sdk-go/pkg/classifier"
	"github.com/foodtrace/onboarding-sdk-go/pkg/onboard"
	"github.com/foodtrace/onboarding-sdk-go/pkg/policy"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func onboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "onboard",
		Usage: "issue a credential for a participant and record it on the ledger",
		Flags: []cli.Flag{
			flagID,
			flagAdmin,
			&cli.StringFlag{
				Name:     "role",
				Required: true,
				Usage:    "Participant role",
			},
			&cli.StringFlag{
				Name:  "payload",
				Value: "{}",
				Usage: "Onboarding payload as a JSON object",
			},
		},
		Action: func(cCtx *cli.Context) error {
			role, err := policy.ParseRole(cCtx.String("role"))
			if err != nil {
				return err
			}
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(cCtx.String("payload")), &payload); err != nil {
				return errors.Wrap(err, "payload must be a JSON object")
			}

			env, err := newEnvironment(cCtx, needAuthority|needLedger)
			if err != nil {
				return err
			}
			defer env.close()

			r := env.orchestrator.Onboard(cCtx.Context, onboard.Request{
				ParticipantID: cCtx.String(flagID.Name),
				Role:          role,
				AdminContext:  cCtx.String(flagAdmin.Name),
				Payload:       payload,
			})
			return printResult(cCtx.App.Writer, r, r.StatusCode)
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "check that a participant holds a stored credential",
		Flags: []cli.Flag{flagID},
		Action: func(cCtx *cli.Context) error {
			env, err := newEnvironment(cCtx, 0)
			if err != nil {
				return err
			}
			defer env.close()

			r := env.orchestrator.Login(cCtx.String(flagID.Name))
			return printResult(cCtx.App.Writer, r, r.StatusCode)
		},
	}
}

type batchSummary struct {
	RunID     string            `json:"runId"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []*onboard.Result `json:"results"`
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "onboard every participant listed in a YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Required: true,
				Usage:    "Path to the YAML request file",
			},
		},
		Action: func(cCtx *cli.Context) error {
			reqs, err := readBatchFile(cCtx.String("file"))
			if err != nil {
				return err
			}

			env, err := newEnvironment(cCtx, needAuthority|needLedger)
			if err != nil {
				return err
			}
			defer env.close()

			summary := &batchSummary{RunID: uuid.New().String()}
			logger.Infof("batch run [%s]: onboarding %d participants", summary.RunID, len(reqs))

			summary.Results = env.orchestrator.OnboardAll(cCtx.Context, reqs)
			for _, r := range summary.Results {
				if r.StatusCode == http.StatusOK {
					summary.Succeeded++
				} else {
					summary.Failed++
					logger.Warnf("batch run [%s]: %s (retryable: %t)", summary.RunID, r.Message, classifier.Retryable(r.Code))
				}
			}
			logger.Infof("batch run [%s]: %d succeeded, %d failed", summary.RunID, summary.Succeeded, summary.Failed)

			status := http.StatusOK
			if summary.Failed > 0 {
				status = http.StatusMultiStatus
			}
			return printResult(cCtx.App.Writer, summary, status)
		},
	}
}

func offboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "offboard",
		Usage: "remove a participant's stored credential",
		Flags: []cli.Flag{
			flagID,
			flagAdmin,
			&cli.BoolFlag{
				Name:  "revoke",
				Usage: "Revoke the participant's certificates with the authority first",
			},
			&cli.StringFlag{
				Name:  "reason",
				Usage: "Revocation reason",
			},
			&cli.BoolFlag{
				Name:  "deregister",
				Usage: "Remove the participant's registration from the authority so it can be onboarded again",
			},
		},
		Action: func(cCtx *cli.Context) error {
			var needs component
			var opts []onboard.OffboardOption
			if cCtx.Bool("revoke") {
				needs = needAuthority
				opts = append(opts, onboard.WithRevocation(cCtx.String("reason")))
			}
			if cCtx.Bool("deregister") {
				needs = needAuthority
				opts = append(opts, onboard.WithDeregistration())
			}

			env, err := newEnvironment(cCtx, needs)
			if err != nil {
				return err
			}
			defer env.close()

			id := cCtx.String(flagID.Name)
			err = env.orchestrator.Offboard(cCtx.Context, id, cCtx.String(flagAdmin.Name), opts...)
			return printOperation(cCtx.App.Writer, id, "participant offboarded", err)
		},
	}
}

func reissueCommand() *cli.Command {
	return &cli.Command{
		Name:  "reissue",
		Usage: "renew a participant's certificate and replace the stored credential",
		Flags: []cli.Flag{
			flagID,
			&cli.StringFlag{
				Name:  "role",
				Usage: "Participant role; defaults to the role the participant was onboarded as",
			},
		},
		Action: func(cCtx *cli.Context) error {
			var role policy.Role
			if name := cCtx.String("role"); name != "" {
				var err error
				if role, err = policy.ParseRole(name); err != nil {
					return err
				}
			}

			env, err := newEnvironment(cCtx, needAuthority)
			if err != nil {
				return err
			}
			defer env.close()

			id := cCtx.String(flagID.Name)
			_, err = env.orchestrator.Reissue(cCtx.Context, id, role)
			return printOperation(cCtx.App.Writer, id, "credential reissued", err)
		},
	}
}

type operationResult struct {
	StatusCode    int    `json:"statusCode"`
	ParticipantID string `json:"participantId"`
	Message       string `json:"message"`
}

func printOperation(w io.Writer, id, done string, err error) error {
	r := &operationResult{StatusCode: classifier.StatusCode(err), ParticipantID: id, Message: done}
	if err != nil {
		r.Message = err.Error()
	}
	return printResult(w, r, r.StatusCode)
}

// printResult writes v as JSON and turns a status other than 200 into a
// non-zero exit
func printResult(w io.Writer, v interface{}, status int) error {
	if w == nil {
		w = os.Stdout
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode result")
	}
	fmt.Fprintln(w, string(out))

	if status != http.StatusOK {
		return cli.Exit("", 1)
	}
	return nil
}
