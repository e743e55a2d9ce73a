/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Command onboard issues participant credentials and records participants on
// the ledger. Every command prints its result as JSON and exits non-zero
// unless the result status is 200.
package main

import (
	"fmt"
	"os"

	"github.com/hyperledger/fabric-sdk-go/pkg/common/logging"
	"github.com/urfave/cli/v2"
)

var logger = logging.NewLogger("onboard/cli")

var flagConfig = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   "onboard.yaml",
	Usage:   "Path to the configuration file",
	EnvVars: []string{"ONBOARD_CONFIG"},
}

var flagMetricsAddr = &cli.StringFlag{
	Name:  "metrics-addr",
	Usage: "Address to serve Prometheus metrics on while the command runs, disabled if empty",
}

var flagID = &cli.StringFlag{
	Name:     "id",
	Required: true,
	Usage:    "Participant ID",
}

var flagAdmin = &cli.StringFlag{
	Name:  "admin",
	Usage: "Administrative identity acting for the request, defaults to onboard.adminContext",
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "onboard",
		Usage: "issue participant credentials and onboard participants to the ledger",
		Flags: []cli.Flag{
			flagConfig,
			flagMetricsAddr,
		},
		Commands: []*cli.Command{
			onboardCommand(),
			loginCommand(),
			batchCommand(),
			offboardCommand(),
			reissueCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
