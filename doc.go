/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package onboardingsdk enables Go developers to issue participant credentials
// from a Fabric CA and record participants on a Hyperledger Fabric ledger.
//
// Packages for end developer usage
//
// pkg/onboard: The main package. The Orchestrator sequences credential
// issuance, credential storage and the ledger onboarding transaction, and is
// safe to call repeatedly for the same participant.
//
// pkg/policy: The role policy table. Every role maps to an affiliation, a
// membership organization, the attributes its credential must carry and the
// onboarding transaction it is recorded with.
//
// pkg/store: Durable credential storage over filesystem, memory, Vault or SQL
// backends.
//
// pkg/authority: Credential issuance. pkg/authority/fabricca talks to a
// Fabric CA server.
//
// pkg/ledger: Onboarding transaction submission. pkg/ledger/fabricgw talks to
// the network through the Fabric SDK gateway.
//
// pkg/classifier: Maps failures to outcome codes and caller-facing status
// codes.
//
// Basic workflow
//
//      1) Load a configuration with pkg/core/config.
//      2) Open the identity store once per process with store.Open.
//      3) Create the authority and ledger clients and pass them, with the
//         store, to onboard.New.
//      4) Call Onboard, OnboardAll or Login.
//      5) Close the store on shutdown.
//
// cmd/onboard wires these steps into a command line tool.
package onboardingsdk
