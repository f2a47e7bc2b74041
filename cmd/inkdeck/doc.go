// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for inkdeck.
//
// This package implements the Cobra command hierarchy for the inkdeck
// CLI: environment management, interpreter discovery, script execution
// with live log tailing, run history, and configuration inspection.
package cmd
