// SPDX-License-Identifier: MPL-2.0

// Package config loads inkdeck configuration.
//
// Configuration lives in a CUE file under the platform config directory
// (config.cue). The file is validated against an embedded schema before
// its contents are merged over the defaults via Viper, so a typo in a
// key or an out-of-range value fails loudly at startup instead of being
// silently ignored.
package config
