// SPDX-License-Identifier: MPL-2.0

package script

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// CheckShellSyntax parses source as a POSIX-compatible shell script and
// returns a descriptive error when it does not parse. Only shell scripts are
// checked; other languages are accepted unchanged since no in-process parser
// exists for them.
func CheckShellSyntax(lang Language, source string) error {
	if lang != LanguageShell {
		return nil
	}
	if _, err := syntax.NewParser().Parse(strings.NewReader(source), "script"); err != nil {
		return fmt.Errorf("shell syntax error: %w", err)
	}
	return nil
}
