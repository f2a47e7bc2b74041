// SPDX-License-Identifier: MPL-2.0

package envstore

import "strings"

// PinSpec renders a PackageSpec as a pip requirement specifier.
//
// An absent version or the literal "latest" yields the bare name. Versions
// beginning with a comparison operator or containing a wildcard are passed
// through unmodified (range semantics); anything else is pinned with exact
// equality.
func PinSpec(spec PackageSpec) string {
	v := strings.TrimSpace(spec.Version)
	if v == "" || strings.EqualFold(v, "latest") {
		return spec.Name
	}
	if strings.HasPrefix(v, "<") || strings.HasPrefix(v, ">") ||
		strings.HasPrefix(v, "=") || strings.HasPrefix(v, "!") ||
		strings.HasPrefix(v, "~") || strings.Contains(v, "*") {
		return spec.Name + v
	}
	return spec.Name + "==" + v
}

// PinSpecs renders every spec in order.
func PinSpecs(specs []PackageSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = PinSpec(s)
	}
	return out
}
