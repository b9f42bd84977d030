// Package domain defines the typed identity primitives shared across covault.
//
// Identities are validated at trust boundaries via the Parse functions; code
// past those boundaries can assume a non-nil, canonical value.
package domain

import (
	"strconv"
	"strings"

	dErrors "covault/pkg/domain-errors"
)

// Principal is the opaque identity of an owner eligible to participate in
// governance and confirmations. The engine never interprets the value beyond
// equality; canonicalization (trim + lowercase) happens at parse time so two
// spellings of the same identity cannot both join the member set.
type Principal string

// MaxPrincipalLen bounds principal identities to keep audit records and
// journal rows sane. Address-style identities are far below this.
const MaxPrincipalLen = 128

// ParsePrincipal validates and canonicalizes a principal identity.
// The zero identity is rejected; membership of the empty principal would make
// every quorum check meaningless.
func ParsePrincipal(s string) (Principal, error) {
	canonical := strings.ToLower(strings.TrimSpace(s))
	if canonical == "" {
		return "", dErrors.New(dErrors.CodeInvalidPrincipal, "principal identity cannot be empty")
	}
	if len(canonical) > MaxPrincipalLen {
		return "", dErrors.New(dErrors.CodeInvalidPrincipal, "principal identity exceeds maximum length")
	}
	return Principal(canonical), nil
}

// String returns the canonical string form.
func (p Principal) String() string {
	return string(p)
}

// IsNil reports whether the principal is the zero identity.
func (p Principal) IsNil() bool {
	return p == ""
}

// EntryIndex is the external handle of a ledger entry, assigned sequentially
// at submission and immutable thereafter.
type EntryIndex uint64

// ParseEntryIndex parses a decimal entry index from its wire form.
func ParseEntryIndex(s string) (EntryIndex, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "entry index must be a non-negative integer")
	}
	return EntryIndex(n), nil
}

// String returns the decimal string form.
func (i EntryIndex) String() string {
	return strconv.FormatUint(uint64(i), 10)
}
