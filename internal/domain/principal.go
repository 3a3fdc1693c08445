package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Principal identifies an authenticated party (issuer treasury, holder, or
// borrower) as a checksummed Ethereum-style address. The hosting environment
// authenticates the principal before a core operation runs; services trust
// the identity they receive.
type Principal string

// ParsePrincipal validates and normalizes a hex address into a Principal.
func ParsePrincipal(s string) (Principal, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("domain: invalid principal address %q", s)
	}
	return Principal(common.HexToAddress(s).Hex()), nil
}

// MustPrincipal is ParsePrincipal for known-good literals; it panics on
// malformed input.
func MustPrincipal(s string) Principal {
	p, err := ParsePrincipal(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Principal) String() string { return string(p) }

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool { return p == "" }
