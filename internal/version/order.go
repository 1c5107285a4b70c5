// Package version orders the opaque version strings a registry publishes.
package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/swiftos/birdy/internal/messages"
)

// Order selects how version strings are compared.
type Order string

const (
	// OrderLexical compares versions as plain strings. "1.10.0" sorts below "1.2.0";
	// this matches what the registry's clients have always done.
	OrderLexical Order = "lexical"
	// OrderSemver compares versions as semantic versions (a leading "v" is optional).
	// Strings that are not valid semver rank below every valid one and are ordered
	// lexically among themselves.
	OrderSemver Order = "semver"
)

// ParseOrder validates raw as an Order. An empty string selects OrderLexical.
func ParseOrder(raw string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(raw))) {
	case "", OrderLexical:
		return OrderLexical, nil
	case OrderSemver:
		return OrderSemver, nil
	default:
		return "", fmt.Errorf(messages.VersionUnknownOrderFmt, raw)
	}
}

// Compare returns -1, 0, or 1 depending on whether a sorts before, equal to, or after b.
func Compare(order Order, a string, b string) int {
	if order == OrderSemver {
		ca, okA := canonical(a)
		cb, okB := canonical(b)
		switch {
		case okA && okB:
			if c := semver.Compare(ca, cb); c != 0 {
				return c
			}
		case okA:
			return 1
		case okB:
			return -1
		}
	}
	return strings.Compare(a, b)
}

// Max returns the greatest non-empty version under order.
// It reports false when versions holds no candidate.
func Max(order Order, versions []string) (string, bool) {
	best := ""
	found := false
	for _, v := range versions {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if !found || Compare(order, v, best) > 0 {
			best = v
			found = true
		}
	}
	return best, found
}

func canonical(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v, semver.IsValid(v)
}
