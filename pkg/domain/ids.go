// Package domain holds the shared identifier types used across services.
//
// Keeping them in one leaf package prevents import cycles between stores,
// services, and transports, and makes accidental mixing of identifier kinds
// a compile error.
package domain

import "strconv"

// IdentityID is the sequential ledger identifier of an identity record.
// IDs start at 1, are assigned monotonically, and are never reused.
type IdentityID uint64

// IsZero reports whether the ID is unassigned.
func (id IdentityID) IsZero() bool { return id == 0 }

func (id IdentityID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseIdentityID parses a decimal identity id. Zero is not a valid id.
func ParseIdentityID(s string) (IdentityID, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return IdentityID(n), true
}

// AccountID is an opaque external account address. The registry never
// interprets its contents beyond emptiness checks and exact comparison.
type AccountID string

// IsZero reports whether the account address is empty.
func (a AccountID) IsZero() bool { return a == "" }

func (a AccountID) String() string { return string(a) }

// ModuleKey uniquely names a registered capability module.
type ModuleKey string

func (k ModuleKey) String() string { return string(k) }

// Amount is a protocol payment amount in base units. All pricing math is
// integer-only; there is no fractional unit.
type Amount uint64

// Height is the ledger's logical clock. Every committed mutation advances
// it by one, so height differences double as age measurements.
type Height uint64
