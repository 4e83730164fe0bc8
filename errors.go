package permission

import "errors"

var (
	// ErrHierarchyCycle reports a parent chain that loops back on itself.
	// Expansion of the affected branch is aborted and the grant is treated
	// as exact-match only.
	ErrHierarchyCycle = errors.New("permission hierarchy cycle")

	// ErrUnknownPermission reports a grant referencing a permission id that
	// is not in the catalog.
	ErrUnknownPermission = errors.New("unknown permission")

	// ErrMalformedPolicy reports a dynamic policy name outside the grammar.
	ErrMalformedPolicy = errors.New("malformed policy name")

	// ErrMalformedConditions reports a Conditions blob that cannot be parsed.
	// The owning grant is unsatisfiable.
	ErrMalformedConditions = errors.New("malformed grant conditions")

	// ErrStoreUnavailable wraps grant-store failures during resolution.
	ErrStoreUnavailable = errors.New("grant store unavailable")
)
