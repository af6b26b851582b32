package domain

import "errors"

var (
	// ErrValidation rejects zero/negative amounts, malformed ranges, and
	// missing required fields before any state is touched.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound signals an unknown project, milestone, market, or bond.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized signals a caller lacking the sponsor or oracle
	// capability. Kept distinct from ErrNotFound so callers can tell
	// "doesn't exist" from "you can't do this".
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStateConflict signals an ordering bug in the caller: double bond
	// creation, re-verifying a completed milestone, re-resolving a market,
	// or mutating a terminal-status project.
	ErrStateConflict = errors.New("state conflict")

	// ErrInsufficientFunds rejects a transfer or claim exceeding the
	// available collateral balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientShares rejects a sell or transfer exceeding the held
	// bond or outcome share balance.
	ErrInsufficientShares = errors.New("insufficient shares")
)
