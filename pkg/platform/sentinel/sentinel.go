// Package sentinel holds the record-level facts stores report. Services
// translate them into domain errors; handlers never see them directly.
package sentinel

import "errors"

var (
	// ErrNotFound means no row matched the lookup key.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint rejected the write, such as
	// a reused tx_ref or a second account for one subscription.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyUsed means a claimed name (a learner username) belongs to
	// another record.
	ErrAlreadyUsed = errors.New("already used")
)
