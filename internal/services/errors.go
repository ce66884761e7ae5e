package services

import (
	"errors"
	"log"
	"time"

	"friendfeed/internal/apperrors"
	"friendfeed/internal/storage"
)

// Clock returns the current time. Services take one so cooldown windows can be tested.
type Clock func() time.Time

func utcNow() time.Time {
	// Postgres keeps microseconds; truncating here keeps stored and in-memory values equal.
	return time.Now().UTC().Truncate(time.Microsecond)
}

// storeErr logs an infrastructure failure and turns it into an Unavailable error.
// Errors that already carry a kind pass through unchanged.
func storeErr(op string, err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	log.Printf("Error in %s: %v", op, err)
	return apperrors.Unavailable("service temporarily unavailable", err)
}

// notFoundAs maps storage.ErrNotFound to nf and anything else to storeErr.
func notFoundAs(op string, err error, nf *apperrors.Error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nf
	}
	return storeErr(op, err)
}
