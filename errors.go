package envgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/envgo/store"
)

var (
	// ErrNotFound is returned when a digest is not in the store.
	ErrNotFound = errors.New("not found")
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}
