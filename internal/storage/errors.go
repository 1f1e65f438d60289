package storage

import (
	"context"
	"errors"

	"github.com/timmy/petmatch/internal/apperr"
)

// classify maps a backend error onto the pipeline error kinds.
func classify(op, message string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(op, err)
	}
	return apperr.Upstream(op, message, err)
}
