package srv

import (
	"context"
	"errors"
)

// cleanupService only acts on shutdown.
type cleanupService struct {
	fns []func() error
}

func (c *cleanupService) Start(ctx context.Context) error {
	return nil
}

// Shutdown runs every cleanup in reverse registration order, even when an
// earlier one fails, and joins the errors.
func (c *cleanupService) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(c.fns) - 1; i >= 0; i-- {
		if c.fns[i] == nil {
			continue
		}
		if err := c.fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewCleanup wraps fns as a Service that only acts on shutdown, typically
// closing a database and the caches in front of it.
func NewCleanup(fns ...func() error) Service {
	return &cleanupService{fns: fns}
}
