package amm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type compensation struct {
	name string
	fn   func(context.Context) error
}

// unwinder records how to reverse each ledger call made by an operation.
type unwinder struct {
	steps []compensation
}

func (u *unwinder) push(name string, fn func(context.Context) error) {
	u.steps = append(u.steps, compensation{name: name, fn: fn})
}

// unwind reverses recorded steps newest first. It keeps going after a failure
// and runs detached from caller cancellation.
func (u *unwinder) unwind(ctx context.Context, logger *zap.Logger) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if err := step.fn(ctx); err != nil {
			logger.Error("compensation failed", zap.String("step", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrCompensationFailed, step.name, err))
		}
	}
	return errors.Join(errs...)
}

func ledgerError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLedgerRejected, step, err)
}
