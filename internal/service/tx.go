package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnatolyKozmin/Shend/pkg/database"
)

type txBeginner interface {
	BeginTx(ctx context.Context) (database.Tx, error)
}

// commitThen lets a transaction body keep its writes while still failing
// the operation, e.g. when a claim repairs a stale availability flag.
type commitThen struct {
	err error
}

func (c commitThen) Error() string { return c.err.Error() }
func (c commitThen) Unwrap() error { return c.err }

// withTx runs fn in a transaction. It commits when fn returns nil or a
// commitThen error and rolls back on every other exit path, panics included.
func withTx(ctx context.Context, beginner txBeginner, fn func(tx database.Tx) error) (err error) {
	tx, err := beginner.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	fnErr := fn(tx)
	var keep commitThen
	if fnErr != nil && !errors.As(fnErr, &keep) {
		return fnErr
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	if fnErr != nil {
		return keep.err
	}
	return nil
}
