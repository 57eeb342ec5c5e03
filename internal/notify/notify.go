package notify

import (
	"context"
	"errors"

	"mathchrono-quiz-service/internal/domain"
)

// Notifier is informed after a result has been stored.
type Notifier interface {
	NotifyResult(ctx context.Context, result domain.Result) error
}

// Multi fans a result out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) NotifyResult(ctx context.Context, result domain.Result) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyResult(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) NotifyResult(context.Context, domain.Result) error { return nil }
