package notify

import (
	"context"
	"errors"

	"github.com/ltpalert/ltpalert/alert"
)

// Multi emits to every notifier and joins their errors. One failing sink does
// not keep the others from delivering.
func Multi(notifiers ...alert.Notifier) alert.Notifier {
	return multi(notifiers)
}

type multi []alert.Notifier

func (m multi) Emit(ctx context.Context, e alert.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
