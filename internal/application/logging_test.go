package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want string
	}{
		"nil":          {nil, ""},
		"not found":    {fmt.Errorf("court: %w", ErrNotFound), "not_found"},
		"conflict":     {&SlotConflictError{}, "slot_conflict"},
		"stock":        {&OutOfStockError{}, "out_of_stock"},
		"payment":      {&PaymentFailedError{Status: "DECLINED"}, "payment_failed"},
		"concurrent":   {ErrConcurrentUpdate, "concurrent_update"},
		"confirmation": {&ConfirmationRequiredError{}, "confirmation_required"},
		"transition":   {ErrIllegalTransition, "illegal_transition"},
		"cancelled":    {context.Canceled, "cancelled"},
		"network":      {&NetworkError{Op: "store", Err: context.DeadlineExceeded}, "network"},
		"validation":   {newValidationError("date", "bad"), "validation"},
		"unexpected":   {errors.New("boom"), "unexpected"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
