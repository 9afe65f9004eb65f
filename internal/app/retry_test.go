package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/quill/internal/apperr"
)

var testRetry = RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func TestRetryBusy(t *testing.T) {
	conflict := fmt.Errorf("failed to update: %w", apperr.ErrPersistenceConflict)
	notFound := fmt.Errorf("%w: item ch-01", apperr.ErrBacklogItemNotFound)

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   error
		wantBusy  bool
	}{
		{name: "success first try", wantCalls: 1},
		{name: "conflict then success", failures: []error{conflict, conflict}, wantCalls: 3},
		{name: "conflict exhausts budget", failures: []error{conflict, conflict, conflict, conflict}, wantCalls: 3, wantErr: apperr.ErrPersistenceConflict, wantBusy: true},
		{name: "permanent error returned as is", failures: []error{notFound}, wantCalls: 1, wantErr: apperr.ErrBacklogItemNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			v, err := retryBusy(context.Background(), testRetry, "test", func() (int, error) {
				calls++
				if calls <= len(tt.failures) {
					return 0, tt.failures[calls-1]
				}
				return 42, nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if v != 42 {
					t.Errorf("value = %d, want 42", v)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := errors.Is(err, apperr.ErrBusy); got != tt.wantBusy {
				t.Errorf("busy = %v, want %v (err %v)", got, tt.wantBusy, err)
			}
			if !tt.wantBusy && err != tt.failures[0] {
				t.Errorf("err = %#v, want the original error", err)
			}
		})
	}
}
