package apperrors

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestHandleRunError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		err        error
		duration   time.Duration
		wantCode   int
		wantOutput string
	}{
		{
			name:     "nil error is success",
			err:      nil,
			wantCode: ExitSuccess,
		},
		{
			name:       "context canceled",
			err:        context.Canceled,
			duration:   2 * time.Second,
			wantCode:   ExitErrorCanceled,
			wantOutput: "Canceled",
		},
		{
			name:       "deadline exceeded is treated as canceled",
			err:        context.DeadlineExceeded,
			wantCode:   ExitErrorCanceled,
			wantOutput: "Canceled",
		},
		{
			name:       "config error",
			err:        NewConfigError("kain history must be >= 0"),
			wantCode:   ExitErrorConfig,
			wantOutput: "Configuration",
		},
		{
			name:       "deck validation error",
			err:        NewValidationError("system.grid.order", "must be in [1, 40]", 99),
			wantCode:   ExitErrorConfig,
			wantOutput: "Configuration",
		},
		{
			name:       "wrapped cancellation",
			err:        WrapError(context.DeadlineExceeded, "optimizing"),
			wantCode:   ExitErrorCanceled,
			wantOutput: "Canceled",
		},
		{
			name:       "solver invariant",
			err:        NewSolverError("operator not initialized"),
			wantCode:   ExitErrorSolver,
			wantOutput: "Solver invariant",
		},
		{
			name:       "generic error",
			err:        errors.New("boom"),
			wantCode:   ExitErrorGeneric,
			wantOutput: "unexpected error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			code := HandleRunError(tt.err, tt.duration, &buf, nil)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if tt.wantOutput != "" && !strings.Contains(buf.String(), tt.wantOutput) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.wantOutput)
			}
		})
	}
}
