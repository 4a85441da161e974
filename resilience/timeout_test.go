package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTimeout_Default(t *testing.T) {
	if got := NewTimeout(0).Duration(); got != DefaultTimeout {
		t.Errorf("Duration() = %v, want %v", got, DefaultTimeout)
	}
}

func TestTimeout_Execute(t *testing.T) {
	tests := []struct {
		name    string
		op      func(context.Context) error
		wantErr error
	}{
		{
			name:    "fast op",
			op:      succeed,
			wantErr: nil,
		},
		{
			name:    "op error passes through",
			op:      fail,
			wantErr: errStore,
		},
		{
			name: "slow op ignoring context",
			op: func(context.Context) error {
				time.Sleep(200 * time.Millisecond)
				return nil
			},
			wantErr: ErrTimeout,
		},
		{
			name: "op returning deadline error",
			op: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			wantErr: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTimeout(20*time.Millisecond).Execute(context.Background(), tt.op)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeout_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTimeout(time.Second).Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}
