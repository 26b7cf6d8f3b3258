package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestProcessWithTimeout(t *testing.T) {
	msg := &nats.Msg{Subject: "signal_order.submit", Data: []byte(`{"history_id":1}`)}

	t.Run("returns callback error", func(t *testing.T) {
		errCallback := errors.New("boom")
		err := ProcessWithTimeout(time.Second, msg, func(ctx context.Context, msg *nats.Msg) error {
			return errCallback
		})
		assert.ErrorIs(t, err, errCallback)
	})

	t.Run("times out slow callback", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		err := ProcessWithTimeout(20*time.Millisecond, msg, func(ctx context.Context, msg *nats.Msg) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		})
		assert.ErrorContains(t, err, "processing timeout")
	})

	t.Run("non positive timeout uses default", func(t *testing.T) {
		err := ProcessWithTimeout(0, msg, func(ctx context.Context, msg *nats.Msg) error {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(defaultProcessTimeout), deadline, time.Second)
			return nil
		})
		assert.NoError(t, err)
	})
}
