// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package notify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/quillworks/quill/internal/notify"
	"github.com/quillworks/quill/internal/notify/notifytest"
)

func TestNewDispatcher_RequiresSink(t *testing.T) {
	d, err := notify.NewDispatcher(nil)
	require.Error(t, err)
	assert.Nil(t, d)
}

func TestDispatcher_DeliversQueuedNotifications(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &notifytest.Recorder{}
	d, err := notify.NewDispatcher(rec, notify.WithWorkers(3))
	require.NoError(t, err)
	d.Start(context.Background())

	for i := 0; i < 10; i++ {
		d.Send(context.Background(), "a@x.com", "email_verification", map[string]string{"url": "http://x"})
	}
	require.NoError(t, d.Close(context.Background()))

	items := rec.ByKind("email_verification")
	assert.Len(t, items, 10)
	assert.Equal(t, "a@x.com", items[0].Recipient)
	assert.Equal(t, "http://x", items[0].Payload["url"])
}

func TestDispatcher_RetriesFailedDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &notifytest.Recorder{}
	rec.FailNext(2)
	d, err := notify.NewDispatcher(rec, notify.WithWorkers(1), notify.WithRetry(3, time.Millisecond))
	require.NoError(t, err)
	d.Start(context.Background())

	d.Send(context.Background(), "a@x.com", "reactivation", nil)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 3, rec.Attempts())
	assert.Len(t, rec.All(), 1)
}

func TestDispatcher_GivesUpAfterRetryBudget(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &notifytest.Recorder{}
	rec.FailNext(100)
	d, err := notify.NewDispatcher(rec, notify.WithWorkers(1), notify.WithRetry(2, time.Millisecond))
	require.NoError(t, err)
	d.Start(context.Background())

	d.Send(context.Background(), "a@x.com", "reactivation", nil)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 3, rec.Attempts())
	assert.Empty(t, rec.All())
}

// blockingSink holds every delivery until released.
type blockingSink struct {
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Deliver(ctx context.Context, _ notify.Notification) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func (s *blockingSink) open() { s.once.Do(func() { close(s.release) }) }

func TestDispatcher_SendNeverBlocks(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &blockingSink{release: make(chan struct{})}
	d, err := notify.NewDispatcher(sink, notify.WithWorkers(1), notify.WithQueueSize(1))
	require.NoError(t, err)
	d.Start(context.Background())
	defer func() {
		sink.open()
		require.NoError(t, d.Close(context.Background()))
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			d.Send(context.Background(), "a@x.com", "email_verification", nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a saturated queue")
	}
}

func TestDispatcher_EnqueueAfterCloseIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &notifytest.Recorder{}
	d, err := notify.NewDispatcher(rec)
	require.NoError(t, err)
	d.Start(context.Background())
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.Enqueue(notify.New("a@x.com", "reactivation", nil)))
	assert.Empty(t, rec.All())
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_CloseWithoutStart(t *testing.T) {
	d, err := notify.NewDispatcher(&notifytest.Recorder{})
	require.NoError(t, err)
	assert.NoError(t, d.Close(context.Background()))
}

func TestLogSink_OmitsPayloadValues(t *testing.T) {
	var buf syncBuffer
	sink := notify.NewLogSink(newJSONLogger(&buf))

	err := sink.Deliver(context.Background(), notify.New("a@x.com", "email_verification", map[string]string{"url": "http://x/verify-email/SECRET"}))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"payload_keys":["url"]`)
	assert.NotContains(t, out, "SECRET")
}

func TestNew_CopiesPayload(t *testing.T) {
	payload := map[string]string{"url": "a"}
	n := notify.New("a@x.com", "k", payload)
	payload["url"] = "b"
	assert.Equal(t, "a", n.Payload["url"])
	assert.False(t, n.CreatedAt.IsZero())
}
