package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitClosed(t *testing.T, p *Producer) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.WaitClosed()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer loop did not drain")
	}
}

func TestProducerCloseThenCancel(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "test.topic", 4)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Publish([]byte("k"), []byte("v"))
	p.Close()
	cancel()
	waitClosed(t, p)
}

func TestProducerCancelThenClose(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "test.topic", 4)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	cancel()
	waitClosed(t, p)

	// The loop already shut the inbox on cancellation; a late Close must be
	// a no-op, not a double close.
	require.NotPanics(t, func() { p.Close() })
}
