package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubRegisterUnregisterCounts(t *testing.T) {
	h := NewHub(zap.NewNop(), nil)
	c := &Client{id: "conn-1", clientID: "alice", mapID: "m1", send: make(chan []byte, 1)}

	h.registerClient(c)
	require.Equal(t, 1, h.SubscriberCount("m1"))

	h.unregisterClient(c)
	require.Equal(t, 0, h.SubscriberCount("m1"))
}

func TestHubDropAfterShutdownDoesNotBlock(t *testing.T) {
	h := NewHub(zap.NewNop(), nil)
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	h.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not shut down")
	}

	// Exhaust the unregister buffer so a bare channel send would block.
	for i := 0; i < cap(h.unregister); i++ {
		h.unregister <- &Client{}
	}

	finished := make(chan struct{})
	go func() {
		h.drop(&Client{})
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("disconnect blocked after hub shutdown")
	}
}
