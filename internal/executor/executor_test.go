package executor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covault/internal/engine"
	id "covault/pkg/domain"
)

func TestDispatcher_RoutesByScheme(t *testing.T) {
	ctx := context.Background()
	treasury := NewTreasury(nil)
	d := NewDispatcher().Register("treasury", treasury)

	t.Run("known scheme reaches executor", func(t *testing.T) {
		err := d.Attempt(ctx, engine.Delivery{Destination: "treasury:ops", Value: 30})
		require.NoError(t, err)
		assert.Equal(t, uint64(30), treasury.Balance("ops"))
	})

	t.Run("unknown scheme fails", func(t *testing.T) {
		err := d.Attempt(ctx, engine.Delivery{Destination: "carrier-pigeon:roof"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no executor registered")
	})

	t.Run("destination without scheme fails", func(t *testing.T) {
		err := d.Attempt(ctx, engine.Delivery{Destination: "opaque"})
		require.Error(t, err)
	})
}

func TestTreasury_AccumulatesPerAccount(t *testing.T) {
	ctx := context.Background()
	treasury := NewTreasury(nil)

	require.NoError(t, treasury.Attempt(ctx, engine.Delivery{Destination: "treasury:ops", Value: 10}))
	require.NoError(t, treasury.Attempt(ctx, engine.Delivery{Destination: "treasury:ops", Value: 5}))
	require.NoError(t, treasury.Attempt(ctx, engine.Delivery{Destination: "treasury:reserve", Value: 7}))

	assert.Equal(t, uint64(15), treasury.Balance("ops"))
	assert.Equal(t, uint64(7), treasury.Balance("reserve"))

	err := treasury.Attempt(ctx, engine.Delivery{Destination: "treasury:"})
	require.Error(t, err)
}

func TestWebhook_SignsAndDelivers(t *testing.T) {
	ctx := context.Background()
	secret := []byte("vault-webhook-secret")
	payload := []byte(`{"memo":"invoice 8841"}`)

	var received *http.Request
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	hook := NewWebhook(secret, nil)
	delivery := engine.Delivery{
		Index:       id.EntryIndex(3),
		Destination: "webhook:" + server.URL,
		Value:       120,
		Payload:     payload,
	}
	require.NoError(t, hook.Attempt(ctx, delivery))

	require.NotNil(t, received)
	assert.Equal(t, "3", received.Header.Get(headerEntryIndex))
	assert.Equal(t, "120", received.Header.Get(headerValue))
	assert.Equal(t, payload, body)
	assert.True(t, VerifySignature(secret, "3", 120, payload, received.Header.Get(headerSignature)))
	assert.False(t, VerifySignature([]byte("wrong"), "3", 120, payload, received.Header.Get(headerSignature)))
}

func TestWebhook_ReceiverErrorsSurface(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	hook := NewWebhook([]byte("secret"), nil)

	t.Run("non-2xx status is a failure", func(t *testing.T) {
		err := hook.Attempt(ctx, engine.Delivery{Destination: "webhook:" + server.URL})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("missing url is a failure", func(t *testing.T) {
		err := hook.Attempt(ctx, engine.Delivery{Destination: "webhook:"})
		require.Error(t, err)
	})
}
