package ratelimit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) IsAllowed(ctx context.Context, key string, limitPerHour, burst int) (bool, int, error) {
	args := m.Called(ctx, key, limitPerHour, burst)
	return args.Bool(0), args.Int(1), args.Error(2)
}

func TestKey_PrefixesIdentifier(t *testing.T) {
	require.Equal(t, "ip:1.2.3.4", Key(PrefixIP, "1.2.3.4"))
	require.Equal(t, "user:abc", Key(PrefixUser, "abc"))
	require.Equal(t, "api:key1", Key(PrefixAPI, "key1"))
}

func TestIsAllowed_DelegatesToStoreAndPassesThroughResult(t *testing.T) {
	store := &mockStore{}
	store.On("IsAllowed", mock.Anything, "ip:1.2.3.4", 100, 100).Return(true, 99, nil)

	l := New(store, zap.NewNop())
	res := l.IsAllowed(context.Background(), PrefixIP, "1.2.3.4", 100, 100)

	require.True(t, res.Allowed)
	require.Equal(t, 99, res.Remaining)
}

func TestIsAllowed_DeniedWhenStoreReportsExhausted(t *testing.T) {
	store := &mockStore{}
	store.On("IsAllowed", mock.Anything, "ip:1.2.3.4", 100, 100).Return(false, -1, nil)

	l := New(store, zap.NewNop())
	res := l.IsAllowed(context.Background(), PrefixIP, "1.2.3.4", 100, 100)

	require.False(t, res.Allowed)
}

// TestIsAllowed_FailsOpenOnStoreError: a backing-store
// failure must never deny a request, so a distributed limiter outage cannot
// itself become a denial-of-service vector.
func TestIsAllowed_FailsOpenOnStoreError(t *testing.T) {
	store := &mockStore{}
	store.On("IsAllowed", mock.Anything, "user:u1", 10, 10).Return(false, 0, errors.New("connection refused"))

	l := New(store, zap.NewNop())
	res := l.IsAllowed(context.Background(), PrefixUser, "u1", 10, 10)

	require.True(t, res.Allowed)
}
