package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCodeStore struct {
	mu    sync.Mutex
	codes map[string]int
	err   error
}

func newStubCodeStore(codes map[string]int) *stubCodeStore {
	return &stubCodeStore{codes: codes}
}

func (s *stubCodeStore) GetAccessCode(_ context.Context, code string) (*AccessCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	n, ok := s.codes[code]
	if !ok {
		return nil, nil
	}
	return &AccessCode{Code: code, RemainingUses: n}, nil
}

func (s *stubCodeStore) DecrementAccessCode(_ context.Context, code string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, false, s.err
	}
	n, ok := s.codes[code]
	if !ok || n <= 0 {
		return 0, false, nil
	}
	s.codes[code] = n - 1
	return n - 1, true, nil
}

func TestAccessGateVerify(t *testing.T) {
	store := newStubCodeStore(map[string]int{"TEST123": 2, "EMPTY": 0})
	gate := NewAccessGate(store, AccessPolicy{}, nil)
	ctx := context.Background()

	v, err := gate.Verify(ctx, "  TEST123 ")
	require.NoError(t, err)
	assert.Equal(t, Verification{Granted: true, Remaining: 1}, v)

	v, err = gate.Verify(ctx, "TEST123")
	require.NoError(t, err)
	assert.Equal(t, Verification{Granted: true, Remaining: 0}, v)

	for _, code := range []string{"TEST123", "EMPTY", "NOPE", ""} {
		v, err = gate.Verify(ctx, code)
		require.NoError(t, err)
		assert.False(t, v.Granted, code)
	}
	assert.Equal(t, 0, store.codes["TEST123"])
}

func TestAccessGateConcurrentLastUse(t *testing.T) {
	store := newStubCodeStore(map[string]int{"ONCE": 1})
	gate := NewAccessGate(store, AccessPolicy{}, nil)

	var granted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := gate.Verify(context.Background(), "ONCE")
			if err == nil && v.Granted {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	assert.Equal(t, 0, store.codes["ONCE"])
}

func TestAccessGateFailClosed(t *testing.T) {
	store := newStubCodeStore(nil)
	store.err = errors.New("connection refused")
	gate := NewAccessGate(store, AccessPolicy{}, nil)

	v, err := gate.Verify(context.Background(), "TEST123")
	require.ErrorIs(t, err, ErrGateUnavailable)
	assert.False(t, v.Granted)
}

func TestAccessGateFailOpenUsesBootstrapCodes(t *testing.T) {
	store := newStubCodeStore(nil)
	store.err = errors.New("connection refused")
	gate := NewAccessGate(store, AccessPolicy{FailOpen: true, BootstrapCodes: map[string]int{"DEMO456": 1}}, nil)
	ctx := context.Background()

	v, err := gate.Verify(ctx, "DEMO456")
	require.NoError(t, err)
	assert.Equal(t, Verification{Granted: true, Remaining: 0, Fallback: true}, v)

	v, err = gate.Verify(ctx, "DEMO456")
	require.NoError(t, err)
	assert.False(t, v.Granted)

	v, err = gate.Verify(ctx, "UNKNOWN")
	require.NoError(t, err)
	assert.False(t, v.Granted)
}
