package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/huddle/internal/chat"
)

type mockCacheManager struct {
	mock.Mock
}

func (m *mockCacheManager) Get(ctx context.Context, key slug) ([]chat.Subscriber, bool) {
	args := m.Called(ctx, key)
	v, _ := args.Get(0).([]chat.Subscriber)
	return v, args.Bool(1)
}

func (m *mockCacheManager) GetWithRefresh(ctx context.Context, key slug, ttl time.Duration) ([]chat.Subscriber, bool) {
	args := m.Called(ctx, key, ttl)
	v, _ := args.Get(0).([]chat.Subscriber)
	return v, args.Bool(1)
}

func (m *mockCacheManager) Set(ctx context.Context, key slug, value []chat.Subscriber, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCacheManager) Delete(ctx context.Context, keys ...slug) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *mockCacheManager) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var alice = []chat.Subscriber{{UserID: "1", Username: "alice", Role: chat.RoleMember}}

func fetchRoster(calls *int, err error) func(context.Context, string) ([]chat.Subscriber, error) {
	return func(_ context.Context, s string) ([]chat.Subscriber, error) {
		*calls++
		if err != nil {
			return nil, err
		}
		return alice, nil
	}
}

func TestReadThroughCache_SkipCacheAlwaysLoads(t *testing.T) {
	m := &mockCacheManager{}
	var calls int
	r := NewReadThroughCache[slug, []chat.Subscriber, string](m, fetchRoster(&calls, nil), true)

	for range 2 {
		got, err := r.Get(context.Background(), "secret", "secret", time.Minute)
		require.NoError(t, err)
		require.Equal(t, alice, got)
	}
	require.Equal(t, 2, calls)
	m.AssertExpectations(t)
}

func TestReadThroughCache_HitDoesNotLoad(t *testing.T) {
	m := &mockCacheManager{}
	m.On("Get", mock.Anything, slug("secret")).Return(alice, true).Once()
	var calls int
	r := NewReadThroughCache[slug, []chat.Subscriber, string](m, fetchRoster(&calls, nil), false)

	got, err := r.Get(context.Background(), "secret", "secret", time.Minute)
	require.NoError(t, err)
	require.Equal(t, alice, got)
	require.Zero(t, calls)
	m.AssertExpectations(t)
}

func TestReadThroughCache_MissLoadsAndStores(t *testing.T) {
	m := &mockCacheManager{}
	m.On("Get", mock.Anything, slug("secret")).Return(nil, false).Once()
	m.On("Set", mock.Anything, slug("secret"), alice, time.Minute).Once()
	var calls int
	r := NewReadThroughCache[slug, []chat.Subscriber, string](m, fetchRoster(&calls, nil), false)

	got, err := r.Get(context.Background(), "secret", "secret", time.Minute)
	require.NoError(t, err)
	require.Equal(t, alice, got)
	require.Equal(t, 1, calls)
	m.AssertExpectations(t)
}

func TestReadThroughCache_LoadErrorNotCached(t *testing.T) {
	m := &mockCacheManager{}
	m.On("GetWithRefresh", mock.Anything, slug("secret"), time.Minute).Return(nil, false).Once()
	var calls int
	r := NewReadThroughCache[slug, []chat.Subscriber, string](m, fetchRoster(&calls, errors.New("forbidden")), false)

	_, err := r.GetWithRefresh(context.Background(), "secret", "secret", time.Minute)
	require.EqualError(t, err, "forbidden")
	m.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.AssertExpectations(t)
}

func TestReadThroughCache_InvalidateThenReload(t *testing.T) {
	cache := newRosterCache()
	var calls int
	r := NewReadThroughCache[slug, []chat.Subscriber, string](cache, fetchRoster(&calls, nil), false)
	ctx := context.Background()

	_, err := r.Get(ctx, "secret", "secret", time.Minute)
	require.NoError(t, err)
	_, err = r.Get(ctx, "secret", "secret", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	r.Invalidate(ctx, "secret")
	_, err = r.Get(ctx, "secret", "secret", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
