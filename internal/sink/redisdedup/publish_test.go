package redisdedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	claimed map[string]bool
	pingErr error
	setErr  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{claimed: map[string]bool{}}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeRedis) Ping(ctx context.Context) error {
	return f.pingErr
}

type fakeInner struct {
	published []string
}

func (f *fakeInner) Publish(ctx context.Context, crashID string) error {
	f.published = append(f.published, crashID)
	return nil
}

func TestPublish_FirstCallForwardsAndClaims(t *testing.T) {
	inner := &fakeInner{}
	redis := newFakeRedis()
	p := &Publish{inner: inner, redis: redis, ttl: time.Minute, prefix: "dedup:crash:"}

	err := p.Publish(context.Background(), "abc123")

	assert.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, inner.published)
}

func TestPublish_DuplicateWithinWindowIsSuppressed(t *testing.T) {
	inner := &fakeInner{}
	redis := newFakeRedis()
	p := &Publish{inner: inner, redis: redis, ttl: time.Minute, prefix: "dedup:crash:"}

	require.NoError(t, p.Publish(context.Background(), "abc123"))
	err := p.Publish(context.Background(), "abc123")

	assert.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, inner.published)
}

func TestPublish_RedisErrorFailsOpen(t *testing.T) {
	inner := &fakeInner{}
	redis := newFakeRedis()
	redis.setErr = errors.New("connection refused")
	p := &Publish{inner: inner, redis: redis, ttl: time.Minute, prefix: "dedup:crash:"}

	err := p.Publish(context.Background(), "abc123")

	assert.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, inner.published)
}

func TestPublish_DistinctIDsBothForwarded(t *testing.T) {
	inner := &fakeInner{}
	redis := newFakeRedis()
	p := &Publish{inner: inner, redis: redis, ttl: time.Minute, prefix: "dedup:crash:"}

	require.NoError(t, p.Publish(context.Background(), "one"))
	require.NoError(t, p.Publish(context.Background(), "two"))

	assert.Equal(t, []string{"one", "two"}, inner.published)
}

