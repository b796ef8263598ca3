package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.key
	return nil
}

// fakeLocks keeps lock holders in memory. Expiry is not modelled.
type fakeLocks struct {
	mu      sync.Mutex
	holders map[string]string
	renews  int
	failErr error
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{holders: map[string]string{}}
}

func (f *fakeLocks) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return fakeRow{err: f.failErr}
	}
	key, token := args[0].(string), args[1].(string)
	holder, held := f.holders[key]
	switch {
	case strings.Contains(sql, "INSERT INTO run_locks"):
		if held && holder != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.holders[key] = token
		return fakeRow{key: key}
	case strings.Contains(sql, "UPDATE run_locks"):
		f.renews++
		if !held || holder != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{key: key}
	}
	return fakeRow{err: errors.New("unexpected query")}
}

func (f *fakeLocks) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if f.holders[key] == token {
		delete(f.holders, key)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (f *fakeLocks) steal(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holders[key] = "someone-else"
}

func TestAcquireAndRelease(t *testing.T) {
	db := newFakeLocks()
	c := newWithConn(db)

	lease, err := c.Acquire(context.Background(), RunKey("abc"), Options{TokenPrefix: "worker-"})
	require.NoError(t, err)
	assert.Equal(t, "run:abc", lease.Key)
	assert.True(t, strings.HasPrefix(lease.Token, "worker-"))

	_, err = c.Acquire(context.Background(), RunKey("abc"), Options{})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, lease.Release(context.Background()))
	assert.ErrorIs(t, lease.Context.Err(), context.Canceled)
	assert.Empty(t, db.holders)

	// released keys can be taken again
	again, err := c.Acquire(context.Background(), RunKey("abc"), Options{})
	require.NoError(t, err)
	require.NoError(t, again.Release(context.Background()))
}

func TestAcquireEmptyKey(t *testing.T) {
	_, err := newWithConn(newFakeLocks()).Acquire(context.Background(), "", Options{})
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestAcquireWaitHonoursContext(t *testing.T) {
	db := newFakeLocks()
	db.steal("run:busy")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := newWithConn(db).Acquire(ctx, "run:busy", Options{Wait: true, WaitInterval: 5 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireQueryError(t *testing.T) {
	db := newFakeLocks()
	db.failErr = errors.New("connection reset")

	_, err := newWithConn(db).Acquire(context.Background(), "run:x", Options{})
	assert.ErrorContains(t, err, "connection reset")
}

func TestLeaseLostCancelsContext(t *testing.T) {
	db := newFakeLocks()
	c := newWithConn(db)

	// TTL is clamped to a one second renewal interval; steal right away so
	// the first renewal finds the lock gone.
	lease, err := c.Acquire(context.Background(), "run:lost", Options{TTL: 2 * time.Second})
	require.NoError(t, err)
	db.steal("run:lost")

	select {
	case <-lease.Context.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("lease context was not cancelled")
	}
	assert.ErrorIs(t, context.Cause(lease.Context), ErrLost)
}

func TestWithLease(t *testing.T) {
	db := newFakeLocks()
	c := newWithConn(db)

	called := false
	err := c.WithLease(context.Background(), "run:w", Options{}, func(ctx context.Context) error {
		called = true
		assert.NoError(t, ctx.Err())
		assert.Contains(t, db.holders, "run:w")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NotContains(t, db.holders, "run:w")
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, defaultTTL, o.TTL)
	assert.Equal(t, defaultTTL/2, o.RenewEvery)
	assert.Equal(t, defaultWaitInterval, o.WaitInterval)

	o = Options{TTL: time.Minute, RenewEvery: 2 * time.Minute, WaitJitter: -1}.withDefaults()
	assert.Equal(t, 30*time.Second, o.RenewEvery)
	assert.Zero(t, o.WaitJitter)
}
