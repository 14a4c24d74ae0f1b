package health

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	err error
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.err }

func TestCheck_HealthyWhenStoreReachable(t *testing.T) {
	c := New(&fakeStore{}, zerolog.Nop())
	healthy, detail := c.Check()
	assert.True(t, healthy)
	assert.Equal(t, true, detail["event_store_ok"])
}

func TestCheck_UnhealthyWhenStoreUnreachable(t *testing.T) {
	c := New(&fakeStore{err: errors.New("disk full")}, zerolog.Nop())
	healthy, detail := c.Check()
	assert.False(t, healthy)
	assert.Equal(t, false, detail["event_store_ok"])
	assert.Equal(t, "disk full", detail["event_store_error"])
}

func TestCheck_HealthyWithNoStoreWired(t *testing.T) {
	c := New(nil, zerolog.Nop())
	healthy, _ := c.Check()
	assert.True(t, healthy)
}
