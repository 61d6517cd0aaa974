package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/stretchr/testify/assert"
)

type resolved struct{ Status string }

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(config.GetDefaultConfig())

	key := ReservationKey("rsv_1")
	assert.Equal(t, "reservation:v1:rsv_1", key)

	_, found := c.Get(ctx, key)
	assert.False(t, found)

	c.Set(ctx, key, &resolved{Status: "confirmed"}, 0)
	v, found := GetTyped[*resolved](ctx, c, key)
	assert.True(t, found)
	assert.Equal(t, "confirmed", v.Status)

	// wrong shape reads as a miss
	_, found = GetTyped[string](ctx, c, key)
	assert.False(t, found)

	c.Delete(ctx, key)
	_, found = c.Get(ctx, key)
	assert.False(t, found)

	c.Set(ctx, ReservationKey("rsv_2"), "cancelled", time.Minute)
	c.Flush(ctx)
	_, found = c.Get(ctx, ReservationKey("rsv_2"))
	assert.False(t, found)
}

func TestGetTypedNilCache(t *testing.T) {
	_, found := GetTyped[*resolved](context.Background(), nil, ReservationKey("rsv_1"))
	assert.False(t, found)
}

func TestExpiration(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(nil)

	c.Set(ctx, ReservationKey("rsv_3"), "expired", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, found := c.Get(ctx, ReservationKey("rsv_3"))
	assert.False(t, found)
}
