package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowCounter increments a fixed-window counter and arms its expiry in one
// round trip, so a crash between INCR and PEXPIRE cannot leave a counter
// without a TTL.
var windowCounter = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// CountInWindow increments key and returns the count seen in the current
// window. The window starts with the first increment.
func (c *Client) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	if window <= 0 {
		return 0, fmt.Errorf("rate window must be positive, got %s", window)
	}
	return windowCounter.Run(ctx, c.store, []string{key}, window.Milliseconds()).Int64()
}

// DeleteIfEquals deletes key when its value is still value and reports
// whether it did.
func (c *Client) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := compareAndDelete.Run(ctx, c.store, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
