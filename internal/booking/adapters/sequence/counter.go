package sequence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/booking/domain"
)

// RedisCounter backs the display sequence numbers with Redis INCR: atomic,
// so no two bookings ever share a number even under concurrent creation.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Next(ctx context.Context, sequence string) (int64, error) {
	n, err := c.client.Incr(ctx, "seq:"+sequence).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: counter incr: %v", domain.ErrTransientStorage, err)
	}
	return n, nil
}
