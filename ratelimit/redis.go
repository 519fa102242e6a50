package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// blockScript implements the fixed-window counter plus timed block list
// atomically on the Redis side.
// KEYS[1] = window counter key
// KEYS[2] = block key
// ARGV[1] = allowed requests per window
// ARGV[2] = block duration in seconds
// Returns 1 when the client is blocked, 0 otherwise.
const blockScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 1
end

local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("EXPIRE", KEYS[1], 2)
end

if count > tonumber(ARGV[1]) then
	redis.call("SET", KEYS[2], "1", "EX", tonumber(ARGV[2]))
	return 1
end

return 0
`

// RedisLimiter is a counter store shared by multiple nodes fronting the same
// sites. Windows are one second wide; block state lives in Redis with a TTL,
// so eviction is handled by the server.
type RedisLimiter struct {
	logger  zerolog.Logger
	client  *redis.Client
	timeout time.Duration
	now     func() time.Time
}

// NewRedisLimiter creates a counter store backed by the given Redis client.
func NewRedisLimiter(logger zerolog.Logger, client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		logger:  logger,
		client:  client,
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
}

// Check has the same contract as Limiter.Check. Redis errors fail open: a
// slow or unreachable counter store must not take the decision path down
// with it.
func (l *RedisLimiter) Check(ruleId string, clientIp string, perSecond int, blockSeconds int) (blocked bool) {
	if perSecond <= 0 {
		return false
	}

	now := l.now()
	window := now.Unix()
	counterKey := fmt.Sprintf("caswaf:rate:%s:%s:%d", ruleId, clientIp, window)
	blockKey := fmt.Sprintf("caswaf:block:%s:%s", ruleId, clientIp)

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	result, err := l.client.Eval(ctx, blockScript, []string{counterKey, blockKey}, perSecond, blockSeconds).Result()
	if err != nil {
		l.logger.Warn().Err(err).Str("rule", ruleId).Msg("Rate counter store unreachable, failing open")
		return false
	}

	n, ok := result.(int64)
	if !ok {
		l.logger.Warn().Str("rule", ruleId).Msgf("Unexpected rate counter reply type %T", result)
		return false
	}

	return n == 1
}
