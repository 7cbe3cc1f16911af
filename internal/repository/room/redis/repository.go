package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type repo struct {
	rc             *redis.Client
	casScript      string
	expireDuration time.Duration
}

// NewRepo loads the compare-and-swap script once so every state
// transition runs server-side in a single atomic step.
func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		expireDuration: expireDuration,
		casScript: rc.ScriptLoad(context.Background(), `
			local version = redis.call('HGET', KEYS[1], 'version')
			if not version then
				return -1
			end
			if tonumber(version) ~= tonumber(ARGV[1]) then
				return 0
			end
			local next = tonumber(version) + 1
			redis.call('HSET', KEYS[1],
				'video_ref', ARGV[2],
				'playing', ARGV[3],
				'position_seconds', ARGV[4],
				'as_of', ARGV[5],
				'version', next)
			return next
		`).Val(),
	}
}
