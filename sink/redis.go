package sink

import (
	"context"
	"fmt"
	"net/url"

	"github.com/redis/go-redis/v9"
)

type redisSink struct {
	client *redis.Client
	key    string
}

// redisOptions strips the key parameter, which go-redis would reject
func redisOptions(u *url.URL) (*redis.Options, string, error) {
	q := u.Query()
	key := q.Get("key")
	if key == "" {
		key = "gomrstats"
	}
	q.Del("key")
	stripped := *u
	stripped.RawQuery = q.Encode()
	opts, err := redis.ParseURL(stripped.String())
	if err != nil {
		return nil, "", err
	}
	return opts, key, nil
}

func openRedis(ctx context.Context, u *url.URL) (*redisSink, error) {
	opts, key, err := redisOptions(u)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &redisSink{client: client, key: key}, nil
}

func (s *redisSink) Write(ctx context.Context, records []Record) error {
	values := make([]interface{}, 0, len(records)*2)
	for _, r := range records {
		values = append(values, r.Key, r.Value)
	}
	return s.client.HSet(ctx, s.key, values...).Err()
}

func (s *redisSink) Close() error {
	return s.client.Close()
}
