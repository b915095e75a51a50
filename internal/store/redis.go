package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/andresmejia3/rotisserie/internal/types"
)

// Redis keeps pending names in a set (SPOP is the atomic pop) and scores in a sorted set.
type Redis struct {
	client   *redis.Client
	readKey  string
	writeKey string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, addr, password, readKey, writeKey string) (*Redis, error) {
	if readKey == "" || writeKey == "" {
		return nil, fmt.Errorf("redis store needs both a read and a write key")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, unavailable("connect "+addr, err)
	}
	return &Redis{client: client, readKey: readKey, writeKey: writeKey}, nil
}

func (r *Redis) Pop(ctx context.Context) (string, bool, error) {
	name, err := r.client.SPop(ctx, r.readKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("spop", err)
	}
	return name, true, nil
}

func (r *Redis) Upsert(ctx context.Context, name string, score float64) error {
	if err := r.client.ZAdd(ctx, r.writeKey, redis.Z{Score: score, Member: name}).Err(); err != nil {
		return unavailable("zadd", err)
	}
	return nil
}

func (r *Redis) Push(ctx context.Context, names ...string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	members := make([]interface{}, len(names))
	for i, n := range names {
		members[i] = n
	}
	added, err := r.client.SAdd(ctx, r.readKey, members...).Result()
	if err != nil {
		return 0, unavailable("sadd", err)
	}
	return int(added), nil
}

func (r *Redis) Ranked(ctx context.Context) ([]types.RankedStream, error) {
	zs, err := r.client.ZRangeWithScores(ctx, r.writeKey, 0, -1).Result()
	if err != nil {
		return nil, unavailable("zrange", err)
	}
	out := make([]types.RankedStream, 0, len(zs))
	for _, z := range zs {
		name, _ := z.Member.(string)
		out = append(out, ranked(name, z.Score))
	}
	return out, nil
}

func (r *Redis) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.readKey, r.writeKey).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
