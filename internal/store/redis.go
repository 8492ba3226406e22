package store

import (
	"context"
	"sort"

	redisClient "github.com/go-redis/redis/v8"

	"github.com/FocuswithJustin/soramimi/core/errors"
)

const (
	redisKeyPrefix = "soramimi:doc:"
	redisIndexKey  = "soramimi:docs"
)

// RedisStore keeps each document under its own key plus a set of names.
type RedisStore struct {
	client *redisClient.Client
}

// OpenRedis connects to the server in dsn and checks it responds.
func OpenRedis(ctx context.Context, dsn string) (*RedisStore, error) {
	opt, err := redisClient.ParseURL(dsn)
	if err != nil {
		return nil, errors.NewValidation("store", "invalid redis URL: "+err.Error())
	}
	client := redisClient.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewIO("connect", opt.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Backend() string { return "redis" }

func (r *RedisStore) Read(ctx context.Context, name string) ([]byte, error) {
	name, err := documentName(name)
	if err != nil {
		return nil, err
	}
	data, err := r.client.Get(ctx, redisKeyPrefix+name).Bytes()
	if err == redisClient.Nil {
		return nil, errors.NewNotFound("document", name)
	}
	if err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	return data, nil
}

func (r *RedisStore) Save(ctx context.Context, name string, data []byte) error {
	name, err := documentName(name)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redisClient.Pipeliner) error {
		p.Set(ctx, redisKeyPrefix+name, data, 0)
		p.SAdd(ctx, redisIndexKey, name)
		return nil
	})
	if err != nil {
		return errors.NewIO("save", name, err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, errors.NewIO("list", "redis", err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisStore) Delete(ctx context.Context, name string) error {
	name, err := documentName(name)
	if err != nil {
		return err
	}
	var del *redisClient.IntCmd
	_, err = r.client.TxPipelined(ctx, func(p redisClient.Pipeliner) error {
		del = p.Del(ctx, redisKeyPrefix+name)
		p.SRem(ctx, redisIndexKey, name)
		return nil
	})
	if err != nil {
		return errors.NewIO("delete", name, err)
	}
	if del.Val() == 0 {
		return errors.NewNotFound("document", name)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
