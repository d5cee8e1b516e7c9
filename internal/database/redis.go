package database

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "tgmd:user:"

// Redis зберігає кожного користувача як hash. Лічильник збільшується через HINCRBY.
type Redis struct {
	rdb *redis.Client
	now func() time.Time
}

func OpenRedis(ctx context.Context, addr string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis %s недоступний", addr)
	}
	return NewRedis(rdb), nil
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, now: time.Now}
}

func redisKey(id int64) string {
	return redisPrefix + strconv.FormatInt(id, 10)
}

func userFields(u *User) map[string]string {
	return map[string]string{
		"name":                u.Name,
		"subscription":        u.Subscription,
		"language":            u.Language,
		"format":              string(u.Format),
		"include_description": strconv.FormatBool(u.IncludeDescription),
		"video_plus_audio":    strconv.FormatBool(u.VideoPlusAudio),
		"downloads":           strconv.FormatInt(u.Downloads, 10),
		"joined":              u.Joined.Format(time.RFC3339),
	}
}

func userFromHash(id int64, h map[string]string) *User {
	u := &User{
		ID:           id,
		Name:         h["name"],
		Subscription: h["subscription"],
		Language:     h["language"],
		Format:       Format(h["format"]),
	}
	u.IncludeDescription, _ = strconv.ParseBool(h["include_description"])
	u.VideoPlusAudio, _ = strconv.ParseBool(h["video_plus_audio"])
	u.Downloads, _ = strconv.ParseInt(h["downloads"], 10, 64)
	u.Joined, _ = time.Parse(time.RFC3339, h["joined"])
	return u
}

func (s *Redis) GetOrCreate(ctx context.Context, p Profile) (*User, error) {
	key := redisKey(p.ID)
	defaults := userFields(NewUser(p, s.now()))

	// HSETNX заповнює лише відсутні поля, тож існуючий запис не перезаписується
	var all *redis.MapStringStringCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, value := range defaults {
			pipe.HSetNX(ctx, key, field, value)
		}
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "redis: читання користувача")
	}

	u := userFromHash(p.ID, all.Val())
	if normalize(u) {
		if err := s.rdb.HSet(ctx, key, "language", u.Language, "format", string(u.Format), "subscription", u.Subscription).Err(); err != nil {
			return u, errors.Wrap(err, "redis: виправлення користувача")
		}
	}
	return u, nil
}

func (s *Redis) Save(ctx context.Context, u *User) error {
	key := redisKey(u.ID)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, "redis: перевірка користувача")
	}
	if n == 0 {
		return ErrNotFound
	}
	cp := *u
	normalize(&cp)
	err = s.rdb.HSet(ctx, key,
		"language", cp.Language,
		"format", string(cp.Format),
		"include_description", strconv.FormatBool(cp.IncludeDescription),
		"video_plus_audio", strconv.FormatBool(cp.VideoPlusAudio),
	).Err()
	if err != nil {
		return errors.Wrap(err, "redis: збереження користувача")
	}
	return nil
}

func (s *Redis) IncrementDownloads(ctx context.Context, id int64) (int64, error) {
	key := redisKey(id)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis: перевірка користувача")
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	v, err := s.rdb.HIncrBy(ctx, key, "downloads", 1).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis: лічильник завантажень")
	}
	return v, nil
}

func (s *Redis) Close() error { return s.rdb.Close() }
