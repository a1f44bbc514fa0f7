package redisledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPrefix = "peermatch"

// Config describes how to reach redis.
type Config struct {
	Addr   string `mapstructure:"addr"`
	DB     int    `mapstructure:"db"`
	Prefix string `mapstructure:"prefix"`
}

// Ledger keeps one hash per person: field = action, value = unix nanoseconds.
// Forgetting a person is a single DEL.
type Ledger struct {
	rdb    *goredis.Client
	prefix string
	logger *zap.Logger
}

// New connects to redis and checks the connection.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Ledger, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewWithClient(rdb, cfg.Prefix, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *goredis.Client, prefix string, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = defaultPrefix
	}
	return &Ledger{rdb: rdb, prefix: prefix, logger: logger.With(zap.String("ledger", "redis"))}
}

func (l *Ledger) key(personID int64) string {
	return fmt.Sprintf("%s:ratelimit:%d", l.prefix, personID)
}

func (l *Ledger) LastUsed(ctx context.Context, personID int64, action string) (time.Time, bool, error) {
	raw, err := l.rdb.HGet(ctx, l.key(personID), action).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis hget: %w", err)
	}

	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		l.logger.Warn("ignoring malformed ledger value",
			zap.Int64("person_id", personID),
			zap.String("action", action),
			zap.String("value", raw),
		)
		return time.Time{}, false, nil
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

func (l *Ledger) SetLastUsed(ctx context.Context, personID int64, action string, at time.Time) error {
	if err := l.rdb.HSet(ctx, l.key(personID), action, strconv.FormatInt(at.UnixNano(), 10)).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (l *Ledger) Forget(ctx context.Context, personID int64) error {
	if err := l.rdb.Del(ctx, l.key(personID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.rdb.Close()
}
