package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "ledger:mirror"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisSink stores each record as a hash under its key and publishes the
// key on a channel so connected clients can refresh.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaxRetries:   1,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to ping redis at %s: %w", cfg.Addr, err)
	}

	zap.L().Info("Connected to mirror redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return NewRedisSinkFromClient(client, cfg.Channel), nil
}

func NewRedisSinkFromClient(client redis.UniversalClient, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Upsert(ctx context.Context, r Record) error {
	values, err := hashValues(r)
	if err != nil {
		return err
	}

	key := r.Key()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, values)
	pipe.Publish(ctx, s.channel, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

// hashValues flattens record fields into strings; nested values are JSON.
func hashValues(r Record) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		switch val := v.(type) {
		case string:
			values[k] = val
		case fmt.Stringer:
			values[k] = val.String()
		case int, int64, float64, bool:
			values[k] = fmt.Sprint(val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %s: %w", k, err)
			}
			values[k] = string(b)
		}
	}
	values["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	return values, nil
}
