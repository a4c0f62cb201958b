package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig configures the Redis key store.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every Redis key the store touches.
	// Default: "relay"
	Prefix string
}

// RedisStore keeps records in Redis so several relay instances can share
// one registry:
//
//	<prefix>:secrets          set of all secrets
//	<prefix>:key:<secret>     hash with the record fields
//	<prefix>:updated_at       unix nanoseconds of the last Save
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisStoreWithClient(client, cfg.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "relay"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: slog.Default().With("component", "keys.redis"),
	}
}

func (s *RedisStore) secretsKey() string { return s.prefix + ":secrets" }

func (s *RedisStore) updatedAtKey() string { return s.prefix + ":updated_at" }

func (s *RedisStore) recordKey(secret string) string { return s.prefix + ":key:" + secret }

// Name returns "redis".
func (s *RedisStore) Name() string {
	return "redis"
}

// Load reads every record hash listed in the secrets set.
func (s *RedisStore) Load(ctx context.Context) ([]Record, error) {
	secrets, err := s.client.SMembers(ctx, s.secretsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(secrets))
	for i, secret := range secrets {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(secret))
	}
	if len(secrets) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to read api keys: %w", err)
		}
	}

	records := make([]Record, 0, len(secrets))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			s.logger.WarnContext(ctx, "api key listed without a record, skipping")
			continue
		}
		records = append(records, decodeRedisRecord(secrets[i], fields))
	}

	return records, nil
}

// Save replaces the stored collection atomically with MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, records []Record) error {
	existing, err := s.client.SMembers(ctx, s.secretsKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list api keys: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, secret := range existing {
			pipe.Del(ctx, s.recordKey(secret))
		}
		pipe.Del(ctx, s.secretsKey())

		for _, r := range records {
			pipe.HSet(ctx, s.recordKey(r.Secret), encodeRedisRecord(r))
			pipe.SAdd(ctx, s.secretsKey(), r.Secret)
		}
		pipe.Set(ctx, s.updatedAtKey(), time.Now().UnixNano(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write api keys: %w", err)
	}

	s.logger.DebugContext(ctx, "api keys written", "records", len(records))
	return nil
}

// ModTime returns the time of the last Save, or the zero time if none.
func (s *RedisStore) ModTime(ctx context.Context) (time.Time, error) {
	ns, err := s.client.Get(ctx, s.updatedAtKey()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read store timestamp: %w", err)
	}
	return time.Unix(0, ns), nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeRedisRecord(r Record) map[string]interface{} {
	var lastUsed int64
	if !r.LastUsed.IsZero() {
		lastUsed = r.LastUsed.UnixNano()
	}
	return map[string]interface{}{
		"name":        r.Name,
		"description": r.Description,
		"created_at":  r.CreatedAt.UnixNano(),
		"usage_count": r.UsageCount,
		"last_used":   lastUsed,
		"is_active":   strconv.FormatBool(r.Active),
	}
}

func decodeRedisRecord(secret string, fields map[string]string) Record {
	r := Record{
		Secret:      secret,
		Name:        fields["name"],
		Description: fields["description"],
	}
	if ns, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		r.CreatedAt = time.Unix(0, ns)
	}
	if n, err := strconv.ParseInt(fields["usage_count"], 10, 64); err == nil {
		r.UsageCount = n
	}
	if ns, err := strconv.ParseInt(fields["last_used"], 10, 64); err == nil && ns != 0 {
		r.LastUsed = time.Unix(0, ns)
	}
	active, err := strconv.ParseBool(fields["is_active"])
	r.Active = err != nil || active
	return r
}
