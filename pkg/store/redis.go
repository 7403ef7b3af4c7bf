package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/sluice/pkg/control"
)

// RedisStore implements Store on Redis. It suits deployments where several
// gateway instances share credentials and policy documents: every write to a
// configuration document is published on a channel that Changes exposes.
//
// Key layout (all under Prefix):
//
//	key:<sha256>          hash  id, name, team, active, created_at
//	keyid:<id>            string sha256 of the key value
//	keys                  set   key ids
//	config:<name>         hash  version -> JSON {document, active, created_at}
//	config:<name>:seq     counter of allocated versions
//	config-changed        pub/sub channel carrying document names
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	owned  bool
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password authenticates to Redis (optional).
	Password string

	// DB selects the Redis logical database.
	DB int

	// Prefix namespaces every key. Default: "sluice:"
	Prefix string
}

type redisVersion struct {
	Document  json.RawMessage `json:"document"`
	Active    bool            `json:"active"`
	CreatedAt int64           `json:"created_at"`
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr cannot be empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s := NewRedisStoreFromClient(rdb, cfg.Prefix)
	s.owned = true
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client. Close does not close a
// client it did not create.
func NewRedisStoreFromClient(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sluice:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) keyKey(hash string) string    { return s.prefix + "key:" + hash }
func (s *RedisStore) keyIDKey(id string) string    { return s.prefix + "keyid:" + id }
func (s *RedisStore) keysKey() string              { return s.prefix + "keys" }
func (s *RedisStore) configKey(name string) string { return s.prefix + "config:" + name }
func (s *RedisStore) seqKey(name string) string    { return s.prefix + "config:" + name + ":seq" }
func (s *RedisStore) channel() string              { return s.prefix + "config-changed" }

// Verify implements control.CredentialStore.
func (s *RedisStore) Verify(ctx context.Context, value string) (control.Credential, control.CredentialStatus, error) {
	fields, err := s.rdb.HGetAll(ctx, s.keyKey(HashKey(value))).Result()
	if err != nil {
		return control.Credential{}, control.CredentialNotFound, fmt.Errorf("verify key: %w", err)
	}
	if len(fields) == 0 {
		return control.Credential{}, control.CredentialNotFound, nil
	}
	cred, st := status(keyFromFields(fields))
	return cred, st, nil
}

// Fetch implements control.ConfigStore.
func (s *RedisStore) Fetch(ctx context.Context, name string) (control.Document, error) {
	versions, err := s.ConfigVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	latest, ok := latestActive(versions)
	if !ok {
		return nil, notFound(name)
	}
	return latest.Document, nil
}

// AddKey implements Store.
func (s *RedisStore) AddKey(ctx context.Context, value string, rec KeyRecord) error {
	if err := validateKey(value, rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	hash := HashKey(value)

	claimed, err := s.rdb.SetNX(ctx, s.keyIDKey(rec.ID), hash, 0).Result()
	if err != nil {
		return fmt.Errorf("claim key id: %w", err)
	}
	if !claimed {
		return fmt.Errorf("%w: id %q", ErrKeyExists, rec.ID)
	}
	n, err := s.rdb.Exists(ctx, s.keyKey(hash)).Result()
	if err != nil || n > 0 {
		s.rdb.Del(ctx, s.keyIDKey(rec.ID))
		if err != nil {
			return fmt.Errorf("check key: %w", err)
		}
		return ErrKeyExists
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.keyKey(hash),
			"id", rec.ID,
			"name", rec.Name,
			"team", rec.Team,
			"active", boolField(rec.Active),
			"created_at", rec.CreatedAt.UnixNano(),
		)
		pipe.SAdd(ctx, s.keysKey(), rec.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store key: %w", err)
	}
	return nil
}

// SetKeyActive implements Store.
func (s *RedisStore) SetKeyActive(ctx context.Context, id string, active bool) error {
	hash, err := s.rdb.Get(ctx, s.keyIDKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("lookup key: %w", err)
	}
	return s.rdb.HSet(ctx, s.keyKey(hash), "active", boolField(active)).Err()
}

// ListKeys implements Store.
func (s *RedisStore) ListKeys(ctx context.Context) ([]KeyRecord, error) {
	ids, err := s.rdb.SMembers(ctx, s.keysKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make([]KeyRecord, 0, len(ids))
	for _, id := range ids {
		hash, err := s.rdb.Get(ctx, s.keyIDKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup key %q: %w", id, err)
		}
		fields, err := s.rdb.HGetAll(ctx, s.keyKey(hash)).Result()
		if err != nil {
			return nil, fmt.Errorf("read key %q: %w", id, err)
		}
		if len(fields) > 0 {
			out = append(out, keyFromFields(fields))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutConfig implements Store.
func (s *RedisStore) PutConfig(ctx context.Context, name string, doc control.Document) (int, error) {
	if err := validateConfigName(name); err != nil {
		return 0, err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return 0, err
	}
	seq, err := s.rdb.Incr(ctx, s.seqKey(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate version: %w", err)
	}
	entry, err := json.Marshal(redisVersion{Document: data, Active: true, CreatedAt: time.Now().UTC().UnixNano()})
	if err != nil {
		return 0, err
	}
	if err := s.rdb.HSet(ctx, s.configKey(name), strconv.FormatInt(seq, 10), entry).Err(); err != nil {
		return 0, fmt.Errorf("store config: %w", err)
	}
	s.publish(ctx, name)
	return int(seq), nil
}

// DeactivateConfig implements Store.
func (s *RedisStore) DeactivateConfig(ctx context.Context, name string, version int) error {
	field := strconv.Itoa(version)
	raw, err := s.rdb.HGet(ctx, s.configKey(name), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s@%d", ErrVersionNotFound, name, version)
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var entry redisVersion
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("decode config entry: %w", err)
	}
	entry.Active = false
	updated, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, s.configKey(name), field, updated).Err(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	s.publish(ctx, name)
	return nil
}

// ConfigVersions implements Store.
func (s *RedisStore) ConfigVersions(ctx context.Context, name string) ([]ConfigVersion, error) {
	fields, err := s.rdb.HGetAll(ctx, s.configKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", name, err)
	}
	out := make([]ConfigVersion, 0, len(fields))
	for field, raw := range fields {
		version, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		var entry redisVersion
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode config entry %s@%d: %w", name, version, err)
		}
		doc, err := decodeDocument(entry.Document)
		if err != nil {
			return nil, err
		}
		out = append(out, ConfigVersion{
			Name:      name,
			Version:   version,
			Active:    entry.Active,
			Document:  doc,
			CreatedAt: time.Unix(0, entry.CreatedAt).UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Changes subscribes to configuration change notifications published by any
// store instance sharing the prefix. The channel is closed when ctx is done.
func (s *RedisStore) Changes(ctx context.Context) (<-chan string, error) {
	pubsub := s.rdb.Subscribe(ctx, s.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel(), err)
	}

	out := make(chan string, 16)
	msgs := pubsub.Channel()
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisStore) publish(ctx context.Context, name string) {
	// Notification loss only delays reloads until the next scheduled refresh.
	_ = s.rdb.Publish(ctx, s.channel(), name).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if s.owned {
		return s.rdb.Close()
	}
	return nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func keyFromFields(fields map[string]string) KeyRecord {
	rec := KeyRecord{
		ID:     fields["id"],
		Name:   fields["name"],
		Team:   fields["team"],
		Active: fields["active"] == "1",
	}
	if ns, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		rec.CreatedAt = time.Unix(0, ns).UTC()
	}
	return rec
}
