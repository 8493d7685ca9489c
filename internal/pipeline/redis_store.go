package pipeline

import (
	"context"

	"github.com/bytedance/sonic"
	backend "github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"

	"orchestrator/pkg/exception"
)

const defaultRedisPrefix = "engine:pipeline:"

// checkIndexes fails before any write when an index key holds another type,
// so a script either applies all its writes or none.
const checkIndexes = `
for i = 2, #KEYS do
	local t = redis.call('TYPE', KEYS[i]).ok
	if t ~= 'none' and t ~= 'set' then
		return redis.error_reply('WRONGTYPE index ' .. KEYS[i])
	end
end
`

// KEYS: document, owner index, pending index. ARGV: document, pending flag.
var insertScript = backend.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
` + checkIndexes + `
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], KEYS[1])
if ARGV[2] == '1' then
	redis.call('SADD', KEYS[3], KEYS[1])
end
return 1
`)

// KEYS: document, pending index. ARGV: document, pending flag.
var updateScript = backend.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
` + checkIndexes + `
redis.call('SET', KEYS[1], ARGV[1])
if ARGV[2] == '1' then
	redis.call('SADD', KEYS[2], KEYS[1])
else
	redis.call('SREM', KEYS[2], KEYS[1])
end
return 1
`)

// KEYS: document, owner index, pending index.
var deleteScript = backend.NewScript(checkIndexes + `
local n = redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], KEYS[1])
redis.call('SREM', KEYS[3], KEYS[1])
return n
`)

// RedisStore keeps pipelines in Redis so they outlive the process. Mutation
// still goes through the engine loop only, Redis is storage and not a lock.
//
// Keys under the prefix:
//
//	p:{user}:{id}  pipeline document
//	owner:{user}   set of the user's document keys
//	pending        set of pending document keys
type RedisStore struct {
	client *backend.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(key Key) string {
	return s.prefix + "p:" + key.UserID + ":" + key.ID.String()
}

func (s *RedisStore) ownerKey(userID string) string {
	return s.prefix + "owner:" + userID
}

func (s *RedisStore) pendingKey() string {
	return s.prefix + "pending"
}

func (s *RedisStore) Insert(ctx context.Context, p Pipeline) error {
	data, err := sonic.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal pipeline")
	}

	k := s.key(p.Key())
	keys := []string{k, s.ownerKey(p.UserID), s.pendingKey()}
	ok, err := insertScript.Run(ctx, s.client, keys, data, pendingFlag(p)).Int64()
	if err != nil {
		return errors.Wrap(err, "redis insert pipeline").With("key", k)
	}
	if ok == 0 {
		return errors.Wrap(exception.ErrPipelineDuplicate, p.Key().String())
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Pipeline, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return Pipeline{}, exception.ErrPipelineNotFound
		}
		return Pipeline{}, errors.Wrap(err, "redis get")
	}

	var p Pipeline
	if err := sonic.Unmarshal(val, &p); err != nil {
		return Pipeline{}, errors.Wrap(err, "unmarshal pipeline")
	}
	return p, nil
}

func (s *RedisStore) Update(ctx context.Context, p Pipeline) error {
	data, err := sonic.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal pipeline")
	}

	k := s.key(p.Key())
	ok, err := updateScript.Run(ctx, s.client, []string{k, s.pendingKey()}, data, pendingFlag(p)).Int64()
	if err != nil {
		return errors.Wrap(err, "redis update pipeline").With("key", k)
	}
	if ok == 0 {
		return exception.ErrPipelineNotFound
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	k := s.key(key)
	n, err := deleteScript.Run(ctx, s.client, []string{k, s.ownerKey(key.UserID), s.pendingKey()}).Int64()
	if err != nil {
		return errors.Wrap(err, "redis delete pipeline").With("key", k)
	}
	if n == 0 {
		return exception.ErrPipelineNotFound
	}
	return nil
}

func (s *RedisStore) CountByOwner(ctx context.Context, userID string) (int, error) {
	n, err := s.client.SCard(ctx, s.ownerKey(userID)).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis scard")
	}
	return int(n), nil
}

func (s *RedisStore) Pending(ctx context.Context) ([]Pipeline, error) {
	keys, err := s.client.SMembers(ctx, s.pendingKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis smembers")
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis mget")
	}

	out := make([]Pipeline, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// index entry without data, left behind by an interrupted delete
			s.client.SRem(ctx, s.pendingKey(), keys[i])
			continue
		}
		var p Pipeline
		if err := sonic.UnmarshalString(raw, &p); err != nil {
			return nil, errors.Wrap(err, "unmarshal pipeline").With("key", keys[i])
		}
		if p.Status == StatusPending {
			out = append(out, p)
		}
	}
	sortByCreation(out)
	return out, nil
}

func pendingFlag(p Pipeline) string {
	if p.Status == StatusPending {
		return "1"
	}
	return "0"
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
