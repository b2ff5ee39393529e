// Package redis хранит ключи идемпотентности в Redis для нескольких инстансов API.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	defaultPrefix = "shop:idem"
	opTimeout     = 3 * time.Second

	fieldRequestHash  = "request_hash"
	fieldStatus       = "status"
	fieldResponseBody = "response_body"
	fieldHTTPStatus   = "http_status"
	fieldTTLAt        = "ttl_at"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

// KEYS[1]: hash записи, KEYS[2]: zset индекс TTL.
// ARGV: request_hash, status, now_ms, ttl_ms, key.
// Возвращает {1, ""} при успехе и {0, hash существующей записи}, если ключ ещё жив.
var createProcessingScript = goredis.NewScript(`
local ttl = redis.call('HGET', KEYS[1], 'ttl_at')
if ttl and tonumber(ttl) > tonumber(ARGV[3]) then
  return {0, redis.call('HGET', KEYS[1], 'request_hash')}
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
  'request_hash', ARGV[1],
  'status', ARGV[2],
  'ttl_at', ARGV[4],
  'created_at', ARGV[3],
  'updated_at', ARGV[3])
redis.call('PEXPIREAT', KEYS[1], ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[5])
return {1, ''}
`)

// KEYS[1]: hash записи. ARGV: status, body, http_status, now_ms.
var markStatusScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1],
  'status', ARGV[1],
  'response_body', ARGV[2],
  'http_status', ARGV[3],
  'updated_at', ARGV[4])
return 1
`)

// IdempotencyRepository — реализация domain.IdempotencyRepository поверх Redis.
// Hash записи истекает сам по PEXPIREAT, DeleteExpired подчищает zset-индекс.
type IdempotencyRepository struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewIdempotencyRepository создаёт репозиторий; пустой prefix заменяется на shop:idem.
func NewIdempotencyRepository(client goredis.UniversalClient, prefix string) *IdempotencyRepository {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &IdempotencyRepository{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Hash tag держит запись и индекс в одном слоте Redis Cluster.
func (r *IdempotencyRepository) recordKey(key string) string {
	return "{" + r.prefix + "}:key:" + key
}

func (r *IdempotencyRepository) indexKey() string {
	return "{" + r.prefix + "}:ttl"
}

func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)

	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := createProcessingScript.Run(ctx, r.client,
		[]string{r.recordKey(key), r.indexKey()},
		requestHash, string(domain.IdempotencyStatusProcessing), now.UnixMilli(), ttlAt.UnixMilli(), key,
	).Slice()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	created, existingHash, err := parseCreateResult(res)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	if !created {
		existing, getErr := r.Get(ctx, key)
		if getErr != nil {
			existing = domain.IdempotencyRecord{Key: key, RequestHash: existingHash}
		}
		if existingHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       fromMillis(ttlAt.UnixMilli()),
		CreatedAt:   fromMillis(now.UnixMilli()),
		UpdatedAt:   fromMillis(now.UnixMilli()),
	}, nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.recordKey(key)).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}
	if len(fields) == 0 {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return decodeRecord(key, fields)
}

func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет из индекса ключи с ttl <= before и сами записи, если они ещё не истекли в Redis.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rangeBy := &goredis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(before.UnixMilli(), 10)}
	if limit > 0 {
		rangeBy.Count = int64(limit)
	}
	keys, err := r.client.ZRangeByScore(ctx, r.indexKey(), rangeBy).Result()
	if err != nil {
		return 0, fmt.Errorf("scan idempotency ttl index: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	members := make([]any, 0, len(keys))
	recordKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		members = append(members, key)
		recordKeys = append(recordKeys, r.recordKey(key))
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, recordKeys...)
	removed := pipe.ZRem(ctx, r.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return int(removed.Val()), nil
}

// Ping проверяет доступность Redis для readiness-проверки.
func (r *IdempotencyRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *IdempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	updated, err := markStatusScript.Run(ctx, r.client,
		[]string{r.recordKey(key)},
		string(status), responseBody, httpStatus, r.now().UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("mark idempotency key status: %w", err)
	}
	if updated == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func parseCreateResult(res []any) (bool, string, error) {
	if len(res) != 2 {
		return false, "", fmt.Errorf("unexpected create script result: %v", res)
	}
	code, ok := res[0].(int64)
	if !ok {
		return false, "", fmt.Errorf("unexpected create script code type %T", res[0])
	}
	hash, _ := res[1].(string)
	return code == 1, hash, nil
}

func decodeRecord(key string, fields map[string]string) (domain.IdempotencyRecord, error) {
	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: fields[fieldRequestHash],
		Status:      domain.IdempotencyStatus(fields[fieldStatus]),
	}
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", fields[fieldStatus], key)
	}
	if body, ok := fields[fieldResponseBody]; ok && body != "" {
		record.ResponseBody = []byte(body)
	}

	var err error
	if raw := fields[fieldHTTPStatus]; raw != "" {
		if record.HTTPStatus, err = strconv.Atoi(raw); err != nil {
			return domain.IdempotencyRecord{}, fmt.Errorf("decode http status for key %s: %w", key, err)
		}
	}
	for field, dst := range map[string]*time.Time{
		fieldTTLAt:     &record.TTLAt,
		fieldCreatedAt: &record.CreatedAt,
		fieldUpdatedAt: &record.UpdatedAt,
	} {
		raw := fields[field]
		if raw == "" {
			continue
		}
		ms, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			return domain.IdempotencyRecord{}, fmt.Errorf("decode %s for key %s: %w", field, key, parseErr)
		}
		*dst = fromMillis(ms)
	}
	return record, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
