package redis

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestDecodeRecord(t *testing.T) {
	record, err := decodeRecord("k", map[string]string{
		fieldRequestHash:  "h",
		fieldStatus:       "done",
		fieldResponseBody: `{"ok":true}`,
		fieldHTTPStatus:   "201",
		fieldTTLAt:        "1767225600000",
		fieldCreatedAt:    "1767225500000",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, record.Status)
	assert.Equal(t, 201, record.HTTPStatus)
	assert.Equal(t, `{"ok":true}`, string(record.ResponseBody))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), record.TTLAt)
	assert.True(t, record.UpdatedAt.IsZero())
}

func TestDecodeRecordRejectsUnknownStatus(t *testing.T) {
	_, err := decodeRecord("k", map[string]string{fieldStatus: "weird"})
	require.Error(t, err)
}

func TestParseCreateResult(t *testing.T) {
	created, hash, err := parseCreateResult([]any{int64(0), "other"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "other", hash)

	_, _, err = parseCreateResult([]any{"x"})
	require.Error(t, err)
}

func TestKeysShareHashTag(t *testing.T) {
	repo := NewIdempotencyRepository(nil, "")
	assert.True(t, strings.HasPrefix(repo.recordKey("abc"), "{shop:idem}"))
	assert.True(t, strings.HasPrefix(repo.indexKey(), "{shop:idem}"))
}

func TestCreateProcessingValidatesInput(t *testing.T) {
	repo := NewIdempotencyRepository(nil, "")

	_, err := repo.CreateProcessing(context.Background(), " ", "hash", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(context.Background(), "key", "", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
}

// Интеграция запускается только при заданном SHOP_REDIS_TEST_ADDR.
func openRedisForIntegrationTest(t *testing.T) *IdempotencyRepository {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("SHOP_REDIS_TEST_ADDR"))
	if addr == "" {
		t.Skip("SHOP_REDIS_TEST_ADDR is not set, skipping redis integration test")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	prefix := "shop:test:" + domain.NewID()
	repo := NewIdempotencyRepository(client, prefix)
	require.NoError(t, repo.Ping(context.Background()))
	return repo
}

func TestIdempotencyRepository_RedisFlow(t *testing.T) {
	repo := openRedisForIntegrationTest(t)
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "key-1", "hash-1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = repo.CreateProcessing(ctx, "key-1", "hash-1", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	_, err = repo.CreateProcessing(ctx, "key-1", "hash-2", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.MarkDone(ctx, "key-1", []byte(`{"id":"o-1"}`), 201))
	record, err := repo.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, record.Status)
	assert.Equal(t, 201, record.HTTPStatus)
	assert.Equal(t, `{"id":"o-1"}`, string(record.ResponseBody))

	assert.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, 500), domain.ErrIdempotencyKeyNotFound)

	_, err = repo.CreateProcessing(ctx, "key-2", "hash", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	deleted, err := repo.DeleteExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = repo.Get(ctx, "key-2")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}
