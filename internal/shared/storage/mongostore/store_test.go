package mongostore

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"batchrpc/internal/shared/model"
	"batchrpc/internal/shared/storage"
)

// testStore 创建测试用 Store，使用独立数据库避免污染
func testStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	s, err := NewStore(context.Background(), uri, "batchrpc_test")
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	ctx := context.Background()
	require.NoError(t, s.db.Drop(ctx))
	require.NoError(t, s.ensureIndexes(ctx))

	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})
	return s
}

func TestAuditFilter(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := auditFilter(model.AuditFilter{CorrelationID: "c", Cmd: "echo", Event: model.AuditPreCommand, Since: since})

	assert.Equal(t, bson.D{
		{Key: "correlation_id", Value: "c"},
		{Key: "cmd", Value: "echo"},
		{Key: "event", Value: model.AuditPreCommand},
		{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since}}},
	}, f)
	assert.Empty(t, auditFilter(model.AuditFilter{}))
}

func TestAuditDocRoundTrip(t *testing.T) {
	rec := &model.AuditRecord{ID: "a", Event: model.AuditPostCommand, Cmd: "echo", Data: json.RawMessage(`{"x":1,"tags":["a"]}`)}
	doc, err := toAuditDoc(rec)
	require.NoError(t, err)

	back, err := doc.record()
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"tags":["a"]}`, string(back.Data))

	empty, err := toAuditDoc(&model.AuditRecord{ID: "b"})
	require.NoError(t, err)
	assert.Nil(t, empty.Data)
}

func TestAuditCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := &model.AuditRecord{Event: model.AuditPreCommand, CorrelationID: "c1", Cmd: "echo", Data: json.RawMessage(`{"a":"b"}`)}
	require.NoError(t, s.RecordAudit(ctx, rec))

	got, err := s.GetAudit(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "echo", got.Cmd)
	assert.JSONEq(t, `{"a":"b"}`, string(got.Data))

	_, err = s.GetAudit(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.RecordAudit(ctx, rec), storage.ErrDuplicate)

	list, err := s.ListAudit(ctx, model.AuditFilter{CorrelationID: "c1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	n, err := s.CountAudit(ctx, model.AuditFilter{Cmd: "echo"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
