package mongostore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"batchrpc/internal/shared/model"
)

// auditDoc 审计记录文档，Data 以 BSON 文档保存便于查询
type auditDoc struct {
	ID            string               `bson:"_id"`
	Event         model.AuditEventType `bson:"event"`
	CorrelationID string               `bson:"correlation_id"`
	Cmd           string               `bson:"cmd"`
	Failed        bool                 `bson:"failed"`
	Data          any                  `bson:"data,omitempty"`
	CreatedAt     time.Time            `bson:"created_at"`
}

func toAuditDoc(rec *model.AuditRecord) (*auditDoc, error) {
	doc := &auditDoc{
		ID:            rec.ID,
		Event:         rec.Event,
		CorrelationID: rec.CorrelationID,
		Cmd:           rec.Cmd,
		Failed:        rec.Failed,
		CreatedAt:     rec.CreatedAt,
	}
	if len(rec.Data) > 0 {
		var data any
		if err := json.Unmarshal(rec.Data, &data); err != nil {
			return nil, err
		}
		doc.Data = data
	}
	return doc, nil
}

func (d *auditDoc) record() (*model.AuditRecord, error) {
	rec := &model.AuditRecord{
		ID:            d.ID,
		Event:         d.Event,
		CorrelationID: d.CorrelationID,
		Cmd:           d.Cmd,
		Failed:        d.Failed,
		CreatedAt:     d.CreatedAt,
	}
	if d.Data != nil {
		raw, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: d.Data}}, false, false)
		if err != nil {
			return nil, err
		}
		var wrapper struct {
			V json.RawMessage `json:"v"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, err
		}
		rec.Data = wrapper.V
	}
	return rec, nil
}

// RecordAudit 写入审计记录
func (s *Store) RecordAudit(ctx context.Context, rec *model.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	doc, err := toAuditDoc(rec)
	if err != nil {
		return err
	}
	_, err = s.audit.InsertOne(ctx, doc)
	return wrapError(err)
}

// GetAudit 获取审计记录
func (s *Store) GetAudit(ctx context.Context, id string) (*model.AuditRecord, error) {
	doc, err := findOne[auditDoc](ctx, s.audit, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return nil, err
	}
	return doc.record()
}

// ListAudit 列出审计记录
func (s *Store) ListAudit(ctx context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = model.DefaultAuditLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	docs, err := findMany[auditDoc](ctx, s.audit, auditFilter(filter), opts)
	if err != nil {
		return nil, err
	}

	records := make([]*model.AuditRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := d.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// CountAudit 统计审计记录
func (s *Store) CountAudit(ctx context.Context, filter model.AuditFilter) (int64, error) {
	n, err := s.audit.CountDocuments(ctx, auditFilter(filter))
	return n, wrapError(err)
}

func auditFilter(f model.AuditFilter) bson.D {
	filter := bson.D{}
	if f.CorrelationID != "" {
		filter = append(filter, bson.E{Key: "correlation_id", Value: f.CorrelationID})
	}
	if f.Cmd != "" {
		filter = append(filter, bson.E{Key: "cmd", Value: f.Cmd})
	}
	if f.Event != "" {
		filter = append(filter, bson.E{Key: "event", Value: f.Event})
	}
	if !f.Since.IsZero() {
		filter = append(filter, bson.E{Key: "created_at", Value: bson.D{{Key: "$gte", Value: f.Since.UTC()}}})
	}
	return filter
}
