// Package mongostore 基于 MongoDB 的命令审计存储
package mongostore

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ColCommandAudit 审计记录 Collection
const ColCommandAudit = "command_audit"

// Store 实现 storage.AuditStore
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	audit  *mongo.Collection
}

// NewStore 连接 MongoDB 并创建索引，索引失败只记录警告
//
// uri 例如 "mongodb://localhost:27017"，dbName 例如 "batchrpc"。
func NewStore(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{client: client, db: db, audit: db.Collection(ColCommandAudit)}
	if err := s.ensureIndexes(ctx); err != nil {
		log.Printf("[MongoStore] WARNING: ensure indexes failed: %v", err)
	}
	return s, nil
}

// Close 断开连接
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ensureIndexes 按关联 ID、命令名和时间查询
func (s *Store) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "correlation_id", Value: 1}}},
		{Keys: bson.D{{Key: "cmd", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	if _, err := s.audit.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("index %s: %w", ColCommandAudit, err)
	}
	return nil
}
