package mongostore

import (
	"context"
	"errors"

	"batchrpc/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// wrapError 将 MongoDB 错误转换为领域错误
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	return err
}

// findOne 查找单个文档并解码到 result，文档不存在时返回 storage.ErrNotFound
func findOne[T any](ctx context.Context, col *mongo.Collection, filter bson.D) (*T, error) {
	var result T
	if err := col.FindOne(ctx, filter).Decode(&result); err != nil {
		return nil, wrapError(err)
	}
	return &result, nil
}

// findMany 查找多个文档
func findMany[T any](ctx context.Context, col *mongo.Collection, filter bson.D, opts ...options.Lister[options.FindOptions]) ([]*T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	var results []*T
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, err
		}
		results = append(results, &item)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
