// Package objstore 封装 MinIO 对象存储客户端
package objstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/containerd/errdefs"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"batchrpc/internal/config"
)

// ErrNotFound 对象不存在
var ErrNotFound = fmt.Errorf("object not found: %w", errdefs.ErrNotFound)

// ObjectInfo 对象元信息
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"lastModified"`
}

// Client MinIO 客户端封装
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient 创建 MinIO 客户端
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access_key and secret_key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "batchrpc"
	}

	return &Client{mc: mc, bucket: bucket}, nil
}

// Bucket 返回 bucket 名称
func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket 确保 bucket 存在
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		log.Printf("[minio] Created bucket: %s", c.bucket)
	}
	return nil
}

// Upload 上传对象
func (c *Client) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (ObjectInfo, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := c.mc.PutObject(ctx, c.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  contentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// Download 下载对象，调用方负责关闭返回的 ReadCloser
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("download %s: %w", key, wrapError(err))
	}
	// 验证对象存在（GetObject 不会立即返回错误）
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat %s: %w", key, wrapError(err))
	}
	return obj, toObjectInfo(st), nil
}

// Stat 获取对象元信息
func (c *Client) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	st, err := c.mc.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", key, wrapError(err))
	}
	return toObjectInfo(st), nil
}

// Exists 检查对象是否存在
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Stat(ctx, key)
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// Delete 删除对象，对象不存在时不报错
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
}

func toObjectInfo(st minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          st.Key,
		Size:         st.Size,
		ContentType:  st.ContentType,
		ETag:         st.ETag,
		LastModified: st.LastModified,
	}
}

// wrapError 将 NoSuchKey 转换为 ErrNotFound
func wrapError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return ErrNotFound
	}
	return err
}
