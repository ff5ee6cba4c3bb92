// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
// 原始文档字节在受理时暂存于此，摄取管道再从这里取回。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"xiaowen-go/internal/config"
	"xiaowen-go/pkg/log"
)

// Client 封装 MinIO 客户端与桶名。
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	ctx := context.Background()
	exists, err := mc.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := mc.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}

	log.Infof("MinIO 客户端初始化成功, bucket: %s", cfg.BucketName)
	return &Client{mc: mc, bucket: cfg.BucketName}, nil
}

// PutObject 将原始文档字节写入对象存储。
func (c *Client) PutObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("写入 MinIO 对象失败 (key=%s): %w", objectKey, err)
	}
	return nil
}

// GetObject 取回对象的完整内容。
func (c *Client) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取 MinIO 对象失败 (key=%s): %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取 MinIO 对象流失败 (key=%s): %w", objectKey, err)
	}
	return data, nil
}

// RemoveObject 删除对象，对象不存在时也返回成功（幂等）。
func (c *Client) RemoveObject(ctx context.Context, objectKey string) error {
	err := c.mc.RemoveObject(ctx, c.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除 MinIO 对象失败 (key=%s): %w", objectKey, err)
	}
	return nil
}
