// Package storage はアバター画像をオブジェクトストレージへ保存する。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxAvatarBytes はアバター画像の上限サイズ。
const MaxAvatarBytes = 5 << 20

// allowedContentTypes はアップロードを受け付ける画像形式。
var allowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// AllowedContentType はContent-Typeがアバターとして受け付ける形式かを返す。
// "image/png; charset=..." のようなパラメータは無視する。
func AllowedContentType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return allowedContentTypes[strings.ToLower(strings.TrimSpace(mediaType))]
}

// AvatarStore はアバター画像の保存先。
type AvatarStore interface {
	// Upload はユーザーのアバターを上書き保存し、公開URLを返す。
	Upload(ctx context.Context, userID string, body []byte, contentType string) (string, error)
}

// ObjectPutter は*s3.ClientのPutObjectを抽象化する。
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3AvatarStore はS3にavatars/<userID>として保存する。
type S3AvatarStore struct {
	client        ObjectPutter
	bucket        string
	publicBaseURL string
}

// NewS3Client はデフォルトの認証情報チェーンでS3クライアントを生成する。
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗しました: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// NewS3AvatarStore はS3AvatarStoreを生成する。
func NewS3AvatarStore(client ObjectPutter, bucket, publicBaseURL string) *S3AvatarStore {
	return &S3AvatarStore{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// AvatarKey はユーザーのアバターのオブジェクトキーを返す。
func AvatarKey(userID string) string {
	return "avatars/" + userID
}

// Upload はアバターを上書き保存する。
func (s *S3AvatarStore) Upload(ctx context.Context, userID string, body []byte, contentType string) (string, error) {
	if !AllowedContentType(contentType) {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}
	if len(body) > MaxAvatarBytes {
		return "", fmt.Errorf("avatar too large: %d bytes", len(body))
	}

	key := AvatarKey(userID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		CacheControl:  aws.String("no-cache"),
	})
	if err != nil {
		return "", fmt.Errorf("アバターのアップロードに失敗しました: %w", err)
	}
	return s.publicBaseURL + "/avatars/" + url.PathEscape(userID), nil
}

// compile-time interface check
var _ AvatarStore = (*S3AvatarStore)(nil)
