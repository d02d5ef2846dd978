// Package media загружает медиафайлы дропов в S3-совместимое хранилище.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrMediaRejected возвращается для файлов недопустимого размера или формата.
// Загрузка в этом случае не начинается, записей в хранилищах не появляется.
var ErrMediaRejected = errors.New("media rejected")

// MaxSizeBytes — предельный размер медиафайла.
const MaxSizeBytes = 8 << 20

var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"video/mp4":  "mp4",
}

// Config содержит параметры подключения к хранилищу медиафайлов.
type Config struct {
	Endpoint   string
	Bucket     string
	AccessKey  string
	SecretKey  string
	CDNBaseURL string
}

// Uploader загружает файлы в бакет и возвращает публичные ссылки.
type Uploader struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
}

// NewUploader создаёт загрузчик для S3-совместимого хранилища с явными
// учётными данными и произвольной конечной точкой.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load media storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	cdn := cfg.CDNBaseURL
	if cdn == "" {
		cdn = fmt.Sprintf("%s/%s", cfg.Endpoint, cfg.Bucket)
	}

	return &Uploader{
		client:     client,
		bucket:     cfg.Bucket,
		cdnBaseURL: cdn,
	}, nil
}

// Upload проверяет файл, кладёт его в бакет и возвращает публичный URL.
func (u *Uploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	ext, err := validate(len(data), contentType)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("drops/%s.%s", uuid.NewString(), ext)

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put media object: %w", err)
	}

	return fmt.Sprintf("%s/%s", u.cdnBaseURL, key), nil
}

func validate(size int, contentType string) (string, error) {
	if size == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrMediaRejected)
	}
	if size > MaxSizeBytes {
		return "", fmt.Errorf("%w: payload exceeds %d bytes", ErrMediaRejected, MaxSizeBytes)
	}

	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported content type %q", ErrMediaRejected, contentType)
	}

	return ext, nil
}
