package documents

import (
	"context"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/gymsheets/internal/telemetry/tracing"
)

var _ Store = (*MinioStore)(nil)

type MinioStoreParams struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the object store and creates the bucket when missing.
func NewMinioStore(ctx context.Context, params MinioStoreParams) (*MinioStore, error) {
	client, err := minio.New(params.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(params.AccessKey, params.SecretKey, ""),
		Secure: params.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("new minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, params.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", params.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, params.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", params.Bucket, err)
		}
		log.Printf("documents bucket [%s] created", params.Bucket)
	}

	return &MinioStore{
		client: client,
		bucket: params.Bucket,
	}, nil
}

func (ms *MinioStore) Put(ctx context.Context, params PutParams) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "documents.minio.put")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	span.SetAttributes(attribute.String("file.name", params.Filename))
	span.SetAttributes(attribute.Int64("file.size", params.Size))

	key := newKey(params.Filename)
	name, err := objectName(params.Owner, key)
	if err != nil {
		return "", err
	}

	size := params.Size
	if size <= 0 {
		size = -1
	}
	if _, err := ms.client.PutObject(ctx, ms.bucket, name, params.File, size, minio.PutObjectOptions{
		ContentType: params.ContentType,
		UserMetadata: map[string]string{
			"filename": sanitizeFilename(params.Filename),
		},
	}); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	log.Debugf("minio documents: saved %s", name)
	return key, nil
}

func (ms *MinioStore) Get(ctx context.Context, owner, key string) (_ *Document, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "documents.minio.get")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	name, err := objectName(owner, key)
	if err != nil {
		return nil, err
	}

	obj, err := ms.client.GetObject(ctx, ms.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject is lazy, Stat does the first request
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	return &Document{
		Key:         key,
		Name:        nameFromKey(key),
		ContentType: info.ContentType,
		Size:        info.Size,
		ModTime:     info.LastModified,
		Content:     obj,
	}, nil
}

func (ms *MinioStore) Delete(ctx context.Context, owner, key string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "documents.minio.delete")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	name, err := objectName(owner, key)
	if err != nil {
		return err
	}

	if _, err := ms.client.StatObject(ctx, ms.bucket, name, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("stat object: %w", err)
	}
	return ms.client.RemoveObject(ctx, ms.bucket, name, minio.RemoveObjectOptions{})
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
