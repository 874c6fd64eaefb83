package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/pkg"
)

var _ Store = (*DiskStore)(nil)

type DiskStore struct {
	rootPath string
}

func NewDiskStore(rootPath string) (*DiskStore, error) {
	if rootPath == "" {
		return nil, errors.New("root path cannot be empty")
	}
	if err := os.MkdirAll(rootPath, 0o750); err != nil {
		return nil, fmt.Errorf("create documents root: %w", err)
	}
	return &DiskStore{
		rootPath: rootPath,
	}, nil
}

func (ds *DiskStore) Put(ctx context.Context, params PutParams) (_ string, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "documents.disk.put")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	span.SetAttributes(attribute.String("file.name", params.Filename))
	span.SetAttributes(attribute.Int64("file.size", params.Size))

	key := newKey(params.Filename)
	name, err := objectName(params.Owner, key)
	if err != nil {
		return "", err
	}

	ownerDir := filepath.Join(ds.rootPath, params.Owner)
	if err := os.MkdirAll(ownerDir, 0o750); err != nil {
		return "", fmt.Errorf("create owner dir: %w", err)
	}

	newFilePath := filepath.Join(ds.rootPath, filepath.FromSlash(name))
	dst, err := os.OpenFile(newFilePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, params.File); err != nil {
		dst.Close()
		if removeErr := os.Remove(newFilePath); removeErr != nil {
			log.Errorf("failed to remove partial document %s: %s", newFilePath, removeErr)
		}
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}

	log.Debugf("disk documents: saved %s", name)
	return key, nil
}

func (ds *DiskStore) Get(ctx context.Context, owner, key string) (_ *Document, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "documents.disk.get")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	name, err := objectName(owner, key)
	if err != nil {
		return nil, err
	}

	filePath := filepath.Join(ds.rootPath, filepath.FromSlash(name))
	exists, err := pkg.PathExists(filePath, false)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrDocumentNotFound
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Document{
		Key:         key,
		Name:        nameFromKey(key),
		ContentType: contentType,
		Size:        stat.Size(),
		ModTime:     stat.ModTime(),
		Content:     file,
	}, nil
}

func (ds *DiskStore) Delete(ctx context.Context, owner, key string) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "documents.disk.delete")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	name, err := objectName(owner, key)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(ds.rootPath, filepath.FromSlash(name))); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrDocumentNotFound
		}
		return err
	}
	return nil
}
