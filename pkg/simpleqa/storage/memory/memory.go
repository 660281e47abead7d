package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-qa/pkg/simpleqa"
)

type object struct {
	data        []byte
	contentType string
	updatedAt   time.Time
	etag        string
}

// Backend is an in-memory implementation of the simpleqa.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]*object),
	}
}

// Put stores a copy of data under objectKey. The ETag is the hex MD5 of the
// content, as S3 reports for single-part uploads.
func (b *Backend) Put(ctx context.Context, objectKey string, data []byte, contentType string) (*simpleqa.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum := md5.Sum(data)
	obj := &object{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		updatedAt:   time.Now().UTC(),
		etag:        hex.EncodeToString(sum[:]),
	}
	if obj.contentType == "" {
		obj.contentType = "application/octet-stream"
	}

	b.mu.Lock()
	b.objects[objectKey] = obj
	b.mu.Unlock()

	return obj.meta(objectKey), nil
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*simpleqa.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, simpleqa.ErrBlobNotFound
	}
	return obj.meta(objectKey), nil
}

// Delete deletes content. Missing keys are ignored.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, objectKey)
	return nil
}

// Get returns a copy of the stored bytes
func (b *Backend) Get(objectKey string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Keys lists every stored key in lexical order
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (o *object) meta(key string) *simpleqa.ObjectMeta {
	return &simpleqa.ObjectMeta{
		Key:         key,
		Size:        int64(len(o.data)),
		ContentType: o.contentType,
		UpdatedAt:   o.updatedAt,
		ETag:        o.etag,
	}
}
