package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hakivo/briefcast/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsObjectStore implements ObjectStore on a NATS JetStream object store
// bucket. Objects are served to listeners through a CDN or gateway fronting
// the bucket, so the public URL is composed from the configured base URL.
type NatsObjectStore struct {
	cfg   config.StorageConfig
	store nats.ObjectStore
}

// NewNatsObjectStore creates the bucket if needed, or binds to it when it
// already exists.
func NewNatsObjectStore(js nats.JetStreamContext, cfg config.StorageConfig) (*NatsObjectStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      cfg.Bucket,
		Description: "Published briefcast audio assets",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("create object store bucket %q: %w", cfg.Bucket, err)
		}
		store, err = js.ObjectStore(cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("bind to object store bucket %q: %w", cfg.Bucket, err)
		}
	}
	return &NatsObjectStore{cfg: cfg, store: store}, nil
}

// Put stores the asset and returns its public URL.
func (s *NatsObjectStore) Put(_ context.Context, key string, body []byte, contentType string) (string, error) {
	meta := &nats.ObjectMeta{
		Name: key,
		Headers: nats.Header{
			"Content-Type": []string{contentType},
		},
	}
	if _, err := s.store.Put(meta, bytes.NewReader(body)); err != nil {
		return "", fmt.Errorf("put object %q in bucket %q: %w", key, s.cfg.Bucket, err)
	}
	return s.PublicURL(key), nil
}

// Get retrieves a stored asset, mainly for verification tooling and tests.
func (s *NatsObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := s.store.GetBytes(key)
	if err != nil {
		return nil, fmt.Errorf("get object %q from bucket %q: %w", key, s.cfg.Bucket, err)
	}
	return data, nil
}

// PublicURL composes the externally resolvable URL for a key.
func (s *NatsObjectStore) PublicURL(key string) string {
	return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + key
}
