// Package storage publishes assembled audio assets to durable object storage
// under deterministic, date-sharded keys.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ObjectStore is the boundary to the durable blob store. Put returns the
// publicly resolvable URL of the stored object.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// AssetKey builds the storage key for one generation of a job's audio:
// {prefix}/{yyyy}/{mm}/{dd}/brief-{jobID}-{unix-millis}.{ext}. The embedded
// generation timestamp keeps repeated regenerations of the same job from
// colliding.
func AssetKey(prefix, jobID string, now time.Time, ext string) string {
	now = now.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/brief-%s-%d.%s",
		strings.TrimSuffix(prefix, "/"), now.Year(), int(now.Month()), now.Day(),
		jobID, now.UnixMilli(), ext)
}
