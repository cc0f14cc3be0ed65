// Package cache deduplicates repeat captures of the same URL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/dgnsrekt/autosnapper/internal/weburl"
)

// Entry is one cached capture.
type Entry struct {
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	ImageData  string    `json:"image_data"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Cache stores capture results by key.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key returns the hex SHA-256 of the normalized URL. URLs that fail
// normalization are hashed as given after trimming.
func Key(rawURL string) string {
	norm, err := weburl.Normalize(rawURL)
	if err != nil {
		norm = strings.TrimSpace(rawURL)
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}
