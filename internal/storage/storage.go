// Package storage defines the cold storage blob interface used to archive
// completed gameweeks, and the keys artifacts are stored under.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("blob not found")

	// ErrStorageUnavailable wraps every backend failure other than a miss.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// BlobStore is a key value store for JSON documents. Put overwrites, so
// writing the same key twice leaves one record.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Artifact types archived per gameweek.
const (
	ArtifactCohorts   = "cohorts"
	ArtifactPicks     = "picks"
	ArtifactReference = "reference"
)

// Key returns the blob key of an artifact, e.g. "periods/7/cohorts.json".
func Key(period int, artifact string) string {
	return fmt.Sprintf("periods/%d/%s.json", period, artifact)
}

// CohortsKey is Key(period, ArtifactCohorts).
func CohortsKey(period int) string { return Key(period, ArtifactCohorts) }

// PicksKey is Key(period, ArtifactPicks).
func PicksKey(period int) string { return Key(period, ArtifactPicks) }

// ReferenceKey is Key(period, ArtifactReference).
func ReferenceKey(period int) string { return Key(period, ArtifactReference) }

// Unavailable wraps a backend error so that it matches ErrStorageUnavailable.
func Unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrStorageUnavailable, op, key, err)
}
