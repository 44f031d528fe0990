package repository

import (
	"context"
	"encoding/json"
	"time"

	"arete/internal/common/cache"
	"arete/internal/interview/model"
	appErr "arete/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const sessionKeyPrefix = "interview:session:"

// SnapshotStore saves and restores whole session states.
type SnapshotStore interface {
	Save(ctx context.Context, state *model.SessionState) error
	// Load returns a SessionNotFound error when no snapshot exists.
	Load(ctx context.Context, sessionID string) (*model.SessionState, error)
	Delete(ctx context.Context, sessionID string) error
}

// SnapshotRepository keeps zstd-compressed JSON snapshots in the cache.
type SnapshotRepository struct {
	cache   cache.Cache
	TTL     time.Duration
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewSnapshotRepository creates a repository. ttl 0 keeps snapshots forever.
func NewSnapshotRepository(cacheClient cache.Cache, ttl time.Duration) (*SnapshotRepository, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "create zstd encoder failed")
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "create zstd decoder failed")
	}
	return &SnapshotRepository{cache: cacheClient, TTL: ttl, encoder: encoder, decoder: decoder}, nil
}

// Save overwrites the snapshot of state.
func (r *SnapshotRepository) Save(ctx context.Context, state *model.SessionState) error {
	if state == nil || state.SessionID == "" {
		return appErr.ValidationError("session_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return appErr.Wrapf(err, appErr.SnapshotEncodeFailed, "marshal session failed")
	}
	compressed := r.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	if err := r.cache.Set(ctx, sessionKeyPrefix+state.SessionID, compressed, r.TTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheSetFailed, "store session snapshot failed")
	}
	return nil
}

// Load restores a session snapshot.
func (r *SnapshotRepository) Load(ctx context.Context, sessionID string) (*model.SessionState, error) {
	if sessionID == "" {
		return nil, appErr.ValidationError("session_id", "required")
	}
	if r.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load session snapshot failed")
	}
	if val == "" {
		return nil, appErr.SessionNotFoundError(sessionID)
	}
	data, err := r.decoder.DecodeAll([]byte(val), nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SnapshotDecodeFailed, "decompress session snapshot failed")
	}
	var state model.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, appErr.Wrapf(err, appErr.SnapshotDecodeFailed, "decode session snapshot failed")
	}
	return &state, nil
}

// Delete removes a snapshot.
func (r *SnapshotRepository) Delete(ctx context.Context, sessionID string) error {
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if err := r.cache.Del(ctx, sessionKeyPrefix+sessionID); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "delete session snapshot failed")
	}
	return nil
}
