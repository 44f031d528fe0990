package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"arete/internal/common/storage"
	"arete/internal/interview/eventlog"
	"arete/internal/interview/model"
	appErr "arete/pkg/errors"
)

const (
	archiveKeyPrefix   = "interviews/"
	archiveContentType = "application/json"
	maxArchiveBytes    = 8 << 20
)

// ArchivedSession is the durable record of a finished interview.
type ArchivedSession struct {
	State      *model.SessionState         `json:"state"`
	Transcript []eventlog.TranscriptEntry `json:"transcript"`
	ArchivedAt time.Time                  `json:"archived_at"`
}

// ReportArchive stores finished interviews in object storage so reports outlive
// the in-memory session.
type ReportArchive struct {
	storage storage.ObjectStorage
	bucket  string
}

// NewReportArchive creates an archive writing to bucket.
func NewReportArchive(objectStorage storage.ObjectStorage, bucket string) *ReportArchive {
	return &ReportArchive{storage: objectStorage, bucket: bucket}
}

func archiveKey(sessionID string) string {
	return archiveKeyPrefix + sessionID + ".json"
}

// Save writes the archive record, replacing any earlier one.
func (a *ReportArchive) Save(ctx context.Context, rec ArchivedSession) error {
	if rec.State == nil || rec.State.SessionID == "" {
		return appErr.ValidationError("session_id", "required")
	}
	if a.storage == nil {
		return appErr.New(appErr.StorageError).WithMessage("object storage is not configured")
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return appErr.Wrapf(err, appErr.SnapshotEncodeFailed, "marshal archive failed")
	}
	key := archiveKey(rec.State.SessionID)
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), archiveContentType); err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "upload archive failed").WithDetail("key", key)
	}
	return nil
}

// Load reads an archive record. A missing record is a SessionNotFound error.
func (a *ReportArchive) Load(ctx context.Context, sessionID string) (ArchivedSession, error) {
	if sessionID == "" {
		return ArchivedSession{}, appErr.ValidationError("session_id", "required")
	}
	if a.storage == nil {
		return ArchivedSession{}, appErr.New(appErr.StorageError).WithMessage("object storage is not configured")
	}
	reader, err := a.storage.GetObject(ctx, a.bucket, archiveKey(sessionID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ArchivedSession{}, appErr.SessionNotFoundError(sessionID)
		}
		return ArchivedSession{}, appErr.Wrapf(err, appErr.StorageError, "download archive failed")
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxArchiveBytes))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ArchivedSession{}, appErr.SessionNotFoundError(sessionID)
		}
		return ArchivedSession{}, appErr.Wrapf(err, appErr.StorageError, "read archive failed")
	}
	var rec ArchivedSession
	if err := json.Unmarshal(data, &rec); err != nil {
		return ArchivedSession{}, appErr.Wrapf(err, appErr.SnapshotDecodeFailed, "decode archive failed")
	}
	if rec.State == nil {
		return ArchivedSession{}, appErr.New(appErr.SnapshotDecodeFailed).WithMessage("archive has no session state")
	}
	return rec, nil
}
