package simpleqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-qa/pkg/simpleqa/objectkey"
)

// DefaultMaxUploadBytes is the attachment size ceiling used when none is configured
const DefaultMaxUploadBytes int64 = 2_000_000

// AttachInput is the content of a single uploaded image
type AttachInput struct {
	FileName    string
	ContentType string
	Data        []byte
}

// AttachmentsConfig tunes an Attachments instance. Zero values select defaults.
type AttachmentsConfig struct {
	MaxUploadBytes int64
	EventSink      EventSink
	Logger         *slog.Logger
}

// Attachments keeps File rows and their blobs in agreement.
//
// Writes go blob first, row second; removals go row first, blob second. Either
// way a failure in the second step leaves at worst a blob nobody references,
// never a row pointing at a missing blob. Such leaks are reported as
// *PartialFailureError and through EventSink.BlobOrphaned.
type Attachments struct {
	repository     Repository
	blobStore      BlobStore
	eventSink      EventSink
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewAttachments creates an attachment lifecycle over the given stores
func NewAttachments(repo Repository, store BlobStore, cfg AttachmentsConfig) *Attachments {
	a := &Attachments{
		repository:     repo,
		blobStore:      store,
		eventSink:      cfg.EventSink,
		logger:         cfg.Logger,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if a.eventSink == nil {
		a.eventSink = NewNoopEventSink()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = DefaultMaxUploadBytes
	}
	return a
}

// MaxUploadBytes returns the configured size ceiling
func (a *Attachments) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}

// Attach stores in under a fresh key and records a File row for parent.
func (a *Attachments) Attach(ctx context.Context, parent ParentRef, in AttachInput) (*File, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: no file uploaded", ErrBadRequest)
	}
	if int64(len(in.Data)) > a.maxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, len(in.Data), a.maxUploadBytes)
	}
	if err := ValidateImage(in.FileName, in.ContentType); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	file := &File{
		ID:          uuid.New(),
		FileName:    in.FileName,
		ContentType: in.ContentType,
		CreatedAt:   now,
	}
	parentID := parent.ID
	switch parent.Kind {
	case ParentQuestion:
		file.QuestionID = &parentID
	case ParentAnswer:
		file.AnswerID = &parentID
	default:
		return nil, fmt.Errorf("%w: unknown attachment parent %q", ErrBadRequest, parent.Kind)
	}
	file.ObjectKey = objectkey.ForAttachment(parent.ID, file.ID, in.FileName)

	meta, err := a.blobStore.Put(ctx, file.ObjectKey, in.Data, in.ContentType)
	if err != nil {
		return nil, &StorageError{Key: file.ObjectKey, Op: "put", Err: err}
	}
	file.ApplyMeta(meta)

	if err := a.repository.CreateFile(ctx, file); err != nil {
		failure := FileFailure{
			FileID:   file.ID,
			Key:      file.ObjectKey,
			Orphaned: true,
			Err:      &FileError{FileID: file.ID, Op: "create", Err: err},
		}
		a.reportOrphan(ctx, "attach", failure)
		return nil, &PartialFailureError{Op: "attach", Parent: parent, Failures: []FileFailure{failure}}
	}

	if err := a.eventSink.FileAttached(ctx, file); err != nil {
		a.logger.Warn("event sink failed", "event", "file_attached", "file_id", file.ID, "error", err)
	}
	return file, nil
}

// Detach removes the File row and then its blob. A blob that fails to delete
// is reported but the row stays deleted.
func (a *Attachments) Detach(ctx context.Context, file *File) error {
	if err := a.repository.DeleteFile(ctx, file.ID); err != nil {
		return &FileError{FileID: file.ID, Op: "delete", Err: err}
	}

	if err := a.blobStore.Delete(ctx, file.ObjectKey); err != nil && !errors.Is(err, ErrBlobNotFound) {
		failure := FileFailure{
			FileID:   file.ID,
			Key:      file.ObjectKey,
			Orphaned: true,
			Err:      &StorageError{Key: file.ObjectKey, Op: "delete", Err: err},
		}
		a.reportOrphan(ctx, "detach", failure)
		return &PartialFailureError{Op: "detach", Parent: file.Parent(), Failures: []FileFailure{failure}}
	}

	if err := a.eventSink.FileDetached(ctx, file); err != nil {
		a.logger.Warn("event sink failed", "event", "file_detached", "file_id", file.ID, "error", err)
	}
	return nil
}

// DetachAll detaches every file of parent. It keeps going after a failure
// and returns a single *PartialFailureError listing all of them.
func (a *Attachments) DetachAll(ctx context.Context, parent ParentRef) error {
	files, err := a.repository.ListFilesByParent(ctx, parent)
	if err != nil {
		return fmt.Errorf("failed to list attachments of %s: %w", parent, err)
	}

	var failures []FileFailure
	for _, file := range files {
		err := a.Detach(ctx, file)
		if err == nil {
			continue
		}
		var pf *PartialFailureError
		if errors.As(err, &pf) {
			failures = append(failures, pf.Failures...)
			continue
		}
		failures = append(failures, FileFailure{FileID: file.ID, Key: file.ObjectKey, Err: err})
	}

	if len(failures) > 0 {
		return &PartialFailureError{Op: "detach_all", Parent: parent, Failures: failures}
	}
	return nil
}

// RefreshMeta re-reads the object meta of a file from the blob store and
// stores it on the File row.
func (a *Attachments) RefreshMeta(ctx context.Context, fileID uuid.UUID) (*File, error) {
	file, err := a.repository.GetFile(ctx, fileID)
	if err != nil {
		return nil, &FileError{FileID: fileID, Op: "refresh_meta", Err: err}
	}

	meta, err := a.blobStore.GetObjectMeta(ctx, file.ObjectKey)
	if err != nil {
		return nil, &StorageError{Key: file.ObjectKey, Op: "get_object_meta", Err: err}
	}

	file.ApplyMeta(meta)
	if err := a.repository.UpdateFileMeta(ctx, file); err != nil {
		return nil, &FileError{FileID: fileID, Op: "refresh_meta", Err: err}
	}
	return file, nil
}

// AuditStatus classifies a File row against the blob store
type AuditStatus string

const (
	AuditOK      AuditStatus = "ok"
	AuditDrift   AuditStatus = "drift"
	AuditMissing AuditStatus = "missing"
	AuditError   AuditStatus = "error"
	AuditFixed   AuditStatus = "fixed"
)

// AuditEntry is the audit outcome for one file
type AuditEntry struct {
	File   *File
	Meta   *ObjectMeta
	Status AuditStatus
	Err    error
}

// Audit compares every File row with what the blob store reports. When fix is
// set, drifted rows are refreshed from the store. Missing blobs are only
// reported.
func (a *Attachments) Audit(ctx context.Context, fix bool) ([]AuditEntry, error) {
	files, err := a.repository.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	entries := make([]AuditEntry, 0, len(files))
	for _, file := range files {
		entry := AuditEntry{File: file}
		meta, err := a.blobStore.GetObjectMeta(ctx, file.ObjectKey)
		switch {
		case errors.Is(err, ErrBlobNotFound):
			entry.Status = AuditMissing
		case err != nil:
			entry.Status = AuditError
			entry.Err = err
		case file.MetaMatches(meta):
			entry.Status = AuditOK
			entry.Meta = meta
		default:
			entry.Status = AuditDrift
			entry.Meta = meta
			if fix {
				file.ApplyMeta(meta)
				if err := a.repository.UpdateFileMeta(ctx, file); err != nil {
					entry.Status = AuditError
					entry.Err = err
				} else {
					entry.Status = AuditFixed
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (a *Attachments) reportOrphan(ctx context.Context, op string, failure FileFailure) {
	a.logger.Error("blob left without metadata row",
		"op", op, "file_id", failure.FileID, "key", failure.Key, "error", failure.Err)
	if err := a.eventSink.BlobOrphaned(ctx, failure); err != nil {
		a.logger.Warn("event sink failed", "event", "blob_orphaned", "key", failure.Key, "error", err)
	}
}
