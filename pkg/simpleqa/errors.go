package simpleqa

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error classes matched with errors.Is at the HTTP boundary.
var (
	// ErrUnauthorized indicates missing or invalid credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated user that does not own the resource
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates a missing user, question, answer or file
	ErrNotFound = errors.New("not found")

	// ErrBadRequest indicates malformed or missing input
	ErrBadRequest = errors.New("bad request")

	// ErrConflict indicates an operation blocked by dependent records
	ErrConflict = errors.New("conflict")

	// ErrPayloadTooLarge indicates an attachment above the configured ceiling
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrPartialFailure indicates one store was updated and the other was not
	ErrPartialFailure = errors.New("partial failure")
)

var (
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	ErrAnswerNotFound   = fmt.Errorf("answer %w", ErrNotFound)
	ErrFileNotFound     = fmt.Errorf("file %w", ErrNotFound)

	ErrInvalidContent   = fmt.Errorf("%w: invalid content, only jpeg, jpg and png images are accepted", ErrBadRequest)
	ErrUserExists       = fmt.Errorf("%w: user already exists", ErrBadRequest)
	ErrNoFieldsToUpdate = fmt.Errorf("%w: no field supplied to update", ErrBadRequest)

	ErrQuestionHasAnswers = fmt.Errorf("%w: the question has one or more answers", ErrConflict)

	// ErrBlobNotFound is returned by blob stores for a missing key
	ErrBlobNotFound = errors.New("object not found")
)

// QuestionError represents an error related to question operations
type QuestionError struct {
	QuestionID uuid.UUID
	Op         string
	Err        error
}

func (e *QuestionError) Error() string {
	return fmt.Sprintf("question operation %s failed for question %s: %v", e.Op, e.QuestionID, e.Err)
}

func (e *QuestionError) Unwrap() error {
	return e.Err
}

// AnswerError represents an error related to answer operations
type AnswerError struct {
	AnswerID uuid.UUID
	Op       string
	Err      error
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("answer operation %s failed for answer %s: %v", e.Op, e.AnswerID, e.Err)
}

func (e *AnswerError) Unwrap() error {
	return e.Err
}

// FileError represents an error related to file metadata operations
type FileError struct {
	FileID uuid.UUID
	Op     string
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file operation %s failed for file %s: %v", e.Op, e.FileID, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob store operations
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// FileFailure records one file that could not be fully cleaned up or
// persisted. Orphaned is set when no metadata row references Key any more
// (or never did) while the blob may still exist.
type FileFailure struct {
	FileID   uuid.UUID
	Key      string
	Orphaned bool
	Err      error
}

// PartialFailureError reports a multi-step operation that left the two stores
// disagreeing.
type PartialFailureError struct {
	Op       string
	Parent   ParentRef
	Failures []FileFailure
}

func (e *PartialFailureError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("file %s (key %s): %v", f.FileID, f.Key, f.Err))
	}
	return fmt.Sprintf("partial failure in %s for %s: %s", e.Op, e.Parent, strings.Join(parts, "; "))
}

// Is matches ErrPartialFailure.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// OrphanedKeys lists the blob keys left without a metadata row.
func (e *PartialFailureError) OrphanedKeys() []string {
	var keys []string
	for _, f := range e.Failures {
		if f.Orphaned {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// OnlyOrphans reports whether every failure is a leaked blob. A cascading
// delete may only remove the parent row in that case.
func (e *PartialFailureError) OnlyOrphans() bool {
	for _, f := range e.Failures {
		if !f.Orphaned {
			return false
		}
	}
	return true
}
