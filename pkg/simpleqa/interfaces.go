package simpleqa

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for attachment storage backends
type BlobStore interface {
	// Put writes data under objectKey and returns the metadata the store
	// reports for the written object
	Put(ctx context.Context, objectKey string, data []byte, contentType string) (*ObjectMeta, error)

	// GetObjectMeta retrieves metadata for an object. Missing objects yield
	// an error matching ErrBlobNotFound.
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectKey string) error
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
}

// Repository defines the interface for metadata persistence.
//
// Get methods return an error matching ErrNotFound for missing rows. Delete
// methods succeed when the row is already gone.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error

	// Question operations
	CreateQuestion(ctx context.Context, question *Question) error
	GetQuestion(ctx context.Context, id uuid.UUID) (*Question, error)
	ListQuestions(ctx context.Context) ([]*Question, error)
	UpdateQuestion(ctx context.Context, question *Question) error
	// UpdateQuestionWithCategories saves the question's text and replaces its
	// category set in one transaction: either both change or neither does.
	UpdateQuestionWithCategories(ctx context.Context, question *Question, categoryIDs []uuid.UUID) error
	CountAnswers(ctx context.Context, questionID uuid.UUID) (int, error)
	// DeleteQuestion removes the question and its category links. It fails
	// with ErrQuestionHasAnswers when answers exist at the time of deletion.
	DeleteQuestion(ctx context.Context, id uuid.UUID) error

	// Category operations
	FindOrCreateCategory(ctx context.Context, label string) (*Category, error)
	LinkCategory(ctx context.Context, questionID, categoryID uuid.UUID) error
	ReplaceCategories(ctx context.Context, questionID uuid.UUID, categoryIDs []uuid.UUID) error
	ListCategoriesByQuestion(ctx context.Context, questionID uuid.UUID) ([]*Category, error)

	// Answer operations
	CreateAnswer(ctx context.Context, answer *Answer) error
	GetAnswer(ctx context.Context, id uuid.UUID) (*Answer, error)
	ListAnswersByQuestion(ctx context.Context, questionID uuid.UUID) ([]*Answer, error)
	UpdateAnswer(ctx context.Context, answer *Answer) error
	DeleteAnswer(ctx context.Context, id uuid.UUID) error

	// File operations
	CreateFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, id uuid.UUID) (*File, error)
	ListFilesByParent(ctx context.Context, parent ParentRef) ([]*File, error)
	ListFiles(ctx context.Context) ([]*File, error)
	UpdateFileMeta(ctx context.Context, file *File) error
	DeleteFile(ctx context.Context, id uuid.UUID) error
}

// Authority decides whether an authenticated identity owns a resource.
type Authority interface {
	IsOwner(actor, ownerID uuid.UUID) bool
}

// OwnerAuthority grants access only to the resource's owning user.
type OwnerAuthority struct{}

func (OwnerAuthority) IsOwner(actor, ownerID uuid.UUID) bool {
	return actor != uuid.Nil && actor == ownerID
}

// EventSink receives lifecycle notifications. Sinks are observational; the
// service logs their errors and carries on.
type EventSink interface {
	QuestionCreated(ctx context.Context, question *Question) error
	QuestionUpdated(ctx context.Context, question *Question) error
	QuestionDeleted(ctx context.Context, questionID uuid.UUID) error

	AnswerCreated(ctx context.Context, answer *Answer) error
	AnswerUpdated(ctx context.Context, answer *Answer) error
	AnswerDeleted(ctx context.Context, answerID uuid.UUID) error

	FileAttached(ctx context.Context, file *File) error
	FileDetached(ctx context.Context, file *File) error

	// BlobOrphaned fires for every blob left in the store without a
	// metadata row pointing at it
	BlobOrphaned(ctx context.Context, failure FileFailure) error
}
