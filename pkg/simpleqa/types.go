package simpleqa

import (
	"time"

	"github.com/google/uuid"
)

// ParentKind identifies which entity a file attachment hangs off.
type ParentKind string

const (
	ParentQuestion ParentKind = "question"
	ParentAnswer   ParentKind = "answer"
)

// ParentRef points at the Question or Answer that owns a File.
type ParentRef struct {
	Kind ParentKind
	ID   uuid.UUID
}

// QuestionRef returns a ParentRef for a question.
func QuestionRef(id uuid.UUID) ParentRef { return ParentRef{Kind: ParentQuestion, ID: id} }

// AnswerRef returns a ParentRef for an answer.
func AnswerRef(id uuid.UUID) ParentRef { return ParentRef{Kind: ParentAnswer, ID: id} }

func (p ParentRef) String() string {
	return string(p.Kind) + ":" + p.ID.String()
}

// User is an account that can own questions and answers.
type User struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"account_created"`
	UpdatedAt    time.Time `json:"account_updated"`
}

// Question is a user-owned question.
//
// Categories, Answers and Attachments are populated by the service on read
// and are not persisted with the question row.
type Question struct {
	ID        uuid.UUID `json:"question_id"`
	Text      string    `json:"question_text"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_timestamp"`
	UpdatedAt time.Time `json:"updated_timestamp"`

	Categories  []*Category `json:"categories,omitempty"`
	Answers     []*Answer   `json:"answers,omitempty"`
	Attachments []*File     `json:"attachments,omitempty"`
}

// Answer is a user-owned reply to a question.
type Answer struct {
	ID         uuid.UUID `json:"answer_id"`
	QuestionID uuid.UUID `json:"question_id"`
	UserID     uuid.UUID `json:"user_id"`
	Text       string    `json:"answer_text"`
	CreatedAt  time.Time `json:"created_timestamp"`
	UpdatedAt  time.Time `json:"updated_timestamp"`

	Attachments []*File `json:"attachments,omitempty"`
}

// Category is a lower-cased tag shared between questions.
type Category struct {
	ID    uuid.UUID `json:"category_id"`
	Label string    `json:"category"`
}

// File is the metadata row of an attachment. Exactly one of QuestionID and
// AnswerID is set. The object meta fields mirror what the blob store reported
// when the file was attached (or last refreshed).
type File struct {
	ID         uuid.UUID  `json:"file_id"`
	FileName   string     `json:"file_name"`
	ObjectKey  string     `json:"blob_key"`
	QuestionID *uuid.UUID `json:"question_id,omitempty"`
	AnswerID   *uuid.UUID `json:"answer_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	LastModified  time.Time `json:"last_modified"`
	ContentLength int64     `json:"content_length"`
	ETag          string    `json:"etag"`
	ContentType   string    `json:"content_type,omitempty"`
}

// Parent returns the reference of the entity owning the file.
func (f *File) Parent() ParentRef {
	if f.AnswerID != nil {
		return AnswerRef(*f.AnswerID)
	}
	if f.QuestionID != nil {
		return QuestionRef(*f.QuestionID)
	}
	return ParentRef{}
}

// BelongsTo reports whether the file hangs off the given parent.
func (f *File) BelongsTo(parent ParentRef) bool {
	return f.Parent() == parent
}

// MetaTimePrecision is the resolution LastModified is cached at. Postgres
// TIMESTAMPTZ keeps microseconds while blob stores may report nanoseconds.
const MetaTimePrecision = time.Microsecond

// ApplyMeta copies blob store metadata onto the cached fields. The content
// type declared at upload wins over what the store reports; the store's type
// only fills an empty field.
func (f *File) ApplyMeta(meta *ObjectMeta) {
	f.LastModified = meta.UpdatedAt.Truncate(MetaTimePrecision)
	f.ContentLength = meta.Size
	f.ETag = meta.ETag
	if f.ContentType == "" {
		f.ContentType = meta.ContentType
	}
}

// MetaMatches reports whether the cached fields agree with meta, comparing
// timestamps at MetaTimePrecision.
func (f *File) MetaMatches(meta *ObjectMeta) bool {
	return f.ContentLength == meta.Size &&
		f.ETag == meta.ETag &&
		f.LastModified.Truncate(MetaTimePrecision).Equal(meta.UpdatedAt.Truncate(MetaTimePrecision))
}
