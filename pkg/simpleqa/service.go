package simpleqa

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the question/answer lifecycle.
//
// Every mutating call takes the authenticated user's id as Actor and checks it
// against the owner of the affected question or answer. Files carry no owner
// of their own; attaching and detaching is authorized by the parent.
type Service interface {
	// User operations
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	Authenticate(ctx context.Context, username, password string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateUser(ctx context.Context, req UpdateUserRequest) error

	// Question operations
	CreateQuestion(ctx context.Context, req CreateQuestionRequest) (*Question, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*Question, error)
	ListQuestions(ctx context.Context) ([]*Question, error)
	UpdateQuestion(ctx context.Context, req UpdateQuestionRequest) error
	DeleteQuestion(ctx context.Context, actor, questionID uuid.UUID) error

	// Answer operations
	CreateAnswer(ctx context.Context, req CreateAnswerRequest) (*Answer, error)
	GetAnswer(ctx context.Context, questionID, answerID uuid.UUID) (*Answer, error)
	UpdateAnswer(ctx context.Context, req UpdateAnswerRequest) error
	DeleteAnswer(ctx context.Context, actor, questionID, answerID uuid.UUID) error

	// Attachment operations
	AttachFile(ctx context.Context, req AttachFileRequest) (*File, error)
	DetachFile(ctx context.Context, req DetachFileRequest) error
	GetFile(ctx context.Context, id uuid.UUID) (*File, error)
	RefreshFileMeta(ctx context.Context, id uuid.UUID) (*File, error)
}
