package simpleqa

import "github.com/google/uuid"

// Request DTOs. Pointer fields on update requests are optional: nil means
// the field is left unchanged.

// CreateUserRequest contains parameters for registering a user
type CreateUserRequest struct {
	FirstName string
	LastName  string
	Username  string
	Password  string
}

// UpdateUserRequest contains parameters for updating the acting user
type UpdateUserRequest struct {
	Actor     uuid.UUID
	FirstName *string
	LastName  *string
	Password  *string
}

// CreateQuestionRequest contains parameters for posting a question
type CreateQuestionRequest struct {
	Actor      uuid.UUID
	Text       string
	Categories []string
}

// UpdateQuestionRequest contains parameters for editing a question.
// Categories, when set, replaces the question's category set.
type UpdateQuestionRequest struct {
	Actor      uuid.UUID
	QuestionID uuid.UUID
	Text       *string
	Categories *[]string
}

// CreateAnswerRequest contains parameters for answering a question
type CreateAnswerRequest struct {
	Actor      uuid.UUID
	QuestionID uuid.UUID
	Text       string
}

// UpdateAnswerRequest contains parameters for editing an answer
type UpdateAnswerRequest struct {
	Actor      uuid.UUID
	QuestionID uuid.UUID
	AnswerID   uuid.UUID
	Text       *string
}

// AttachFileRequest contains parameters for attaching an image. AnswerID is
// uuid.Nil when attaching to the question itself.
type AttachFileRequest struct {
	Actor       uuid.UUID
	QuestionID  uuid.UUID
	AnswerID    uuid.UUID
	FileName    string
	ContentType string
	Data        []byte
}

// DetachFileRequest identifies an attachment to remove. AnswerID is uuid.Nil
// for question attachments.
type DetachFileRequest struct {
	Actor      uuid.UUID
	QuestionID uuid.UUID
	AnswerID   uuid.UUID
	FileID     uuid.UUID
}
