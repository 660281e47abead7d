package simpleqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// service implements the Service interface
type service struct {
	repository     Repository
	blobStore      BlobStore
	authority      Authority
	eventSink      EventSink
	logger         *slog.Logger
	attachments    *Attachments
	maxUploadBytes int64
	bcryptCost     int
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the attachment storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithAuthority replaces the default owner-only authority
func WithAuthority(authority Authority) Option {
	return func(s *service) {
		s.authority = authority
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMaxUploadBytes sets the attachment size ceiling
func WithMaxUploadBytes(n int64) Option {
	return func(s *service) {
		s.maxUploadBytes = n
	}
}

// WithBcryptCost sets the cost used to hash new passwords
func WithBcryptCost(cost int) Option {
	return func(s *service) {
		s.bcryptCost = cost
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		authority:      OwnerAuthority{},
		maxUploadBytes: DefaultMaxUploadBytes,
		bcryptCost:     bcrypt.DefaultCost,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.bcryptCost < bcrypt.MinCost || s.bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", s.bcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	s.attachments = NewAttachments(s.repository, s.blobStore, AttachmentsConfig{
		MaxUploadBytes: s.maxUploadBytes,
		EventSink:      s.eventSink,
		Logger:         s.logger,
	})

	return s, nil
}

// User operations

func (s *service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrBadRequest)
	}

	if _, err := s.repository.GetUserByUsername(ctx, username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user %s: %w", username, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.New(),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repository.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return user, nil
}

func (s *service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repository.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repository.GetUser(ctx, id)
}

func (s *service) UpdateUser(ctx context.Context, req UpdateUserRequest) error {
	if req.Actor == uuid.Nil {
		return ErrUnauthorized
	}
	if req.FirstName == nil && req.LastName == nil && req.Password == nil {
		return ErrNoFieldsToUpdate
	}

	user, err := s.repository.GetUser(ctx, req.Actor)
	if err != nil {
		return err
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Password != nil {
		if *req.Password == "" {
			return fmt.Errorf("%w: password must not be empty", ErrBadRequest)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.bcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.repository.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update user %s: %w", user.ID, err)
	}
	return nil
}

// Question operations

func (s *service) CreateQuestion(ctx context.Context, req CreateQuestionRequest) (*Question, error) {
	if req.Actor == uuid.Nil {
		return nil, ErrUnauthorized
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: question text is required", ErrBadRequest)
	}
	labels, err := normalizeLabels(req.Categories)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	question := &Question{
		ID:        uuid.New(),
		Text:      text,
		UserID:    req.Actor,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repository.CreateQuestion(ctx, question); err != nil {
		return nil, &QuestionError{QuestionID: question.ID, Op: "create", Err: err}
	}

	for _, label := range labels {
		category, err := s.repository.FindOrCreateCategory(ctx, label)
		if err != nil {
			return nil, &QuestionError{QuestionID: question.ID, Op: "categorize", Err: err}
		}
		if err := s.repository.LinkCategory(ctx, question.ID, category.ID); err != nil {
			return nil, &QuestionError{QuestionID: question.ID, Op: "categorize", Err: err}
		}
		question.Categories = append(question.Categories, category)
	}

	if err := s.eventSink.QuestionCreated(ctx, question); err != nil {
		s.logger.Warn("event sink failed", "event", "question_created", "question_id", question.ID, "error", err)
	}
	return question, nil
}

func (s *service) GetQuestion(ctx context.Context, id uuid.UUID) (*Question, error) {
	question, err := s.repository.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.hydrateQuestion(ctx, question); err != nil {
		return nil, err
	}
	return question, nil
}

func (s *service) ListQuestions(ctx context.Context) ([]*Question, error) {
	questions, err := s.repository.ListQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	for _, question := range questions {
		if err := s.hydrateQuestion(ctx, question); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

func (s *service) UpdateQuestion(ctx context.Context, req UpdateQuestionRequest) error {
	question, err := s.ownedQuestion(ctx, req.Actor, req.QuestionID, "update")
	if err != nil {
		return err
	}

	if req.Text == nil && req.Categories == nil {
		return ErrNoFieldsToUpdate
	}
	if req.Text != nil {
		text := strings.TrimSpace(*req.Text)
		if text == "" {
			return fmt.Errorf("%w: question text must not be empty", ErrBadRequest)
		}
		question.Text = text
	}

	var categoryIDs []uuid.UUID
	if req.Categories != nil {
		labels, err := normalizeLabels(*req.Categories)
		if err != nil {
			return err
		}
		for _, label := range labels {
			category, err := s.repository.FindOrCreateCategory(ctx, label)
			if err != nil {
				return &QuestionError{QuestionID: question.ID, Op: "categorize", Err: err}
			}
			categoryIDs = append(categoryIDs, category.ID)
			question.Categories = append(question.Categories, category)
		}
	}

	question.UpdatedAt = time.Now().UTC()
	if req.Categories != nil {
		err = s.repository.UpdateQuestionWithCategories(ctx, question, categoryIDs)
	} else {
		err = s.repository.UpdateQuestion(ctx, question)
	}
	if err != nil {
		return &QuestionError{QuestionID: question.ID, Op: "update", Err: err}
	}

	if err := s.eventSink.QuestionUpdated(ctx, question); err != nil {
		s.logger.Warn("event sink failed", "event", "question_updated", "question_id", question.ID, "error", err)
	}
	return nil
}

// DeleteQuestion removes an unanswered question together with its
// attachments. When only blob deletes failed the question is still removed and
// the *PartialFailureError is returned afterwards.
func (s *service) DeleteQuestion(ctx context.Context, actor, questionID uuid.UUID) error {
	question, err := s.ownedQuestion(ctx, actor, questionID, "delete")
	if err != nil {
		return err
	}

	count, err := s.repository.CountAnswers(ctx, question.ID)
	if err != nil {
		return &QuestionError{QuestionID: question.ID, Op: "delete", Err: err}
	}
	if count > 0 {
		return &QuestionError{QuestionID: question.ID, Op: "delete", Err: ErrQuestionHasAnswers}
	}

	partial, err := s.detachAllForDelete(ctx, QuestionRef(question.ID))
	if err != nil {
		return &QuestionError{QuestionID: question.ID, Op: "delete", Err: err}
	}

	if err := s.repository.DeleteQuestion(ctx, question.ID); err != nil {
		return &QuestionError{QuestionID: question.ID, Op: "delete", Err: err}
	}

	if err := s.eventSink.QuestionDeleted(ctx, question.ID); err != nil {
		s.logger.Warn("event sink failed", "event", "question_deleted", "question_id", question.ID, "error", err)
	}

	if partial != nil {
		return partial
	}
	return nil
}

// Answer operations

func (s *service) CreateAnswer(ctx context.Context, req CreateAnswerRequest) (*Answer, error) {
	if req.Actor == uuid.Nil {
		return nil, ErrUnauthorized
	}
	if _, err := s.repository.GetQuestion(ctx, req.QuestionID); err != nil {
		return nil, &QuestionError{QuestionID: req.QuestionID, Op: "answer", Err: err}
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: answer text is required", ErrBadRequest)
	}

	now := time.Now().UTC()
	answer := &Answer{
		ID:         uuid.New(),
		QuestionID: req.QuestionID,
		UserID:     req.Actor,
		Text:       text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repository.CreateAnswer(ctx, answer); err != nil {
		return nil, &AnswerError{AnswerID: answer.ID, Op: "create", Err: err}
	}

	if err := s.eventSink.AnswerCreated(ctx, answer); err != nil {
		s.logger.Warn("event sink failed", "event", "answer_created", "answer_id", answer.ID, "error", err)
	}
	return answer, nil
}

func (s *service) GetAnswer(ctx context.Context, questionID, answerID uuid.UUID) (*Answer, error) {
	answer, err := s.answerOf(ctx, questionID, answerID, "get")
	if err != nil {
		return nil, err
	}
	files, err := s.repository.ListFilesByParent(ctx, AnswerRef(answer.ID))
	if err != nil {
		return nil, &AnswerError{AnswerID: answer.ID, Op: "get", Err: err}
	}
	answer.Attachments = files
	return answer, nil
}

func (s *service) UpdateAnswer(ctx context.Context, req UpdateAnswerRequest) error {
	answer, err := s.ownedAnswer(ctx, req.Actor, req.QuestionID, req.AnswerID, "update")
	if err != nil {
		return err
	}

	if req.Text == nil {
		return ErrNoFieldsToUpdate
	}
	text := strings.TrimSpace(*req.Text)
	if text == "" {
		return fmt.Errorf("%w: answer text must not be empty", ErrBadRequest)
	}

	answer.Text = text
	answer.UpdatedAt = time.Now().UTC()
	if err := s.repository.UpdateAnswer(ctx, answer); err != nil {
		return &AnswerError{AnswerID: answer.ID, Op: "update", Err: err}
	}

	if err := s.eventSink.AnswerUpdated(ctx, answer); err != nil {
		s.logger.Warn("event sink failed", "event", "answer_updated", "answer_id", answer.ID, "error", err)
	}
	return nil
}

func (s *service) DeleteAnswer(ctx context.Context, actor, questionID, answerID uuid.UUID) error {
	answer, err := s.ownedAnswer(ctx, actor, questionID, answerID, "delete")
	if err != nil {
		return err
	}

	partial, err := s.detachAllForDelete(ctx, AnswerRef(answer.ID))
	if err != nil {
		return &AnswerError{AnswerID: answer.ID, Op: "delete", Err: err}
	}

	if err := s.repository.DeleteAnswer(ctx, answer.ID); err != nil {
		return &AnswerError{AnswerID: answer.ID, Op: "delete", Err: err}
	}

	if err := s.eventSink.AnswerDeleted(ctx, answer.ID); err != nil {
		s.logger.Warn("event sink failed", "event", "answer_deleted", "answer_id", answer.ID, "error", err)
	}

	if partial != nil {
		return partial
	}
	return nil
}

// Attachment operations

func (s *service) AttachFile(ctx context.Context, req AttachFileRequest) (*File, error) {
	parent, err := s.ownedParent(ctx, req.Actor, req.QuestionID, req.AnswerID, "attach")
	if err != nil {
		return nil, err
	}
	return s.attachments.Attach(ctx, parent, AttachInput{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Data:        req.Data,
	})
}

func (s *service) DetachFile(ctx context.Context, req DetachFileRequest) error {
	parent, err := s.ownedParent(ctx, req.Actor, req.QuestionID, req.AnswerID, "detach")
	if err != nil {
		return err
	}

	file, err := s.repository.GetFile(ctx, req.FileID)
	if err != nil {
		return &FileError{FileID: req.FileID, Op: "detach", Err: err}
	}
	if !file.BelongsTo(parent) {
		return &FileError{FileID: req.FileID, Op: "detach", Err: ErrFileNotFound}
	}

	return s.attachments.Detach(ctx, file)
}

func (s *service) GetFile(ctx context.Context, id uuid.UUID) (*File, error) {
	return s.repository.GetFile(ctx, id)
}

func (s *service) RefreshFileMeta(ctx context.Context, id uuid.UUID) (*File, error) {
	return s.attachments.RefreshMeta(ctx, id)
}

// Helpers

func (s *service) ownedQuestion(ctx context.Context, actor, questionID uuid.UUID, op string) (*Question, error) {
	if actor == uuid.Nil {
		return nil, ErrUnauthorized
	}
	question, err := s.repository.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, &QuestionError{QuestionID: questionID, Op: op, Err: err}
	}
	if !s.authority.IsOwner(actor, question.UserID) {
		return nil, &QuestionError{QuestionID: questionID, Op: op, Err: ErrForbidden}
	}
	return question, nil
}

// answerOf loads an answer and checks that it hangs off questionID.
func (s *service) answerOf(ctx context.Context, questionID, answerID uuid.UUID, op string) (*Answer, error) {
	if _, err := s.repository.GetQuestion(ctx, questionID); err != nil {
		return nil, &QuestionError{QuestionID: questionID, Op: op, Err: err}
	}
	answer, err := s.repository.GetAnswer(ctx, answerID)
	if err != nil {
		return nil, &AnswerError{AnswerID: answerID, Op: op, Err: err}
	}
	if answer.QuestionID != questionID {
		return nil, &AnswerError{AnswerID: answerID, Op: op, Err: ErrAnswerNotFound}
	}
	return answer, nil
}

func (s *service) ownedAnswer(ctx context.Context, actor, questionID, answerID uuid.UUID, op string) (*Answer, error) {
	if actor == uuid.Nil {
		return nil, ErrUnauthorized
	}
	answer, err := s.answerOf(ctx, questionID, answerID, op)
	if err != nil {
		return nil, err
	}
	if !s.authority.IsOwner(actor, answer.UserID) {
		return nil, &AnswerError{AnswerID: answerID, Op: op, Err: ErrForbidden}
	}
	return answer, nil
}

// ownedParent resolves the attachment parent. A nil answerID selects the
// question itself.
func (s *service) ownedParent(ctx context.Context, actor, questionID, answerID uuid.UUID, op string) (ParentRef, error) {
	if answerID == uuid.Nil {
		question, err := s.ownedQuestion(ctx, actor, questionID, op)
		if err != nil {
			return ParentRef{}, err
		}
		return QuestionRef(question.ID), nil
	}
	answer, err := s.ownedAnswer(ctx, actor, questionID, answerID, op)
	if err != nil {
		return ParentRef{}, err
	}
	return AnswerRef(answer.ID), nil
}

// detachAllForDelete runs the attachment cascade ahead of a parent delete. A
// partial failure made only of leaked blobs lets the delete proceed; any
// failure that left a File row behind aborts it.
func (s *service) detachAllForDelete(ctx context.Context, parent ParentRef) (*PartialFailureError, error) {
	err := s.attachments.DetachAll(ctx, parent)
	if err == nil {
		return nil, nil
	}
	var pf *PartialFailureError
	if errors.As(err, &pf) && pf.OnlyOrphans() {
		return pf, nil
	}
	return nil, err
}

func (s *service) hydrateQuestion(ctx context.Context, question *Question) error {
	categories, err := s.repository.ListCategoriesByQuestion(ctx, question.ID)
	if err != nil {
		return &QuestionError{QuestionID: question.ID, Op: "get", Err: err}
	}
	question.Categories = categories

	answers, err := s.repository.ListAnswersByQuestion(ctx, question.ID)
	if err != nil {
		return &QuestionError{QuestionID: question.ID, Op: "get", Err: err}
	}
	for _, answer := range answers {
		files, err := s.repository.ListFilesByParent(ctx, AnswerRef(answer.ID))
		if err != nil {
			return &AnswerError{AnswerID: answer.ID, Op: "get", Err: err}
		}
		answer.Attachments = files
	}
	question.Answers = answers

	files, err := s.repository.ListFilesByParent(ctx, QuestionRef(question.ID))
	if err != nil {
		return &QuestionError{QuestionID: question.ID, Op: "get", Err: err}
	}
	question.Attachments = files
	return nil
}
