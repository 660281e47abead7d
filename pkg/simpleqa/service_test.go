package simpleqa_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-qa/pkg/simpleqa"
	"github.com/tendant/simple-qa/pkg/simpleqa/repo/memory"
	memorystorage "github.com/tendant/simple-qa/pkg/simpleqa/storage/memory"
)

var pngData = []byte("\x89PNG\r\n\x1a\nnot a real image")

// faultyStore wraps the memory backend and fails operations on demand
type faultyStore struct {
	*memorystorage.Backend

	mu         sync.Mutex
	failPut    error
	failDelete map[string]error
	failMeta   map[string]error
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Backend:    memorystorage.New(),
		failDelete: map[string]error{},
		failMeta:   map[string]error{},
	}
}

func (f *faultyStore) Put(ctx context.Context, key string, data []byte, contentType string) (*simpleqa.ObjectMeta, error) {
	f.mu.Lock()
	err := f.failPut
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Backend.Put(ctx, key, data, contentType)
}

func (f *faultyStore) GetObjectMeta(ctx context.Context, key string) (*simpleqa.ObjectMeta, error) {
	f.mu.Lock()
	err := f.failMeta[key]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Backend.GetObjectMeta(ctx, key)
}

func (f *faultyStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	err := f.failDelete[key]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Backend.Delete(ctx, key)
}

// mockEventSink records lifecycle events
type mockEventSink struct {
	mock.Mock
}

func (m *mockEventSink) QuestionCreated(ctx context.Context, question *simpleqa.Question) error {
	return m.Called(ctx, question).Error(0)
}

func (m *mockEventSink) QuestionUpdated(ctx context.Context, question *simpleqa.Question) error {
	return m.Called(ctx, question).Error(0)
}

func (m *mockEventSink) QuestionDeleted(ctx context.Context, questionID uuid.UUID) error {
	return m.Called(ctx, questionID).Error(0)
}

func (m *mockEventSink) AnswerCreated(ctx context.Context, answer *simpleqa.Answer) error {
	return m.Called(ctx, answer).Error(0)
}

func (m *mockEventSink) AnswerUpdated(ctx context.Context, answer *simpleqa.Answer) error {
	return m.Called(ctx, answer).Error(0)
}

func (m *mockEventSink) AnswerDeleted(ctx context.Context, answerID uuid.UUID) error {
	return m.Called(ctx, answerID).Error(0)
}

func (m *mockEventSink) FileAttached(ctx context.Context, file *simpleqa.File) error {
	return m.Called(ctx, file).Error(0)
}

func (m *mockEventSink) FileDetached(ctx context.Context, file *simpleqa.File) error {
	return m.Called(ctx, file).Error(0)
}

func (m *mockEventSink) BlobOrphaned(ctx context.Context, failure simpleqa.FileFailure) error {
	return m.Called(ctx, failure).Error(0)
}

type fixture struct {
	svc   simpleqa.Service
	repo  *memory.Repository
	store *faultyStore
}

func setup(t *testing.T, opts ...simpleqa.Option) *fixture {
	t.Helper()
	repo := memory.New()
	store := newFaultyStore()
	options := append([]simpleqa.Option{
		simpleqa.WithRepository(repo),
		simpleqa.WithBlobStore(store),
		simpleqa.WithBcryptCost(4),
	}, opts...)
	svc, err := simpleqa.New(options...)
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, store: store}
}

func (f *fixture) user(t *testing.T, username string) *simpleqa.User {
	t.Helper()
	user, err := f.svc.CreateUser(context.Background(), simpleqa.CreateUserRequest{
		FirstName: "Test",
		LastName:  "User",
		Username:  username,
		Password:  "password123",
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) question(t *testing.T, owner uuid.UUID, categories ...string) *simpleqa.Question {
	t.Helper()
	q, err := f.svc.CreateQuestion(context.Background(), simpleqa.CreateQuestionRequest{
		Actor:      owner,
		Text:       "What is TCP?",
		Categories: categories,
	})
	require.NoError(t, err)
	return q
}

func (f *fixture) answer(t *testing.T, owner, questionID uuid.UUID) *simpleqa.Answer {
	t.Helper()
	a, err := f.svc.CreateAnswer(context.Background(), simpleqa.CreateAnswerRequest{
		Actor:      owner,
		QuestionID: questionID,
		Text:       "A transport protocol",
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) attach(t *testing.T, owner, questionID, answerID uuid.UUID, name string) *simpleqa.File {
	t.Helper()
	file, err := f.svc.AttachFile(context.Background(), simpleqa.AttachFileRequest{
		Actor:       owner,
		QuestionID:  questionID,
		AnswerID:    answerID,
		FileName:    name,
		ContentType: "image/png",
		Data:        pngData,
	})
	require.NoError(t, err)
	return file
}

func TestNew_RequiresStores(t *testing.T) {
	_, err := simpleqa.New(simpleqa.WithBlobStore(memorystorage.New()))
	assert.Error(t, err)

	_, err = simpleqa.New(simpleqa.WithRepository(memory.New()))
	assert.Error(t, err)

	_, err = simpleqa.New(
		simpleqa.WithRepository(memory.New()),
		simpleqa.WithBlobStore(memorystorage.New()),
		simpleqa.WithBcryptCost(100),
	)
	assert.Error(t, err)
}

func TestUsers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	user := f.user(t, "u1@example.com")
	assert.NotEqual(t, "password123", user.PasswordHash)

	_, err := f.svc.CreateUser(ctx, simpleqa.CreateUserRequest{Username: "u1@example.com", Password: "password123"})
	assert.ErrorIs(t, err, simpleqa.ErrUserExists)
	assert.ErrorIs(t, err, simpleqa.ErrBadRequest)

	got, err := f.svc.Authenticate(ctx, "u1@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.svc.Authenticate(ctx, "u1@example.com", "wrong")
	assert.ErrorIs(t, err, simpleqa.ErrUnauthorized)
	_, err = f.svc.Authenticate(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, simpleqa.ErrUnauthorized)

	err = f.svc.UpdateUser(ctx, simpleqa.UpdateUserRequest{Actor: user.ID})
	assert.ErrorIs(t, err, simpleqa.ErrNoFieldsToUpdate)

	newName := "Renamed"
	newPassword := "a fresh password"
	require.NoError(t, f.svc.UpdateUser(ctx, simpleqa.UpdateUserRequest{
		Actor: user.ID, FirstName: &newName, Password: &newPassword,
	}))
	got, err = f.svc.Authenticate(ctx, "u1@example.com", newPassword)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.FirstName)
	assert.Equal(t, "User", got.LastName)

	_, err = f.svc.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, simpleqa.ErrUserNotFound)
}

// Scenario: U1 asks "What is TCP?" under "networking"; U2 cannot delete it,
// U1 can.
func TestDeleteQuestion_OwnerScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	u2 := f.user(t, "u2@example.com")

	q := f.question(t, u1.ID, "networking")
	got, err := f.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, "networking", got.Categories[0].Label)
	assert.Empty(t, got.Answers)

	err = f.svc.DeleteQuestion(ctx, u2.ID, q.ID)
	assert.ErrorIs(t, err, simpleqa.ErrForbidden)
	_, err = f.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteQuestion(ctx, u1.ID, q.ID))
	_, err = f.svc.GetQuestion(ctx, q.ID)
	assert.ErrorIs(t, err, simpleqa.ErrQuestionNotFound)
}

func TestDeleteQuestion_WithAnswersConflicts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	u2 := f.user(t, "u2@example.com")

	q := f.question(t, u1.ID, "networking")
	file := f.attach(t, u1.ID, q.ID, uuid.Nil, "diagram.png")
	f.answer(t, u2.ID, q.ID)

	before, err := f.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)

	err = f.svc.DeleteQuestion(ctx, u1.ID, q.ID)
	assert.ErrorIs(t, err, simpleqa.ErrConflict)
	assert.ErrorIs(t, err, simpleqa.ErrQuestionHasAnswers)

	after, err := f.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{file.ObjectKey}, f.store.Keys(), "attachments are untouched by a refused delete")
}

func TestDeleteQuestion_Guards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")

	err := f.svc.DeleteQuestion(ctx, u1.ID, uuid.New())
	assert.ErrorIs(t, err, simpleqa.ErrQuestionNotFound)

	q := f.question(t, u1.ID)
	err = f.svc.DeleteQuestion(ctx, uuid.Nil, q.ID)
	assert.ErrorIs(t, err, simpleqa.ErrUnauthorized)
}

func TestCategories_CaseInsensitiveFindOrCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")

	q1 := f.question(t, u1.ID, "Go")
	q2 := f.question(t, u1.ID, "go", " GO ")

	got1, err := f.svc.GetQuestion(ctx, q1.ID)
	require.NoError(t, err)
	got2, err := f.svc.GetQuestion(ctx, q2.ID)
	require.NoError(t, err)

	require.Len(t, got1.Categories, 1)
	require.Len(t, got2.Categories, 1)
	assert.Equal(t, got1.Categories[0].ID, got2.Categories[0].ID)
	assert.Equal(t, "go", got2.Categories[0].Label)

	_, err = f.svc.CreateQuestion(ctx, simpleqa.CreateQuestionRequest{Actor: u1.ID, Text: "x", Categories: []string{"  "}})
	assert.ErrorIs(t, err, simpleqa.ErrBadRequest)
}

func TestUpdateQuestion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	u2 := f.user(t, "u2@example.com")
	q := f.question(t, u1.ID, "networking", "protocols")

	text := "What is UDP?"
	err := f.svc.UpdateQuestion(ctx, simpleqa.UpdateQuestionRequest{Actor: u2.ID, QuestionID: q.ID, Text: &text})
	assert.ErrorIs(t, err, simpleqa.ErrForbidden)

	err = f.svc.UpdateQuestion(ctx, simpleqa.UpdateQuestionRequest{Actor: u1.ID, QuestionID: q.ID})
	assert.ErrorIs(t, err, simpleqa.ErrNoFieldsToUpdate)

	empty := ""
	err = f.svc.UpdateQuestion(ctx, simpleqa.UpdateQuestionRequest{Actor: u1.ID, QuestionID: q.ID, Text: &empty})
	assert.ErrorIs(t, err, simpleqa.ErrBadRequest)

	unchanged, err := f.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "What is TCP?", unchanged.Text)
	assert.Len(t, unchanged.Categories, 2)

	require.NoError(t, f.svc.UpdateQuestion(ctx, simpleqa.UpdateQuestionRequest{Actor: u1.ID, QuestionID: q.ID, Text: &text}))
	got, err := f.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, text, got.Text)
	assert.Len(t, got.Categories, 2, "absent categories are left unchanged")

	categories := []string{"Transport"}
	require.NoError(t, f.svc.UpdateQuestion(ctx, simpleqa.UpdateQuestionRequest{Actor: u1.ID, QuestionID: q.ID, Categories: &categories}))
	got, err = f.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, "transport", got.Categories[0].Label)

	none := []string{}
	require.NoError(t, f.svc.UpdateQuestion(ctx, simpleqa.UpdateQuestionRequest{Actor: u1.ID, QuestionID: q.ID, Categories: &none}))
	got, err = f.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Categories)
}

// categoryFailingRepo fails every combined text and category update
type categoryFailingRepo struct {
	*memory.Repository
}

func (categoryFailingRepo) UpdateQuestionWithCategories(ctx context.Context, question *simpleqa.Question, categoryIDs []uuid.UUID) error {
	return errors.New("connection reset")
}

func TestUpdateQuestion_CategoryFailureKeepsText(t *testing.T) {
	repo := memory.New()
	svc, err := simpleqa.New(
		simpleqa.WithRepository(categoryFailingRepo{repo}),
		simpleqa.WithBlobStore(memorystorage.New()),
		simpleqa.WithBcryptCost(4),
	)
	require.NoError(t, err)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, simpleqa.CreateUserRequest{Username: "u1@example.com", Password: "password123"})
	require.NoError(t, err)
	q, err := svc.CreateQuestion(ctx, simpleqa.CreateQuestionRequest{Actor: user.ID, Text: "What is TCP?", Categories: []string{"networking"}})
	require.NoError(t, err)

	text := "What is UDP?"
	categories := []string{"transport"}
	err = svc.UpdateQuestion(ctx, simpleqa.UpdateQuestionRequest{Actor: user.ID, QuestionID: q.ID, Text: &text, Categories: &categories})
	require.Error(t, err)

	got, err := svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "What is TCP?", got.Text)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, "networking", got.Categories[0].Label)

	require.NoError(t, svc.UpdateQuestion(ctx, simpleqa.UpdateQuestionRequest{Actor: user.ID, QuestionID: q.ID, Text: &text}))
	got, err = svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, text, got.Text, "text-only edits do not touch categories")
}

func TestAnswers_OwnershipAndScope(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	u2 := f.user(t, "u2@example.com")
	q := f.question(t, u1.ID)
	other := f.question(t, u1.ID)

	_, err := f.svc.CreateAnswer(ctx, simpleqa.CreateAnswerRequest{Actor: u2.ID, QuestionID: uuid.New(), Text: "x"})
	assert.ErrorIs(t, err, simpleqa.ErrQuestionNotFound)

	a := f.answer(t, u2.ID, q.ID)

	_, err = f.svc.GetAnswer(ctx, other.ID, a.ID)
	assert.ErrorIs(t, err, simpleqa.ErrAnswerNotFound)

	text := "edited by someone else"
	err = f.svc.UpdateAnswer(ctx, simpleqa.UpdateAnswerRequest{Actor: u1.ID, QuestionID: q.ID, AnswerID: a.ID, Text: &text})
	assert.ErrorIs(t, err, simpleqa.ErrForbidden)
	err = f.svc.DeleteAnswer(ctx, u1.ID, q.ID, a.ID)
	assert.ErrorIs(t, err, simpleqa.ErrForbidden)

	got, err := f.svc.GetAnswer(ctx, q.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Text, got.Text)
	assert.Equal(t, a.UpdatedAt, got.UpdatedAt)

	text = "UDP's reliable sibling"
	require.NoError(t, f.svc.UpdateAnswer(ctx, simpleqa.UpdateAnswerRequest{Actor: u2.ID, QuestionID: q.ID, AnswerID: a.ID, Text: &text}))
	got, err = f.svc.GetAnswer(ctx, q.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, text, got.Text)

	require.NoError(t, f.svc.DeleteAnswer(ctx, u2.ID, q.ID, a.ID))
	_, err = f.svc.GetAnswer(ctx, q.ID, a.ID)
	assert.ErrorIs(t, err, simpleqa.ErrAnswerNotFound)

	require.NoError(t, f.svc.DeleteQuestion(ctx, u1.ID, q.ID), "no answers left")
}

// Scenario: a png is attached to an answer and mirrors the blob store's
// metadata; a .txt upload is rejected without writing anything.
func TestAttach_AnswerScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	q := f.question(t, u1.ID)
	a := f.answer(t, u1.ID, q.ID)

	file := f.attach(t, u1.ID, q.ID, a.ID, "photo.png")
	meta, err := f.store.GetObjectMeta(ctx, file.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, meta.Size, file.ContentLength)
	assert.Equal(t, meta.ETag, file.ETag)
	assert.True(t, file.MetaMatches(meta))

	row, err := f.svc.GetFile(ctx, file.ID)
	require.NoError(t, err)
	require.NotNil(t, row.AnswerID)
	assert.Equal(t, a.ID, *row.AnswerID)
	assert.Nil(t, row.QuestionID)

	_, err = f.svc.AttachFile(ctx, simpleqa.AttachFileRequest{
		Actor: u1.ID, QuestionID: q.ID, AnswerID: a.ID,
		FileName: "notes.txt", ContentType: "text/plain", Data: []byte("hello"),
	})
	assert.ErrorIs(t, err, simpleqa.ErrInvalidContent)
	assert.Len(t, f.store.Keys(), 1)
	files, err := f.repo.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	got, err := f.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, got.Answers, 1)
	require.Len(t, got.Answers[0].Attachments, 1)
	assert.Equal(t, file.ID, got.Answers[0].Attachments[0].ID)
}

func TestAttach_Validation(t *testing.T) {
	f := setup(t, simpleqa.WithMaxUploadBytes(10))
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	u2 := f.user(t, "u2@example.com")
	q := f.question(t, u1.ID)

	tests := []struct {
		name    string
		req     simpleqa.AttachFileRequest
		wantErr error
	}{
		{"not owner", simpleqa.AttachFileRequest{Actor: u2.ID, QuestionID: q.ID, FileName: "a.png", ContentType: "image/png", Data: []byte("x")}, simpleqa.ErrForbidden},
		{"no data", simpleqa.AttachFileRequest{Actor: u1.ID, QuestionID: q.ID, FileName: "a.png", ContentType: "image/png"}, simpleqa.ErrBadRequest},
		{"too large", simpleqa.AttachFileRequest{Actor: u1.ID, QuestionID: q.ID, FileName: "a.png", ContentType: "image/png", Data: make([]byte, 11)}, simpleqa.ErrPayloadTooLarge},
		{"extension mismatch", simpleqa.AttachFileRequest{Actor: u1.ID, QuestionID: q.ID, FileName: "a.gif", ContentType: "image/png", Data: []byte("x")}, simpleqa.ErrInvalidContent},
		{"media type mismatch", simpleqa.AttachFileRequest{Actor: u1.ID, QuestionID: q.ID, FileName: "a.png", ContentType: "image/gif", Data: []byte("x")}, simpleqa.ErrInvalidContent},
		{"missing answer", simpleqa.AttachFileRequest{Actor: u1.ID, QuestionID: q.ID, AnswerID: uuid.New(), FileName: "a.png", ContentType: "image/png", Data: []byte("x")}, simpleqa.ErrAnswerNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AttachFile(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.store.Keys())
		})
	}
}

func TestAttachDetach_RoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	u2 := f.user(t, "u2@example.com")
	q := f.question(t, u1.ID)
	file := f.attach(t, u1.ID, q.ID, uuid.Nil, "a.jpg")

	err := f.svc.DetachFile(ctx, simpleqa.DetachFileRequest{Actor: u2.ID, QuestionID: q.ID, FileID: file.ID})
	assert.ErrorIs(t, err, simpleqa.ErrForbidden)

	a := f.answer(t, u1.ID, q.ID)
	err = f.svc.DetachFile(ctx, simpleqa.DetachFileRequest{Actor: u1.ID, QuestionID: q.ID, AnswerID: a.ID, FileID: file.ID})
	assert.ErrorIs(t, err, simpleqa.ErrFileNotFound, "file hangs off the question, not the answer")

	require.NoError(t, f.svc.DetachFile(ctx, simpleqa.DetachFileRequest{Actor: u1.ID, QuestionID: q.ID, FileID: file.ID}))

	_, err = f.store.GetObjectMeta(ctx, file.ObjectKey)
	assert.ErrorIs(t, err, simpleqa.ErrBlobNotFound)
	_, err = f.svc.GetFile(ctx, file.ID)
	assert.ErrorIs(t, err, simpleqa.ErrFileNotFound)
}

func TestDeleteQuestion_CascadesAttachments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	q := f.question(t, u1.ID, "networking")
	f.attach(t, u1.ID, q.ID, uuid.Nil, "one.png")
	f.attach(t, u1.ID, q.ID, uuid.Nil, "two.png")
	require.Len(t, f.store.Keys(), 2)

	require.NoError(t, f.svc.DeleteQuestion(ctx, u1.ID, q.ID))
	assert.Empty(t, f.store.Keys())
	files, err := f.repo.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

// Scenario: an answer with two files whose second blob delete fails. The
// answer and both rows go, the first blob goes, the second key is reported.
func TestDeleteAnswer_PartialFailureScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	q := f.question(t, u1.ID)
	a := f.answer(t, u1.ID, q.ID)

	first := f.attach(t, u1.ID, q.ID, a.ID, "first.png")
	second := f.attach(t, u1.ID, q.ID, a.ID, "second.png")
	f.store.failDelete[second.ObjectKey] = errors.New("s3 unavailable")

	err := f.svc.DeleteAnswer(ctx, u1.ID, q.ID, a.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, simpleqa.ErrPartialFailure)

	var pf *simpleqa.PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, []string{second.ObjectKey}, pf.OrphanedKeys())

	_, err = f.svc.GetAnswer(ctx, q.ID, a.ID)
	assert.ErrorIs(t, err, simpleqa.ErrAnswerNotFound)
	_, err = f.svc.GetFile(ctx, first.ID)
	assert.ErrorIs(t, err, simpleqa.ErrFileNotFound)
	_, err = f.svc.GetFile(ctx, second.ID)
	assert.ErrorIs(t, err, simpleqa.ErrFileNotFound)

	_, err = f.store.GetObjectMeta(ctx, first.ObjectKey)
	assert.ErrorIs(t, err, simpleqa.ErrBlobNotFound)
	assert.Equal(t, []string{second.ObjectKey}, f.store.Keys(), "the orphan is still in the store")
}

func TestDeleteQuestion_PartialFailureStillDeletesRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	q := f.question(t, u1.ID)
	file := f.attach(t, u1.ID, q.ID, uuid.Nil, "a.png")
	f.store.failDelete[file.ObjectKey] = errors.New("timeout")

	err := f.svc.DeleteQuestion(ctx, u1.ID, q.ID)
	var pf *simpleqa.PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, simpleqa.QuestionRef(q.ID), pf.Parent)
	assert.True(t, pf.OnlyOrphans())

	_, err = f.svc.GetQuestion(ctx, q.ID)
	assert.ErrorIs(t, err, simpleqa.ErrQuestionNotFound)
}

func TestAttach_PutFailureLeavesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")
	q := f.question(t, u1.ID)
	f.store.failPut = errors.New("bucket unreachable")

	_, err := f.svc.AttachFile(ctx, simpleqa.AttachFileRequest{
		Actor: u1.ID, QuestionID: q.ID, FileName: "a.png", ContentType: "image/png", Data: pngData,
	})
	var storageErr *simpleqa.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "put", storageErr.Op)

	files, err := f.repo.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestEvents(t *testing.T) {
	sink := &mockEventSink{}
	f := setup(t, simpleqa.WithEventSink(sink))
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")

	sink.On("QuestionCreated", mock.Anything, mock.AnythingOfType("*simpleqa.Question")).Return(nil).Once()
	q := f.question(t, u1.ID)

	sink.On("FileAttached", mock.Anything, mock.MatchedBy(func(file *simpleqa.File) bool {
		return file.QuestionID != nil && *file.QuestionID == q.ID
	})).Return(errors.New("broker down")).Once()
	file := f.attach(t, u1.ID, q.ID, uuid.Nil, "a.png")

	f.store.failDelete[file.ObjectKey] = errors.New("timeout")
	sink.On("BlobOrphaned", mock.Anything, mock.MatchedBy(func(failure simpleqa.FileFailure) bool {
		return failure.Key == file.ObjectKey && failure.Orphaned
	})).Return(nil).Once()
	sink.On("QuestionDeleted", mock.Anything, q.ID).Return(nil).Once()

	err := f.svc.DeleteQuestion(ctx, u1.ID, q.ID)
	assert.ErrorIs(t, err, simpleqa.ErrPartialFailure)

	sink.AssertExpectations(t)
	sink.AssertNotCalled(t, "FileDetached", mock.Anything, mock.Anything)
}

func TestListQuestions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u1 := f.user(t, "u1@example.com")

	questions, err := f.svc.ListQuestions(ctx)
	require.NoError(t, err)
	assert.Empty(t, questions)

	q1 := f.question(t, u1.ID, "a")
	q2 := f.question(t, u1.ID, "b")
	f.answer(t, u1.ID, q2.ID)

	questions, err = f.svc.ListQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, questions, 2)

	byID := map[uuid.UUID]*simpleqa.Question{}
	for _, q := range questions {
		byID[q.ID] = q
	}
	assert.Len(t, byID[q1.ID].Categories, 1)
	assert.Empty(t, byID[q1.ID].Answers)
	assert.Len(t, byID[q2.ID].Answers, 1)
}
