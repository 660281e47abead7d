package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-qa/pkg/simpleqa"
	"github.com/tendant/simple-qa/pkg/simpleqa/repo/memory"
	memorystorage "github.com/tendant/simple-qa/pkg/simpleqa/storage/memory"
)

const testMaxUpload = 1024

// flakyStore fails deletes for keys listed in failDelete
type flakyStore struct {
	*memorystorage.Backend
	failDelete map[string]bool
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	if f.failDelete[key] {
		return errors.New("blob store unavailable")
	}
	return f.Backend.Delete(ctx, key)
}

type testServer struct {
	router http.Handler
	store  *flakyStore
}

func setupHandlerTest(t *testing.T) *testServer {
	t.Helper()
	store := &flakyStore{Backend: memorystorage.New(), failDelete: map[string]bool{}}

	service, err := simpleqa.New(
		simpleqa.WithRepository(memory.New()),
		simpleqa.WithBlobStore(store),
		simpleqa.WithMaxUploadBytes(testMaxUpload),
		simpleqa.WithBcryptCost(4),
	)
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Mount("/v1", NewHandler(service, WithMaxUploadBytes(testMaxUpload)).Routes())
	return &testServer{router: router, store: store}
}

type credentials struct {
	username, password string
}

func (s *testServer) do(t *testing.T, method, path string, creds *credentials, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if creds != nil {
		req.SetBasicAuth(creds.username, creds.password)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, path string, creds *credentials, fileName, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormField, fileName))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(creds.username, creds.password)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) register(t *testing.T, username string) *credentials {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/users", nil, CreateUserRequest{
		FirstName: "Jane",
		LastName:  "Doe",
		Username:  username,
		Password:  "correct horse",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return &credentials{username: username, password: "correct horse"}
}

func (s *testServer) postQuestion(t *testing.T, creds *credentials) simpleqa.Question {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/question", creds, CreateQuestionRequest{
		QuestionText: "How do I <b>bake</b> bread?",
		Categories:   []CategoryInput{{Category: "Cooking"}, {Category: "cooking "}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var q simpleqa.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	return q
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake image body")

func TestHandler_CreateUser(t *testing.T) {
	s := setupHandlerTest(t)
	s.register(t, "jane@example.com")

	w := s.do(t, http.MethodPost, "/v1/users", nil, CreateUserRequest{
		FirstName: "Jane", LastName: "Doe", Username: "jane@example.com", Password: "another password",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "duplicate username")

	w = s.do(t, http.MethodPost, "/v1/users", nil, CreateUserRequest{
		FirstName: "Jim", LastName: "Doe", Username: "jim@example.com", Password: "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Error, "Password")

	w = s.do(t, http.MethodPost, "/v1/users", nil, CreateUserRequest{
		FirstName: "Jim", LastName: "Doe", Username: "not-an-email", Password: "long enough",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_SelfRequiresAuth(t *testing.T) {
	s := setupHandlerTest(t)
	creds := s.register(t, "jane@example.com")

	w := s.do(t, http.MethodGet, "/v1/users/self", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="simple-qa"`, w.Header().Get("WWW-Authenticate"))

	w = s.do(t, http.MethodGet, "/v1/users/self", &credentials{creds.username, "wrong password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/v1/users/self", creds, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	var user simpleqa.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, creds.username, user.Username)

	w = s.do(t, http.MethodGet, "/v1/users/"+user.ID.String(), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/v1/users/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_UpdateSelf(t *testing.T) {
	s := setupHandlerTest(t)
	creds := s.register(t, "jane@example.com")

	w := s.do(t, http.MethodPut, "/v1/users/self", creds, map[string]string{"username": "other@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/v1/users/self", creds, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "no fields")

	w = s.do(t, http.MethodPut, "/v1/users/self", creds, map[string]string{"password": "a new password"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/v1/users/self", creds, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "old password no longer works")
	w = s.do(t, http.MethodGet, "/v1/users/self", &credentials{creds.username, "a new password"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_PlainTextRoundTrip(t *testing.T) {
	s := setupHandlerTest(t)
	owner := s.register(t, "owner@example.com")

	text := "What's the diff between TCP & UDP when a < b?"
	w := s.do(t, http.MethodPost, "/v1/question", owner, CreateQuestionRequest{
		QuestionText: text,
		Categories:   []CategoryInput{{Category: "Q&A"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created simpleqa.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = s.do(t, http.MethodGet, "/v1/question/"+created.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got simpleqa.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, text, got.Text)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, "q&a", got.Categories[0].Label)

	w = s.do(t, http.MethodPost, "/v1/question/"+created.ID.String()+"/answer", owner,
		AnswerRequest{AnswerText: "It's <i>ordered</i> & reliable"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var answer simpleqa.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answer))
	assert.Equal(t, "It's ordered & reliable", answer.Text)
}

func TestHandler_QuestionLifecycle(t *testing.T) {
	s := setupHandlerTest(t)
	owner := s.register(t, "owner@example.com")
	other := s.register(t, "other@example.com")

	q := s.postQuestion(t, owner)
	assert.Equal(t, "How do I bake bread?", q.Text)
	require.Len(t, q.Categories, 1)
	assert.Equal(t, "cooking", q.Categories[0].Label)

	qPath := "/v1/question/" + q.ID.String()

	w := s.do(t, http.MethodPut, qPath, other, map[string]string{"question_text": "hijacked"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, qPath, owner, map[string]any{
		"question_text": "How do I bake sourdough?",
		"categories":    []map[string]string{{"category": "Baking"}},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, qPath, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got simpleqa.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "How do I bake sourdough?", got.Text)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, "baking", got.Categories[0].Label)

	w = s.do(t, http.MethodPost, qPath+"/answer", other, AnswerRequest{AnswerText: "Use a starter"})
	require.Equal(t, http.StatusCreated, w.Code)
	var answer simpleqa.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answer))

	w = s.do(t, http.MethodDelete, qPath, owner, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "question with answers")

	aPath := qPath + "/answer/" + answer.ID.String()
	w = s.do(t, http.MethodDelete, aPath, owner, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodDelete, aPath, other, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, qPath, owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, qPath, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/questions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestHandler_AnswerRoutes(t *testing.T) {
	s := setupHandlerTest(t)
	owner := s.register(t, "owner@example.com")
	q := s.postQuestion(t, owner)
	qPath := "/v1/question/" + q.ID.String()

	w := s.do(t, http.MethodPost, qPath+"/answer", owner, AnswerRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/question/"+uuid.NewString()+"/answer", owner, AnswerRequest{AnswerText: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, qPath+"/answer", owner, AnswerRequest{AnswerText: "first"})
	require.Equal(t, http.StatusCreated, w.Code)
	var answer simpleqa.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answer))

	aPath := qPath + "/answer/" + answer.ID.String()
	w = s.do(t, http.MethodPut, aPath, owner, AnswerRequest{AnswerText: "edited"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, aPath, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got simpleqa.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "edited", got.Text)

	other := s.postQuestion(t, owner)
	w = s.do(t, http.MethodGet, "/v1/question/"+other.ID.String()+"/answer/"+answer.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "answer under the wrong question")
}

func TestHandler_Attachments(t *testing.T) {
	s := setupHandlerTest(t)
	owner := s.register(t, "owner@example.com")
	other := s.register(t, "other@example.com")
	q := s.postQuestion(t, owner)
	qPath := "/v1/question/" + q.ID.String()

	w := s.upload(t, qPath+"/file", owner, "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload(t, qPath+"/file", owner, "big.png", "image/png", bytes.Repeat([]byte{1}, testMaxUpload+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = s.upload(t, qPath+"/file", other, "cat.png", "image/png", pngBytes)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, s.store.Keys(), "ownership is checked before the blob is written")

	w = s.upload(t, qPath+"/file", owner, "cat.png", "image/png", pngBytes)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var file simpleqa.File
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.Equal(t, "cat.png", file.FileName)
	assert.Equal(t, int64(len(pngBytes)), file.ContentLength)
	assert.NotEmpty(t, file.ETag)
	assert.Equal(t, []string{file.ObjectKey}, s.store.Keys())

	w = s.do(t, http.MethodDelete, qPath+"/file/"+uuid.NewString(), owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, qPath+"/file/"+file.ID.String(), owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, s.store.Keys())
}

func TestHandler_AnswerAttachmentCascade(t *testing.T) {
	s := setupHandlerTest(t)
	owner := s.register(t, "owner@example.com")
	q := s.postQuestion(t, owner)
	qPath := "/v1/question/" + q.ID.String()

	w := s.do(t, http.MethodPost, qPath+"/answer", owner, AnswerRequest{AnswerText: "see picture"})
	require.Equal(t, http.StatusCreated, w.Code)
	var answer simpleqa.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answer))
	aPath := qPath + "/answer/" + answer.ID.String()

	w = s.upload(t, aPath+"/file", owner, "a.jpg", "image/jpeg", pngBytes)
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.upload(t, aPath+"/file", owner, "b.jpeg", "image/jpeg", pngBytes)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, s.store.Keys(), 2)

	w = s.do(t, http.MethodDelete, aPath, owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, s.store.Keys())
}

func TestHandler_PartialFailureReportsOrphans(t *testing.T) {
	s := setupHandlerTest(t)
	owner := s.register(t, "owner@example.com")
	q := s.postQuestion(t, owner)
	qPath := "/v1/question/" + q.ID.String()

	w := s.upload(t, qPath+"/file", owner, "cat.png", "image/png", pngBytes)
	require.Equal(t, http.StatusCreated, w.Code)
	var file simpleqa.File
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	s.store.failDelete[file.ObjectKey] = true

	w = s.do(t, http.MethodDelete, qPath, owner, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, []string{file.ObjectKey}, resp.OrphanedKeys)

	w = s.do(t, http.MethodGet, qPath, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "the question row is gone")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{simpleqa.ErrUnauthorized, http.StatusUnauthorized},
		{&simpleqa.QuestionError{Op: "update", Err: simpleqa.ErrForbidden}, http.StatusForbidden},
		{simpleqa.ErrAnswerNotFound, http.StatusNotFound},
		{simpleqa.ErrInvalidContent, http.StatusBadRequest},
		{simpleqa.ErrUserExists, http.StatusBadRequest},
		{simpleqa.ErrQuestionHasAnswers, http.StatusConflict},
		{simpleqa.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{&simpleqa.StorageError{Op: "put", Err: errors.New("timeout")}, http.StatusBadGateway},
		{&simpleqa.PartialFailureError{Op: "detach_all"}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/v1/question/{question_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/question/"+uuid.NewString(), nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	count, err := testutil.GatherAndCount(reg, "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "route pattern keeps a single series")
	assert.Equal(t, float64(3), testutil.ToFloat64(
		metrics.requestsTotal.WithLabelValues(http.MethodGet, "/v1/question/{question_id}", "418"),
	))
}
