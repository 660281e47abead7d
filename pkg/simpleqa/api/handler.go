// Package api exposes simpleqa.Service over HTTP under chi.
package api

import (
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/tendant/simple-qa/pkg/simpleqa"
)

// jsonBodyLimit caps non-upload request bodies
const jsonBodyLimit = 1 << 20

// Handler serves the /v1 API
type Handler struct {
	service        simpleqa.Service
	logger         *slog.Logger
	validate       *validator.Validate
	policy         *bluemonday.Policy
	maxUploadBytes int64
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLogger sets the logger used for request and error logs
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxUploadBytes sets the attachment ceiling used to bound multipart bodies
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandler creates a handler for service
func NewHandler(service simpleqa.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:        service,
		logger:         slog.Default(),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		policy:         bluemonday.StrictPolicy(),
		maxUploadBytes: simpleqa.DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for the /v1 endpoints. Reads are public,
// everything that mutates or reads the caller's own account needs Basic
// credentials.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware, LoggingMiddleware(h.logger), RecoveryMiddleware(h.logger))

	r.Post("/users", h.CreateUser)
	r.Get("/users/{user_id}", h.GetUser)
	r.Get("/questions", h.ListQuestions)
	r.Get("/question/{question_id}", h.GetQuestion)
	r.Get("/question/{question_id}/answer/{answer_id}", h.GetAnswer)

	r.Group(func(r chi.Router) {
		r.Use(BasicAuth(h.service, h.logger))

		r.Get("/users/self", h.GetSelf)
		r.Put("/users/self", h.UpdateSelf)

		r.Post("/question", h.CreateQuestion)
		r.Put("/question/{question_id}", h.UpdateQuestion)
		r.Delete("/question/{question_id}", h.DeleteQuestion)
		r.Post("/question/{question_id}/file", h.AttachQuestionFile)
		r.Delete("/question/{question_id}/file/{file_id}", h.DetachQuestionFile)

		r.Post("/question/{question_id}/answer", h.CreateAnswer)
		r.Put("/question/{question_id}/answer/{answer_id}", h.UpdateAnswer)
		r.Delete("/question/{question_id}/answer/{answer_id}", h.DeleteAnswer)
		r.Post("/question/{question_id}/answer/{answer_id}/file", h.AttachAnswerFile)
		r.Delete("/question/{question_id}/answer/{answer_id}/file/{file_id}", h.DetachAnswerFile)
	})

	return r
}

// decodeValidate reads a JSON body into v and runs struct validation
func (h *Handler) decodeValidate(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, jsonBodyLimit)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: body is invalid json", simpleqa.ErrBadRequest)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", simpleqa.ErrBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be an email address", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// sanitize strips markup from user supplied text. The policy escapes what it
// keeps, so the result is unescaped again: texts are stored and returned as
// plain text, not HTML.
func (h *Handler) sanitize(s string) string {
	return html.UnescapeString(h.policy.Sanitize(s))
}

func (h *Handler) sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	clean := h.sanitize(*s)
	return &clean
}

func urlUUID(r *http.Request, name string, notFound error) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		// a malformed id cannot name an existing row
		return uuid.Nil, notFound
	}
	return id, nil
}

func (h *Handler) actor(r *http.Request) uuid.UUID {
	if user, ok := UserFromContext(r.Context()); ok {
		return user.ID
	}
	return uuid.Nil
}

func (h *Handler) error(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}
