package api

import (
	"net/http"

	"github.com/tendant/simple-qa/pkg/simpleqa"
)

// CategoryInput is one category label in a question body
type CategoryInput struct {
	Category string `json:"category" validate:"required"`
}

// CreateQuestionRequest is the request body for posting a question
type CreateQuestionRequest struct {
	QuestionText string          `json:"question_text" validate:"required"`
	Categories   []CategoryInput `json:"categories" validate:"dive"`
}

// UpdateQuestionRequest is the request body for editing a question. A
// categories array replaces the question's category set.
type UpdateQuestionRequest struct {
	QuestionText *string          `json:"question_text"`
	Categories   *[]CategoryInput `json:"categories"`
}

func (h *Handler) labels(in []CategoryInput) []string {
	labels := make([]string, 0, len(in))
	for _, c := range in {
		labels = append(labels, h.sanitize(c.Category))
	}
	return labels
}

// CreateQuestion posts a question owned by the caller
func (h *Handler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req CreateQuestionRequest
	if err := h.decodeValidate(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	question, err := h.service.CreateQuestion(r.Context(), simpleqa.CreateQuestionRequest{
		Actor:      h.actor(r),
		Text:       h.sanitize(req.QuestionText),
		Categories: h.labels(req.Categories),
	})
	if err != nil {
		h.error(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, question)
}

// ListQuestions returns every question with categories, answers and attachments
func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.service.ListQuestions(r.Context())
	if err != nil {
		h.error(w, r, err)
		return
	}
	if questions == nil {
		questions = []*simpleqa.Question{}
	}
	writeJSON(w, r, http.StatusOK, questions)
}

// GetQuestion returns one question
func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "question_id", simpleqa.ErrQuestionNotFound)
	if err != nil {
		h.error(w, r, err)
		return
	}

	question, err := h.service.GetQuestion(r.Context(), id)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, question)
}

// UpdateQuestion edits text and/or categories of the caller's question
func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "question_id", simpleqa.ErrQuestionNotFound)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var req UpdateQuestionRequest
	if err := h.decodeValidate(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	update := simpleqa.UpdateQuestionRequest{
		Actor:      h.actor(r),
		QuestionID: id,
		Text:       h.sanitizePtr(req.QuestionText),
	}
	if req.Categories != nil {
		labels := h.labels(*req.Categories)
		update.Categories = &labels
	}

	if err := h.service.UpdateQuestion(r.Context(), update); err != nil {
		h.error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteQuestion removes the caller's question along with its attachments.
// A question that still has answers is refused with 409.
func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "question_id", simpleqa.ErrQuestionNotFound)
	if err != nil {
		h.error(w, r, err)
		return
	}

	if err := h.service.DeleteQuestion(r.Context(), h.actor(r), id); err != nil {
		h.error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
