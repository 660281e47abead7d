package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-qa/pkg/simpleqa"
)

// AnswerRequest is the request body for creating or editing an answer
type AnswerRequest struct {
	AnswerText string `json:"answer_text" validate:"required"`
}

// CreateAnswer answers a question as the caller
func (h *Handler) CreateAnswer(w http.ResponseWriter, r *http.Request) {
	questionID, err := urlUUID(r, "question_id", simpleqa.ErrQuestionNotFound)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var req AnswerRequest
	if err := h.decodeValidate(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	answer, err := h.service.CreateAnswer(r.Context(), simpleqa.CreateAnswerRequest{
		Actor:      h.actor(r),
		QuestionID: questionID,
		Text:       h.sanitize(req.AnswerText),
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, answer)
}

// GetAnswer returns one answer of a question
func (h *Handler) GetAnswer(w http.ResponseWriter, r *http.Request) {
	questionID, answerID, err := answerPath(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	answer, err := h.service.GetAnswer(r.Context(), questionID, answerID)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, answer)
}

// UpdateAnswer edits the caller's answer
func (h *Handler) UpdateAnswer(w http.ResponseWriter, r *http.Request) {
	questionID, answerID, err := answerPath(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	var req AnswerRequest
	if err := h.decodeValidate(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	text := h.sanitize(req.AnswerText)
	err = h.service.UpdateAnswer(r.Context(), simpleqa.UpdateAnswerRequest{
		Actor:      h.actor(r),
		QuestionID: questionID,
		AnswerID:   answerID,
		Text:       &text,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAnswer removes the caller's answer and its attachments
func (h *Handler) DeleteAnswer(w http.ResponseWriter, r *http.Request) {
	questionID, answerID, err := answerPath(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	if err := h.service.DeleteAnswer(r.Context(), h.actor(r), questionID, answerID); err != nil {
		h.error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func answerPath(r *http.Request) (questionID, answerID uuid.UUID, err error) {
	questionID, err = urlUUID(r, "question_id", simpleqa.ErrQuestionNotFound)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	answerID, err = urlUUID(r, "answer_id", simpleqa.ErrAnswerNotFound)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return questionID, answerID, nil
}
