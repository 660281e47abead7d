package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-qa/pkg/simpleqa"
)

// FormField is the multipart field carrying the image
const FormField = "image"

// multipartOverhead leaves room for boundaries and headers around the image
const multipartOverhead = 64 << 10

// AttachQuestionFile uploads an image onto the caller's question
func (h *Handler) AttachQuestionFile(w http.ResponseWriter, r *http.Request) {
	questionID, err := urlUUID(r, "question_id", simpleqa.ErrQuestionNotFound)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.attach(w, r, questionID, uuid.Nil)
}

// AttachAnswerFile uploads an image onto the caller's answer
func (h *Handler) AttachAnswerFile(w http.ResponseWriter, r *http.Request) {
	questionID, answerID, err := answerPath(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.attach(w, r, questionID, answerID)
}

// DetachQuestionFile removes an image from the caller's question
func (h *Handler) DetachQuestionFile(w http.ResponseWriter, r *http.Request) {
	questionID, err := urlUUID(r, "question_id", simpleqa.ErrQuestionNotFound)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.detach(w, r, questionID, uuid.Nil)
}

// DetachAnswerFile removes an image from the caller's answer
func (h *Handler) DetachAnswerFile(w http.ResponseWriter, r *http.Request) {
	questionID, answerID, err := answerPath(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.detach(w, r, questionID, answerID)
}

func (h *Handler) attach(w http.ResponseWriter, r *http.Request, questionID, answerID uuid.UUID) {
	name, contentType, data, err := h.readImage(w, r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	file, err := h.service.AttachFile(r.Context(), simpleqa.AttachFileRequest{
		Actor:       h.actor(r),
		QuestionID:  questionID,
		AnswerID:    answerID,
		FileName:    name,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, file)
}

func (h *Handler) detach(w http.ResponseWriter, r *http.Request, questionID, answerID uuid.UUID) {
	fileID, err := urlUUID(r, "file_id", simpleqa.ErrFileNotFound)
	if err != nil {
		h.error(w, r, err)
		return
	}

	err = h.service.DetachFile(r.Context(), simpleqa.DetachFileRequest{
		Actor:      h.actor(r),
		QuestionID: questionID,
		AnswerID:   answerID,
		FileID:     fileID,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readImage pulls the image part out of a multipart body. At most one byte
// past the ceiling is read so the service can report the oversize.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) (string, string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)

	part, header, err := r.FormFile(FormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return "", "", nil, fmt.Errorf("%w: request body exceeds %d bytes", simpleqa.ErrPayloadTooLarge, tooLarge.Limit)
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return "", "", nil, fmt.Errorf("%w: no file uploaded", simpleqa.ErrBadRequest)
		default:
			return "", "", nil, fmt.Errorf("%w: malformed multipart body: %v", simpleqa.ErrBadRequest, err)
		}
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, h.maxUploadBytes+1))
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: failed to read upload: %v", simpleqa.ErrBadRequest, err)
	}

	return header.Filename, header.Header.Get("Content-Type"), data, nil
}
