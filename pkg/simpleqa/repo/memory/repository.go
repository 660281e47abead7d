package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-qa/pkg/simpleqa"
)

// Repository implements simpleqa.Repository using in-memory storage.
// Foreign keys and unique constraints of the Postgres schema are enforced here
// too, so services behave the same against both.
type Repository struct {
	mu                 sync.RWMutex
	users              map[uuid.UUID]*simpleqa.User
	usersByName        map[string]uuid.UUID
	questions          map[uuid.UUID]*simpleqa.Question
	answers            map[uuid.UUID]*simpleqa.Answer
	categories         map[uuid.UUID]*simpleqa.Category
	categoriesByLabel  map[string]uuid.UUID
	questionCategories map[uuid.UUID]map[uuid.UUID]struct{} // question_id -> set of category_id
	files              map[uuid.UUID]*simpleqa.File
	filesByKey         map[string]uuid.UUID
}

var _ simpleqa.Repository = (*Repository)(nil)

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		users:              make(map[uuid.UUID]*simpleqa.User),
		usersByName:        make(map[string]uuid.UUID),
		questions:          make(map[uuid.UUID]*simpleqa.Question),
		answers:            make(map[uuid.UUID]*simpleqa.Answer),
		categories:         make(map[uuid.UUID]*simpleqa.Category),
		categoriesByLabel:  make(map[string]uuid.UUID),
		questionCategories: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		files:              make(map[uuid.UUID]*simpleqa.File),
		filesByKey:         make(map[string]uuid.UUID),
	}
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *simpleqa.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.usersByName[user.Username]; exists {
		return simpleqa.ErrUserExists
	}

	userCopy := *user
	r.users[user.ID] = &userCopy
	r.usersByName[user.Username] = user.ID
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simpleqa.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, simpleqa.ErrUserNotFound
	}
	userCopy := *user
	return &userCopy, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*simpleqa.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.usersByName[username]
	if !exists {
		return nil, simpleqa.ErrUserNotFound
	}
	userCopy := *r.users[id]
	return &userCopy, nil
}

func (r *Repository) UpdateUser(ctx context.Context, user *simpleqa.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.users[user.ID]
	if !exists {
		return simpleqa.ErrUserNotFound
	}
	if existing.Username != user.Username {
		return fmt.Errorf("%w: username cannot be changed", simpleqa.ErrBadRequest)
	}

	userCopy := *user
	r.users[user.ID] = &userCopy
	return nil
}

// Question operations

func (r *Repository) CreateQuestion(ctx context.Context, question *simpleqa.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[question.UserID]; !exists {
		return simpleqa.ErrUserNotFound
	}
	r.questions[question.ID] = copyQuestion(question)
	return nil
}

func (r *Repository) GetQuestion(ctx context.Context, id uuid.UUID) (*simpleqa.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	question, exists := r.questions[id]
	if !exists {
		return nil, simpleqa.ErrQuestionNotFound
	}
	return copyQuestion(question), nil
}

func (r *Repository) ListQuestions(ctx context.Context) ([]*simpleqa.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simpleqa.Question, 0, len(r.questions))
	for _, question := range r.questions {
		result = append(result, copyQuestion(question))
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) UpdateQuestion(ctx context.Context, question *simpleqa.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.questions[question.ID]
	if !exists {
		return simpleqa.ErrQuestionNotFound
	}
	existing.Text = question.Text
	existing.UpdatedAt = question.UpdatedAt
	return nil
}

func (r *Repository) UpdateQuestionWithCategories(ctx context.Context, question *simpleqa.Question, categoryIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.questions[question.ID]
	if !exists {
		return simpleqa.ErrQuestionNotFound
	}
	if err := r.replaceCategoriesLocked(question.ID, categoryIDs); err != nil {
		return err
	}
	existing.Text = question.Text
	existing.UpdatedAt = question.UpdatedAt
	return nil
}

func (r *Repository) CountAnswers(ctx context.Context, questionID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.countAnswersLocked(questionID), nil
}

func (r *Repository) DeleteQuestion(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.questions[id]; !exists {
		return nil
	}
	if r.countAnswersLocked(id) > 0 {
		return simpleqa.ErrQuestionHasAnswers
	}
	if r.hasFilesLocked(simpleqa.QuestionRef(id)) {
		return fmt.Errorf("%w: question %s still has attachments", simpleqa.ErrConflict, id)
	}

	delete(r.questions, id)
	delete(r.questionCategories, id)
	return nil
}

// Category operations

func (r *Repository) FindOrCreateCategory(ctx context.Context, label string) (*simpleqa.Category, error) {
	label = simpleqa.NormalizeLabel(label)
	if label == "" {
		return nil, fmt.Errorf("%w: category label is empty", simpleqa.ErrBadRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.categoriesByLabel[label]; exists {
		categoryCopy := *r.categories[id]
		return &categoryCopy, nil
	}

	category := &simpleqa.Category{ID: uuid.New(), Label: label}
	r.categories[category.ID] = category
	r.categoriesByLabel[label] = category.ID

	categoryCopy := *category
	return &categoryCopy, nil
}

func (r *Repository) LinkCategory(ctx context.Context, questionID, categoryID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.linkLocked(questionID, categoryID)
}

func (r *Repository) ReplaceCategories(ctx context.Context, questionID uuid.UUID, categoryIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.replaceCategoriesLocked(questionID, categoryIDs)
}

func (r *Repository) ListCategoriesByQuestion(ctx context.Context, questionID uuid.UUID) ([]*simpleqa.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simpleqa.Category
	for categoryID := range r.questionCategories[questionID] {
		categoryCopy := *r.categories[categoryID]
		result = append(result, &categoryCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Label < result[j].Label
	})
	return result, nil
}

// Answer operations

func (r *Repository) CreateAnswer(ctx context.Context, answer *simpleqa.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.questions[answer.QuestionID]; !exists {
		return simpleqa.ErrQuestionNotFound
	}
	if _, exists := r.users[answer.UserID]; !exists {
		return simpleqa.ErrUserNotFound
	}
	r.answers[answer.ID] = copyAnswer(answer)
	return nil
}

func (r *Repository) GetAnswer(ctx context.Context, id uuid.UUID) (*simpleqa.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	answer, exists := r.answers[id]
	if !exists {
		return nil, simpleqa.ErrAnswerNotFound
	}
	return copyAnswer(answer), nil
}

func (r *Repository) ListAnswersByQuestion(ctx context.Context, questionID uuid.UUID) ([]*simpleqa.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simpleqa.Answer
	for _, answer := range r.answers {
		if answer.QuestionID == questionID {
			result = append(result, copyAnswer(answer))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) UpdateAnswer(ctx context.Context, answer *simpleqa.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.answers[answer.ID]
	if !exists {
		return simpleqa.ErrAnswerNotFound
	}
	existing.Text = answer.Text
	existing.UpdatedAt = answer.UpdatedAt
	return nil
}

func (r *Repository) DeleteAnswer(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.answers[id]; !exists {
		return nil
	}
	if r.hasFilesLocked(simpleqa.AnswerRef(id)) {
		return fmt.Errorf("%w: answer %s still has attachments", simpleqa.ErrConflict, id)
	}
	delete(r.answers, id)
	return nil
}

// File operations

func (r *Repository) CreateFile(ctx context.Context, file *simpleqa.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if (file.QuestionID == nil) == (file.AnswerID == nil) {
		return fmt.Errorf("%w: file must have exactly one parent", simpleqa.ErrBadRequest)
	}
	if file.QuestionID != nil {
		if _, exists := r.questions[*file.QuestionID]; !exists {
			return simpleqa.ErrQuestionNotFound
		}
	}
	if file.AnswerID != nil {
		if _, exists := r.answers[*file.AnswerID]; !exists {
			return simpleqa.ErrAnswerNotFound
		}
	}
	if _, exists := r.filesByKey[file.ObjectKey]; exists {
		return fmt.Errorf("%w: object key %s already in use", simpleqa.ErrConflict, file.ObjectKey)
	}

	r.files[file.ID] = copyFile(file)
	r.filesByKey[file.ObjectKey] = file.ID
	return nil
}

func (r *Repository) GetFile(ctx context.Context, id uuid.UUID) (*simpleqa.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	file, exists := r.files[id]
	if !exists {
		return nil, simpleqa.ErrFileNotFound
	}
	return copyFile(file), nil
}

func (r *Repository) ListFilesByParent(ctx context.Context, parent simpleqa.ParentRef) ([]*simpleqa.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simpleqa.File
	for _, file := range r.files {
		if file.BelongsTo(parent) {
			result = append(result, copyFile(file))
		}
	}
	sortFiles(result)
	return result, nil
}

func (r *Repository) ListFiles(ctx context.Context) ([]*simpleqa.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simpleqa.File, 0, len(r.files))
	for _, file := range r.files {
		result = append(result, copyFile(file))
	}
	sortFiles(result)
	return result, nil
}

func (r *Repository) UpdateFileMeta(ctx context.Context, file *simpleqa.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.files[file.ID]
	if !exists {
		return simpleqa.ErrFileNotFound
	}
	existing.LastModified = file.LastModified
	existing.ContentLength = file.ContentLength
	existing.ETag = file.ETag
	existing.ContentType = file.ContentType
	return nil
}

func (r *Repository) DeleteFile(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, exists := r.files[id]
	if !exists {
		return nil
	}
	delete(r.filesByKey, file.ObjectKey)
	delete(r.files, id)
	return nil
}

// Helpers (callers hold r.mu)

func (r *Repository) countAnswersLocked(questionID uuid.UUID) int {
	count := 0
	for _, answer := range r.answers {
		if answer.QuestionID == questionID {
			count++
		}
	}
	return count
}

func (r *Repository) hasFilesLocked(parent simpleqa.ParentRef) bool {
	for _, file := range r.files {
		if file.BelongsTo(parent) {
			return true
		}
	}
	return false
}

// replaceCategoriesLocked checks every id before touching the links, so a
// failure leaves the existing set in place.
func (r *Repository) replaceCategoriesLocked(questionID uuid.UUID, categoryIDs []uuid.UUID) error {
	if _, exists := r.questions[questionID]; !exists {
		return simpleqa.ErrQuestionNotFound
	}
	for _, categoryID := range categoryIDs {
		if _, exists := r.categories[categoryID]; !exists {
			return fmt.Errorf("category %s %w", categoryID, simpleqa.ErrNotFound)
		}
	}

	delete(r.questionCategories, questionID)
	for _, categoryID := range categoryIDs {
		if err := r.linkLocked(questionID, categoryID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) linkLocked(questionID, categoryID uuid.UUID) error {
	if _, exists := r.questions[questionID]; !exists {
		return simpleqa.ErrQuestionNotFound
	}
	if _, exists := r.categories[categoryID]; !exists {
		return fmt.Errorf("category %s %w", categoryID, simpleqa.ErrNotFound)
	}
	links, ok := r.questionCategories[questionID]
	if !ok {
		links = make(map[uuid.UUID]struct{})
		r.questionCategories[questionID] = links
	}
	links[categoryID] = struct{}{}
	return nil
}

func copyQuestion(q *simpleqa.Question) *simpleqa.Question {
	return &simpleqa.Question{
		ID:        q.ID,
		Text:      q.Text,
		UserID:    q.UserID,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	}
}

func copyAnswer(a *simpleqa.Answer) *simpleqa.Answer {
	return &simpleqa.Answer{
		ID:         a.ID,
		QuestionID: a.QuestionID,
		UserID:     a.UserID,
		Text:       a.Text,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func copyFile(f *simpleqa.File) *simpleqa.File {
	fileCopy := *f
	if f.QuestionID != nil {
		id := *f.QuestionID
		fileCopy.QuestionID = &id
	}
	if f.AnswerID != nil {
		id := *f.AnswerID
		fileCopy.AnswerID = &id
	}
	return &fileCopy
}

func sortFiles(files []*simpleqa.File) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].ID.String() < files[j].ID.String()
		}
		return files[i].CreatedAt.Before(files[j].CreatedAt)
	})
}
