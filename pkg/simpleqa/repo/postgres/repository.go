package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-qa/pkg/simpleqa"
)

var _ simpleqa.Repository = (*Repository)(nil)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements simpleqa.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "username") {
				return simpleqa.ErrUserExists
			}
			return fmt.Errorf("%w: duplicate entry in %s (%s)", simpleqa.ErrConflict, operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			if strings.HasPrefix(operation, "delete") {
				return fmt.Errorf("%w: %s is still referenced (%s)", simpleqa.ErrConflict, operation, pgErr.ConstraintName)
			}
			return fmt.Errorf("referenced record %w (%s)", simpleqa.ErrNotFound, pgErr.ConstraintName)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s violates %s", simpleqa.ErrBadRequest, operation, pgErr.ConstraintName)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", simpleqa.ErrBadRequest, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *simpleqa.User) error {
	query := `
		INSERT INTO users (id, first_name, last_name, username, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		user.ID, user.FirstName, user.LastName, user.Username,
		user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create user", err)
	}
	return nil
}

const selectUser = `SELECT id, first_name, last_name, username, password, created_at, updated_at FROM users`

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simpleqa.User, error) {
	return r.getUser(ctx, selectUser+` WHERE id = $1`, id)
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*simpleqa.User, error) {
	return r.getUser(ctx, selectUser+` WHERE username = $1`, username)
}

func (r *Repository) getUser(ctx context.Context, query string, arg interface{}) (*simpleqa.User, error) {
	var user simpleqa.User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Username,
		&user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleqa.ErrUserNotFound
		}
		return nil, r.handlePostgresError("get user", err)
	}
	return &user, nil
}

func (r *Repository) UpdateUser(ctx context.Context, user *simpleqa.User) error {
	query := `
		UPDATE users SET first_name = $2, last_name = $3, password = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		user.ID, user.FirstName, user.LastName, user.PasswordHash, user.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleqa.ErrUserNotFound
	}
	return nil
}

// Question operations

func (r *Repository) CreateQuestion(ctx context.Context, question *simpleqa.Question) error {
	query := `
		INSERT INTO questions (id, user_id, text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		question.ID, question.UserID, question.Text, question.CreatedAt, question.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create question", err)
	}
	return nil
}

func (r *Repository) GetQuestion(ctx context.Context, id uuid.UUID) (*simpleqa.Question, error) {
	query := `SELECT id, user_id, text, created_at, updated_at FROM questions WHERE id = $1`

	var question simpleqa.Question
	err := r.db.QueryRow(ctx, query, id).Scan(
		&question.ID, &question.UserID, &question.Text, &question.CreatedAt, &question.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleqa.ErrQuestionNotFound
		}
		return nil, r.handlePostgresError("get question", err)
	}
	return &question, nil
}

func (r *Repository) ListQuestions(ctx context.Context) ([]*simpleqa.Question, error) {
	query := `SELECT id, user_id, text, created_at, updated_at FROM questions ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list questions", err)
	}
	defer rows.Close()

	var result []*simpleqa.Question
	for rows.Next() {
		var question simpleqa.Question
		if err := rows.Scan(&question.ID, &question.UserID, &question.Text,
			&question.CreatedAt, &question.UpdatedAt); err != nil {
			return nil, r.handlePostgresError("list questions", err)
		}
		result = append(result, &question)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list questions", err)
	}
	return result, nil
}

func (r *Repository) UpdateQuestion(ctx context.Context, question *simpleqa.Question) error {
	query := `UPDATE questions SET text = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, question.ID, question.Text, question.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update question", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleqa.ErrQuestionNotFound
	}
	return nil
}

func (r *Repository) UpdateQuestionWithCategories(ctx context.Context, question *simpleqa.Question, categoryIDs []uuid.UUID) error {
	return r.inTx(ctx, "update question", func(tx *Repository) error {
		if err := tx.UpdateQuestion(ctx, question); err != nil {
			return err
		}
		return tx.replaceCategories(ctx, question.ID, categoryIDs)
	})
}

func (r *Repository) CountAnswers(ctx context.Context, questionID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM answers WHERE question_id = $1`, questionID).Scan(&count)
	if err != nil {
		return 0, r.handlePostgresError("count answers", err)
	}
	return count, nil
}

// DeleteQuestion deletes the row only while no answer references it, in a
// single statement so a concurrently inserted answer cannot slip past.
func (r *Repository) DeleteQuestion(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM questions
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM answers WHERE question_id = $1)`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		// An answer committed while the delete waited on its row lock
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "answers_question_id_fkey" {
			return simpleqa.ErrQuestionHasAnswers
		}
		return r.handlePostgresError("delete question", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return r.handlePostgresError("delete question", err)
	}
	if exists {
		return simpleqa.ErrQuestionHasAnswers
	}
	return nil
}

// Category operations

func (r *Repository) FindOrCreateCategory(ctx context.Context, label string) (*simpleqa.Category, error) {
	label = simpleqa.NormalizeLabel(label)
	if label == "" {
		return nil, fmt.Errorf("%w: category label is empty", simpleqa.ErrBadRequest)
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO categories (id, label) VALUES ($1, $2)
		ON CONFLICT (label) DO UPDATE SET label = EXCLUDED.label
		RETURNING id, label`

	var category simpleqa.Category
	if err := r.db.QueryRow(ctx, query, uuid.New(), label).Scan(&category.ID, &category.Label); err != nil {
		return nil, r.handlePostgresError("find or create category", err)
	}
	return &category, nil
}

func (r *Repository) LinkCategory(ctx context.Context, questionID, categoryID uuid.UUID) error {
	query := `
		INSERT INTO question_categories (question_id, category_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	if _, err := r.db.Exec(ctx, query, questionID, categoryID); err != nil {
		return r.handlePostgresError("link category", err)
	}
	return nil
}

func (r *Repository) ReplaceCategories(ctx context.Context, questionID uuid.UUID, categoryIDs []uuid.UUID) error {
	return r.inTx(ctx, "replace categories", func(tx *Repository) error {
		return tx.replaceCategories(ctx, questionID, categoryIDs)
	})
}

func (r *Repository) replaceCategories(ctx context.Context, questionID uuid.UUID, categoryIDs []uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM question_categories WHERE question_id = $1`, questionID); err != nil {
		return r.handlePostgresError("replace categories", err)
	}
	for _, categoryID := range categoryIDs {
		if err := r.LinkCategory(ctx, questionID, categoryID); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs fn against a repository bound to a new transaction and commits
// when fn succeeds
func (r *Repository) inTx(ctx context.Context, operation string, fn func(tx *Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return r.handlePostgresError(operation, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return r.handlePostgresError(operation, err)
	}
	return nil
}

func (r *Repository) ListCategoriesByQuestion(ctx context.Context, questionID uuid.UUID) ([]*simpleqa.Category, error) {
	query := `
		SELECT c.id, c.label
		FROM categories c
		JOIN question_categories qc ON qc.category_id = c.id
		WHERE qc.question_id = $1
		ORDER BY c.label`

	rows, err := r.db.Query(ctx, query, questionID)
	if err != nil {
		return nil, r.handlePostgresError("list categories", err)
	}
	defer rows.Close()

	var result []*simpleqa.Category
	for rows.Next() {
		var category simpleqa.Category
		if err := rows.Scan(&category.ID, &category.Label); err != nil {
			return nil, r.handlePostgresError("list categories", err)
		}
		result = append(result, &category)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list categories", err)
	}
	return result, nil
}

// Answer operations

func (r *Repository) CreateAnswer(ctx context.Context, answer *simpleqa.Answer) error {
	query := `
		INSERT INTO answers (id, question_id, user_id, text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		answer.ID, answer.QuestionID, answer.UserID, answer.Text, answer.CreatedAt, answer.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create answer", err)
	}
	return nil
}

func (r *Repository) GetAnswer(ctx context.Context, id uuid.UUID) (*simpleqa.Answer, error) {
	query := `SELECT id, question_id, user_id, text, created_at, updated_at FROM answers WHERE id = $1`

	var answer simpleqa.Answer
	err := r.db.QueryRow(ctx, query, id).Scan(
		&answer.ID, &answer.QuestionID, &answer.UserID, &answer.Text, &answer.CreatedAt, &answer.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleqa.ErrAnswerNotFound
		}
		return nil, r.handlePostgresError("get answer", err)
	}
	return &answer, nil
}

func (r *Repository) ListAnswersByQuestion(ctx context.Context, questionID uuid.UUID) ([]*simpleqa.Answer, error) {
	query := `
		SELECT id, question_id, user_id, text, created_at, updated_at
		FROM answers WHERE question_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, questionID)
	if err != nil {
		return nil, r.handlePostgresError("list answers", err)
	}
	defer rows.Close()

	var result []*simpleqa.Answer
	for rows.Next() {
		var answer simpleqa.Answer
		if err := rows.Scan(&answer.ID, &answer.QuestionID, &answer.UserID, &answer.Text,
			&answer.CreatedAt, &answer.UpdatedAt); err != nil {
			return nil, r.handlePostgresError("list answers", err)
		}
		result = append(result, &answer)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list answers", err)
	}
	return result, nil
}

func (r *Repository) UpdateAnswer(ctx context.Context, answer *simpleqa.Answer) error {
	tag, err := r.db.Exec(ctx, `UPDATE answers SET text = $2, updated_at = $3 WHERE id = $1`,
		answer.ID, answer.Text, answer.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update answer", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleqa.ErrAnswerNotFound
	}
	return nil
}

func (r *Repository) DeleteAnswer(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM answers WHERE id = $1`, id); err != nil {
		return r.handlePostgresError("delete answer", err)
	}
	return nil
}

// File operations

const selectFile = `
	SELECT id, file_name, object_key, question_id, answer_id, created_at,
	       last_modified, content_length, etag, content_type
	FROM files`

func (r *Repository) CreateFile(ctx context.Context, file *simpleqa.File) error {
	query := `
		INSERT INTO files (
			id, file_name, object_key, question_id, answer_id, created_at,
			last_modified, content_length, etag, content_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		file.ID, file.FileName, file.ObjectKey, file.QuestionID, file.AnswerID, file.CreatedAt,
		file.LastModified, file.ContentLength, file.ETag, file.ContentType)
	if err != nil {
		return r.handlePostgresError("create file", err)
	}
	return nil
}

func (r *Repository) GetFile(ctx context.Context, id uuid.UUID) (*simpleqa.File, error) {
	file, err := scanFile(r.db.QueryRow(ctx, selectFile+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleqa.ErrFileNotFound
		}
		return nil, r.handlePostgresError("get file", err)
	}
	return file, nil
}

func (r *Repository) ListFilesByParent(ctx context.Context, parent simpleqa.ParentRef) ([]*simpleqa.File, error) {
	var column string
	switch parent.Kind {
	case simpleqa.ParentQuestion:
		column = "question_id"
	case simpleqa.ParentAnswer:
		column = "answer_id"
	default:
		return nil, fmt.Errorf("%w: unknown attachment parent %q", simpleqa.ErrBadRequest, parent.Kind)
	}
	return r.listFiles(ctx, selectFile+` WHERE `+column+` = $1 ORDER BY created_at, id`, parent.ID)
}

func (r *Repository) ListFiles(ctx context.Context) ([]*simpleqa.File, error) {
	return r.listFiles(ctx, selectFile+` ORDER BY created_at, id`)
}

func (r *Repository) listFiles(ctx context.Context, query string, args ...interface{}) ([]*simpleqa.File, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list files", err)
	}
	defer rows.Close()

	var result []*simpleqa.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, r.handlePostgresError("list files", err)
		}
		result = append(result, file)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list files", err)
	}
	return result, nil
}

func (r *Repository) UpdateFileMeta(ctx context.Context, file *simpleqa.File) error {
	query := `
		UPDATE files SET last_modified = $2, content_length = $3, etag = $4, content_type = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		file.ID, file.LastModified, file.ContentLength, file.ETag, file.ContentType)
	if err != nil {
		return r.handlePostgresError("update file meta", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleqa.ErrFileNotFound
	}
	return nil
}

func (r *Repository) DeleteFile(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id); err != nil {
		return r.handlePostgresError("delete file", err)
	}
	return nil
}

func scanFile(row pgx.Row) (*simpleqa.File, error) {
	var file simpleqa.File
	err := row.Scan(
		&file.ID, &file.FileName, &file.ObjectKey, &file.QuestionID, &file.AnswerID, &file.CreatedAt,
		&file.LastModified, &file.ContentLength, &file.ETag, &file.ContentType)
	if err != nil {
		return nil, err
	}
	return &file, nil
}
