package postgres

import (
	"context"
	"fmt"
)

// Schema creates the tables used by Repository. Every statement is idempotent.
//
// Answers and files reference their parents with ON DELETE RESTRICT so a
// parent row cannot disappear underneath its children; category links go away
// with their question.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id          UUID PRIMARY KEY,
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	username    TEXT NOT NULL,
	password    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT users_username_key UNIQUE (username)
);

CREATE TABLE IF NOT EXISTS questions (
	id          UUID PRIMARY KEY,
	user_id     UUID NOT NULL REFERENCES users (id) ON DELETE RESTRICT,
	text        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS answers (
	id           UUID PRIMARY KEY,
	question_id  UUID NOT NULL REFERENCES questions (id) ON DELETE RESTRICT,
	user_id      UUID NOT NULL REFERENCES users (id) ON DELETE RESTRICT,
	text         TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS answers_question_id_idx ON answers (question_id);

CREATE TABLE IF NOT EXISTS categories (
	id     UUID PRIMARY KEY,
	label  TEXT NOT NULL,
	CONSTRAINT categories_label_key UNIQUE (label)
);

CREATE TABLE IF NOT EXISTS question_categories (
	question_id  UUID NOT NULL REFERENCES questions (id) ON DELETE CASCADE,
	category_id  UUID NOT NULL REFERENCES categories (id) ON DELETE CASCADE,
	PRIMARY KEY (question_id, category_id)
);

CREATE TABLE IF NOT EXISTS files (
	id              UUID PRIMARY KEY,
	file_name       TEXT NOT NULL,
	object_key      TEXT NOT NULL,
	question_id     UUID REFERENCES questions (id) ON DELETE RESTRICT,
	answer_id       UUID REFERENCES answers (id) ON DELETE RESTRICT,
	created_at      TIMESTAMPTZ NOT NULL,
	last_modified   TIMESTAMPTZ NOT NULL,
	content_length  BIGINT NOT NULL DEFAULT 0,
	etag            TEXT NOT NULL DEFAULT '',
	content_type    TEXT NOT NULL DEFAULT '',
	CONSTRAINT files_object_key_key UNIQUE (object_key),
	CONSTRAINT files_one_parent CHECK ((question_id IS NULL) <> (answer_id IS NULL))
);
CREATE INDEX IF NOT EXISTS files_question_id_idx ON files (question_id);
CREATE INDEX IF NOT EXISTS files_answer_id_idx ON files (answer_id);
`

// Migrate applies Schema
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
