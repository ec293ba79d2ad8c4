package server

// Schemas are applied on startup so a fresh database is usable without a
// separate migration step.

const bankSchema = `
CREATE TABLE IF NOT EXISTS questions (
	question_id    UUID PRIMARY KEY,
	type           TEXT NOT NULL,
	question       TEXT NOT NULL,
	options        TEXT[] NOT NULL,
	correct_option TEXT NOT NULL,
	topic          TEXT NOT NULL,
	difficulty     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS questions_type_difficulty_idx
	ON questions (type, difficulty);
`

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id UUID PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	type       TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS session_questions (
	session_id  UUID NOT NULL REFERENCES sessions (session_id),
	question_id UUID NOT NULL,
	position    INT NOT NULL,
	user_answer TEXT,
	is_correct  BOOLEAN,
	PRIMARY KEY (session_id, question_id)
);

CREATE TABLE IF NOT EXISTS results (
	result_id     UUID PRIMARY KEY,
	session_id    UUID NOT NULL UNIQUE,
	owner_id      TEXT NOT NULL,
	test_type     TEXT NOT NULL,
	correct       INT NOT NULL,
	total         INT NOT NULL,
	accuracy      DOUBLE PRECISION NOT NULL,
	time_taken_ms BIGINT NOT NULL,
	weak_topics   TEXT[] NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS results_owner_created_idx
	ON results (owner_id, created_at DESC);
`
