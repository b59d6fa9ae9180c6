package sqlite

import (
	"database/sql"
	"fmt"
)

// schemaVersion is the current schema version this build knows how to run
// against. On mismatch the engine applies forward migrations or refuses to
// start.
const schemaVersion = 1

const createSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS repos (
	repo_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	clone_url TEXT NOT NULL,
	normalized_clone_url TEXT NOT NULL,
	branch TEXT NOT NULL,
	platform TEXT NOT NULL,
	auth_kind TEXT NOT NULL DEFAULT 'none',
	auth_user TEXT NOT NULL DEFAULT '',
	auth_password TEXT NOT NULL DEFAULT '',
	auth_token TEXT NOT NULL DEFAULT '',
	trigger_mode TEXT NOT NULL DEFAULT 'polling',
	polling_interval_minutes INTEGER NOT NULL DEFAULT 10,
	effective_from INTEGER NOT NULL DEFAULT 0,
	webhook_secret TEXT NOT NULL DEFAULT '',
	poll_commits INTEGER NOT NULL DEFAULT 1,
	poll_mrs INTEGER NOT NULL DEFAULT 0,
	enable_comment INTEGER NOT NULL DEFAULT 0,
	enabled INTEGER NOT NULL DEFAULT 1,
	local_path TEXT NOT NULL DEFAULT '',
	clone_status TEXT NOT NULL DEFAULT 'absent',
	last_check_time INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_repos_normalized_url ON repos(normalized_clone_url);

CREATE TABLE IF NOT EXISTS revision_markers (
	repo_id TEXT NOT NULL,
	branch TEXT NOT NULL,
	kind TEXT NOT NULL,
	last_seen_id TEXT NOT NULL DEFAULT '',
	last_seen_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (repo_id, branch, kind)
);

CREATE TABLE IF NOT EXISTS tasks (
	task_id TEXT PRIMARY KEY,
	repo_id TEXT NOT NULL,
	strategy TEXT NOT NULL,
	revision_ref TEXT NOT NULL,
	base_ref TEXT NOT NULL,
	branch TEXT NOT NULL,
	author_name TEXT NOT NULL DEFAULT '',
	author_email TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	started_at INTEGER NOT NULL DEFAULT 0,
	finished_at INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	batch_total INTEGER NOT NULL DEFAULT 0,
	batch_current INTEGER NOT NULL DEFAULT 0,
	batch_results TEXT NOT NULL DEFAULT '[]',
	issues_count INTEGER NOT NULL DEFAULT 0,
	critical_count INTEGER NOT NULL DEFAULT 0,
	warning_count INTEGER NOT NULL DEFAULT 0,
	suggestion_count INTEGER NOT NULL DEFAULT 0,
	quality_score INTEGER NOT NULL DEFAULT 0,
	files_reviewed TEXT NOT NULL DEFAULT '[]',
	verdict TEXT NOT NULL DEFAULT '',
	risk_level TEXT NOT NULL DEFAULT '',
	report TEXT NOT NULL DEFAULT '',
	error_kind TEXT NOT NULL DEFAULT '',
	error_msg TEXT NOT NULL DEFAULT '',
	processing_time_seconds REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_repo_status ON tasks(repo_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_nonterminal
	ON tasks(repo_id, strategy, revision_ref)
	WHERE status IN ('pending', 'processing');

CREATE TABLE IF NOT EXISTS issues (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	severity TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	file_path TEXT NOT NULL DEFAULT '',
	line_number INTEGER NOT NULL DEFAULT 0,
	code_snippet TEXT NOT NULL DEFAULT '',
	suggestion TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (task_id) REFERENCES tasks(task_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_issues_task ON issues(task_id, seq);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// migrate applies the schema and, if the database already carries an older
// schema_version, forward migrations in order. It refuses to start if the
// stored version is newer than this build knows about.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(createSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var storedVersion int
	row := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`)
	var raw string
	switch err := row.Scan(&raw); err {
	case nil:
		if _, scanErr := fmt.Sscanf(raw, "%d", &storedVersion); scanErr != nil {
			return fmt.Errorf("parse stored schema_version %q: %w", raw, scanErr)
		}
	case sql.ErrNoRows:
		storedVersion = 0
	default:
		return fmt.Errorf("read schema_version: %w", err)
	}

	if storedVersion > schemaVersion {
		return fmt.Errorf("database schema_version %d is newer than this build supports (%d)", storedVersion, schemaVersion)
	}

	for v := storedVersion; v < schemaVersion; v++ {
		if err := applyMigration(db, v+1); err != nil {
			return fmt.Errorf("migration to version %d: %w", v+1, err)
		}
	}

	_, err := db.Exec(`INSERT INTO meta(key, value) VALUES('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprintf("%d", schemaVersion))
	if err != nil {
		return fmt.Errorf("persist schema_version: %w", err)
	}
	return nil
}

// applyMigration runs the forward migration that produces schema version
// `to`. Version 1 is the baseline schema created by createSchema, so there
// is nothing to do yet; future versions append cases here.
func applyMigration(db *sql.DB, to int) error {
	switch to {
	case 1:
		return nil
	default:
		return fmt.Errorf("no migration defined for version %d", to)
	}
}
