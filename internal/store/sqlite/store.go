// Package sqlite implements the engine's persistence ports (internal/store)
// on top of a single local SQLite database file with single-writer
// semantics.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/reviewguard/engine/internal/domain"
	"github.com/reviewguard/engine/internal/store"
)

// Store implements store.Store using SQLite. A single *sql.DB with
// SetMaxOpenConns(1) gives single-writer, effectively-serialized semantics
// without needing explicit BEGIN IMMEDIATE transactions for every call.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates) the database at path. Use ":memory:" for an
// in-memory database in tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- Revision markers ---

func (s *Store) GetMarker(ctx context.Context, repoID, branch string, kind domain.MarkerKind) (domain.RevisionMarker, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT last_seen_id, last_seen_at FROM revision_markers
		WHERE repo_id = ? AND branch = ? AND kind = ?`, repoID, branch, string(kind))

	var lastSeenID string
	var lastSeenAt int64
	if err := row.Scan(&lastSeenID, &lastSeenAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.RevisionMarker{}, store.ErrNotFound
		}
		return domain.RevisionMarker{}, fmt.Errorf("get revision marker: %w", err)
	}
	return domain.RevisionMarker{
		RepoID:     repoID,
		Branch:     branch,
		Kind:       kind,
		LastSeenID: lastSeenID,
		LastSeenAt: time.Unix(lastSeenAt, 0).UTC(),
	}, nil
}

func (s *Store) CompareAndAdvance(ctx context.Context, repoID, branch string, kind domain.MarkerKind, expectedPrev, newID string, newAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	row := tx.QueryRowContext(ctx, `SELECT last_seen_id FROM revision_markers WHERE repo_id = ? AND branch = ? AND kind = ?`, repoID, branch, string(kind))
	switch err := row.Scan(&current); err {
	case nil:
		if current != expectedPrev {
			return store.ErrConflict
		}
	case sql.ErrNoRows:
		if expectedPrev != "" {
			return store.ErrConflict
		}
	default:
		return fmt.Errorf("read revision marker: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revision_markers(repo_id, branch, kind, last_seen_id, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, branch, kind) DO UPDATE SET last_seen_id = excluded.last_seen_id, last_seen_at = excluded.last_seen_at
	`, repoID, branch, string(kind), newID, newAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("advance revision marker: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Reset(ctx context.Context, repoID, branch string, kind domain.MarkerKind) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM revision_markers WHERE repo_id = ? AND branch = ? AND kind = ?`, repoID, branch, string(kind))
	if err != nil {
		return fmt.Errorf("reset revision marker: %w", err)
	}
	return nil
}

// --- Tasks ---

func (s *Store) Create(ctx context.Context, task domain.Task) (string, error) {
	batchResultsJSON, err := json.Marshal(orEmptyResults(task.BatchResults))
	if err != nil {
		return "", fmt.Errorf("marshal batch_results: %w", err)
	}
	filesJSON, err := json.Marshal(orEmptyStrings(task.FilesReviewed))
	if err != nil {
		return "", fmt.Errorf("marshal files_reviewed: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			task_id, repo_id, strategy, revision_ref, base_ref, branch,
			author_name, author_email, created_at, started_at, finished_at,
			status, batch_total, batch_current, batch_results,
			issues_count, critical_count, warning_count, suggestion_count,
			quality_score, files_reviewed, verdict, risk_level, report,
			error_kind, error_msg, processing_time_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?, 0, 0, 0, 0, 0, ?, '', '', '', '', '', 0)`,
		task.ID, task.RepoID, string(task.Strategy), task.RevisionRef, task.BaseRef, task.Branch,
		task.AuthorName, task.AuthorEmail, task.CreatedAt.UTC().Unix(),
		string(domain.TaskPending), task.BatchTotal, task.BatchCurrent, string(batchResultsJSON),
		string(filesJSON),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return "", store.ErrConflict
		}
		return "", fmt.Errorf("create task: %w", err)
	}
	return task.ID, nil
}

func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if ok := asSqliteErr(err, &sqliteErr); ok {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func asSqliteErr(err error, target *sqlite3.Error) bool {
	e, ok := err.(sqlite3.Error)
	if ok {
		*target = e
	}
	return ok
}

func (s *Store) MarkProcessing(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, started_at = ?
		WHERE task_id = ? AND status = ?`,
		string(domain.TaskProcessing), time.Now().UTC().Unix(), taskID, string(domain.TaskPending))
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark processing rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark processing: task %s not found or not pending", taskID)
	}
	return nil
}

func (s *Store) SetBatchTotal(ctx context.Context, taskID string, batchTotal int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET batch_total = ? WHERE task_id = ?`, batchTotal, taskID)
	if err != nil {
		return fmt.Errorf("set batch total: %w", err)
	}
	return nil
}

func (s *Store) UpdateProgress(ctx context.Context, taskID string, result domain.BatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT batch_results FROM tasks WHERE task_id = ?`, taskID).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		return fmt.Errorf("read batch_results: %w", err)
	}

	var results []domain.BatchResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return fmt.Errorf("unmarshal batch_results: %w", err)
	}
	results = append(results, result)

	updated, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal batch_results: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET batch_results = ?, batch_current = ? WHERE task_id = ?`,
		string(updated), len(results), taskID); err != nil {
		return fmt.Errorf("update batch progress: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Finalize(ctx context.Context, taskID string, status domain.TaskStatus, issues []domain.Issue, task domain.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var currentStatus string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE task_id = ?`, taskID).Scan(&currentStatus); err != nil {
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		return fmt.Errorf("read task status: %w", err)
	}
	if isTerminal(domain.TaskStatus(currentStatus)) {
		return fmt.Errorf("finalize: task %s is already terminal (%s)", taskID, currentStatus)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear issues: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO issues (task_id, seq, severity, title, description, file_path, line_number, code_snippet, suggestion, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare issue insert: %w", err)
	}
	defer stmt.Close()
	for i, iss := range issues {
		if _, err := stmt.ExecContext(ctx, taskID, i, string(iss.Severity), iss.Title, iss.Description,
			iss.FilePath, iss.LineNumber, iss.CodeSnippet, iss.Suggestion, iss.Category); err != nil {
			return fmt.Errorf("insert issue %d: %w", i, err)
		}
	}

	filesJSON, err := json.Marshal(orEmptyStrings(task.FilesReviewed))
	if err != nil {
		return fmt.Errorf("marshal files_reviewed: %w", err)
	}
	batchResultsJSON, err := json.Marshal(orEmptyResults(task.BatchResults))
	if err != nil {
		return fmt.Errorf("marshal batch_results: %w", err)
	}

	finishedAt := task.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET
			status = ?, finished_at = ?, batch_current = ?, batch_results = ?,
			issues_count = ?, critical_count = ?, warning_count = ?, suggestion_count = ?,
			quality_score = ?, files_reviewed = ?, verdict = ?, risk_level = ?, report = ?,
			error_kind = ?, error_msg = ?, processing_time_seconds = ?
		WHERE task_id = ?`,
		string(status), finishedAt.Unix(), task.BatchCurrent, string(batchResultsJSON),
		len(issues), task.CriticalCount, task.WarningCount, task.SuggestionCount,
		task.QualityScore, string(filesJSON), task.Verdict, string(task.RiskLevel), task.Report,
		string(task.ErrorKind), task.ErrorMsg, task.ProcessingTimeSeconds,
		taskID,
	); err != nil {
		return fmt.Errorf("finalize task: %w", err)
	}

	return tx.Commit()
}

func orEmptyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyResults(r []domain.BatchResult) []domain.BatchResult {
	if r == nil {
		return []domain.BatchResult{}
	}
	return r
}

func isTerminal(status domain.TaskStatus) bool {
	switch status {
	case domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled:
		return true
	default:
		return false
	}
}

func (s *Store) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	task, _, err := s.scanTask(ctx, taskID, false)
	return task, err
}

func (s *Store) GetFull(ctx context.Context, taskID string) (domain.Task, []domain.Issue, error) {
	return s.scanTask(ctx, taskID, true)
}

func (s *Store) scanTask(ctx context.Context, taskID string, withIssues bool) (domain.Task, []domain.Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, repo_id, strategy, revision_ref, base_ref, branch, author_name, author_email,
			created_at, started_at, finished_at, status, batch_total, batch_current, batch_results,
			issues_count, critical_count, warning_count, suggestion_count, quality_score, files_reviewed,
			verdict, risk_level, report, error_kind, error_msg, processing_time_seconds
		FROM tasks WHERE task_id = ?`, taskID)

	task, err := scanTaskRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Task{}, nil, store.ErrNotFound
		}
		return domain.Task{}, nil, fmt.Errorf("get task: %w", err)
	}

	if !withIssues {
		return task, nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, title, description, file_path, line_number, code_snippet, suggestion, category
		FROM issues WHERE task_id = ? ORDER BY seq ASC`, taskID)
	if err != nil {
		return task, nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []domain.Issue
	for rows.Next() {
		var iss domain.Issue
		var severity string
		if err := rows.Scan(&severity, &iss.Title, &iss.Description, &iss.FilePath, &iss.LineNumber, &iss.CodeSnippet, &iss.Suggestion, &iss.Category); err != nil {
			return task, nil, fmt.Errorf("scan issue: %w", err)
		}
		iss.TaskID = taskID
		iss.Severity = domain.Severity(severity)
		issues = append(issues, iss)
	}
	if err := rows.Err(); err != nil {
		return task, nil, fmt.Errorf("iterate issues: %w", err)
	}
	return task, issues, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTaskRow(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var strategy, status, riskLevel, errorKind string
	var createdAt, startedAt, finishedAt int64
	var batchResultsJSON, filesJSON string

	err := row.Scan(&t.ID, &t.RepoID, &strategy, &t.RevisionRef, &t.BaseRef, &t.Branch, &t.AuthorName, &t.AuthorEmail,
		&createdAt, &startedAt, &finishedAt, &status, &t.BatchTotal, &t.BatchCurrent, &batchResultsJSON,
		&t.IssuesCount, &t.CriticalCount, &t.WarningCount, &t.SuggestionCount, &t.QualityScore, &filesJSON,
		&t.Verdict, &riskLevel, &t.Report, &errorKind, &t.ErrorMsg, &t.ProcessingTimeSeconds)
	if err != nil {
		return domain.Task{}, err
	}

	t.Strategy = domain.Strategy(strategy)
	t.Status = domain.TaskStatus(status)
	t.RiskLevel = domain.RiskLevel(riskLevel)
	t.ErrorKind = domain.ErrorKind(errorKind)
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	if startedAt > 0 {
		t.StartedAt = time.Unix(startedAt, 0).UTC()
	}
	if finishedAt > 0 {
		t.FinishedAt = time.Unix(finishedAt, 0).UTC()
	}
	if err := json.Unmarshal([]byte(batchResultsJSON), &t.BatchResults); err != nil {
		return domain.Task{}, fmt.Errorf("unmarshal batch_results: %w", err)
	}
	if err := json.Unmarshal([]byte(filesJSON), &t.FilesReviewed); err != nil {
		return domain.Task{}, fmt.Errorf("unmarshal files_reviewed: %w", err)
	}
	return t, nil
}

func (s *Store) Query(ctx context.Context, filters store.TaskFilters, sortOrder store.TaskSort, limit, offset int) ([]domain.Task, error) {
	query := `
		SELECT task_id, repo_id, strategy, revision_ref, base_ref, branch, author_name, author_email,
			created_at, started_at, finished_at, status, batch_total, batch_current, batch_results,
			issues_count, critical_count, warning_count, suggestion_count, quality_score, files_reviewed,
			verdict, risk_level, report, error_kind, error_msg, processing_time_seconds
		FROM tasks WHERE 1=1`
	var args []interface{}
	if filters.RepoID != "" {
		query += " AND repo_id = ?"
		args = append(args, filters.RepoID)
	}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filters.Status))
	}
	if sortOrder == store.SortCreatedAtAsc {
		query += " ORDER BY created_at ASC"
	} else {
		query += " ORDER BY created_at DESC"
	}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) Delete(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *Store) RecoverFromRestart(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, finished_at = ?, error_kind = ?, error_msg = 'aborted by restart'
		WHERE status = ?`,
		string(domain.TaskFailed), time.Now().UTC().Unix(), string(domain.ErrorInternal), string(domain.TaskProcessing))
	if err != nil {
		return 0, fmt.Errorf("recover from restart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover from restart rows affected: %w", err)
	}
	return int(n), nil
}

func (s *Store) PendingInOrder(ctx context.Context) ([]domain.Task, error) {
	return s.Query(ctx, store.TaskFilters{Status: domain.TaskPending}, store.SortCreatedAtAsc, 0, 0)
}

// --- Repo Store ---

func (s *Store) GetRepo(ctx context.Context, repoID string) (domain.Repository, error) {
	row := s.db.QueryRowContext(ctx, repoSelectColumns+` WHERE repo_id = ?`, repoID)
	repo, err := scanRepoRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Repository{}, store.ErrNotFound
		}
		return domain.Repository{}, fmt.Errorf("get repo: %w", err)
	}
	return repo, nil
}

func (s *Store) ListRepos(ctx context.Context) ([]domain.Repository, error) {
	rows, err := s.db.QueryContext(ctx, repoSelectColumns+` ORDER BY repo_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer rows.Close()

	var repos []domain.Repository
	for rows.Next() {
		r, err := scanRepoRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repo: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func (s *Store) FindRepoByCloneURL(ctx context.Context, normalizedCloneURL string) (domain.Repository, error) {
	row := s.db.QueryRowContext(ctx, repoSelectColumns+` WHERE normalized_clone_url = ?`, normalizedCloneURL)
	repo, err := scanRepoRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Repository{}, store.ErrNotFound
		}
		return domain.Repository{}, fmt.Errorf("find repo by clone url: %w", err)
	}
	return repo, nil
}

func (s *Store) UpsertRepository(ctx context.Context, repo domain.Repository) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repos (
			repo_id, name, clone_url, normalized_clone_url, branch, platform,
			auth_kind, auth_user, auth_password, auth_token,
			trigger_mode, polling_interval_minutes, effective_from, webhook_secret,
			poll_commits, poll_mrs, enable_comment, enabled, local_path,
			clone_status, last_check_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id) DO UPDATE SET
			name = excluded.name, clone_url = excluded.clone_url,
			normalized_clone_url = excluded.normalized_clone_url, branch = excluded.branch,
			platform = excluded.platform, auth_kind = excluded.auth_kind, auth_user = excluded.auth_user,
			auth_password = excluded.auth_password, auth_token = excluded.auth_token,
			trigger_mode = excluded.trigger_mode, polling_interval_minutes = excluded.polling_interval_minutes,
			effective_from = excluded.effective_from, webhook_secret = excluded.webhook_secret,
			poll_commits = excluded.poll_commits,
			poll_mrs = excluded.poll_mrs, enable_comment = excluded.enable_comment,
			enabled = excluded.enabled, local_path = excluded.local_path`,
		repo.ID, repo.Name, repo.CloneURL, repo.NormalizedCloneURL(), repo.Branch, string(repo.Platform),
		string(repo.Auth.Kind), repo.Auth.User, repo.Auth.Password, repo.Auth.Token,
		string(repo.TriggerMode), repo.PollingIntervalMinutes, repo.EffectiveFrom.UTC().Unix(), repo.WebhookSecret,
		boolToInt(repo.PollCommits), boolToInt(repo.PollMRs), boolToInt(repo.EnableComment),
		boolToInt(repo.Enabled), repo.LocalPath, string(repo.CloneStatus), repo.LastCheckTime.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert repo: %w", err)
	}
	return nil
}

func (s *Store) UpdateCloneStatus(ctx context.Context, repoID string, status domain.CloneStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE repos SET clone_status = ? WHERE repo_id = ?`, string(status), repoID)
	if err != nil {
		return fmt.Errorf("update clone status: %w", err)
	}
	return nil
}

func (s *Store) UpdateLastCheckTime(ctx context.Context, repoID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE repos SET last_check_time = ? WHERE repo_id = ?`, at.UTC().Unix(), repoID)
	if err != nil {
		return fmt.Errorf("update last check time: %w", err)
	}
	return nil
}

// --- Settings ---

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

const repoSelectColumns = `
	SELECT repo_id, name, clone_url, branch, platform, auth_kind, auth_user, auth_password, auth_token,
		trigger_mode, polling_interval_minutes, effective_from, webhook_secret, poll_commits, poll_mrs,
		enable_comment, enabled, local_path, clone_status, last_check_time
	FROM repos`

func scanRepoRow(row rowScanner) (domain.Repository, error) {
	var r domain.Repository
	var platform, authKind, triggerMode, cloneStatus string
	var effectiveFrom, lastCheckTime int64
	var pollCommits, pollMRs, enableComment, enabled int

	err := row.Scan(&r.ID, &r.Name, &r.CloneURL, &r.Branch, &platform, &authKind, &r.Auth.User, &r.Auth.Password, &r.Auth.Token,
		&triggerMode, &r.PollingIntervalMinutes, &effectiveFrom, &r.WebhookSecret, &pollCommits, &pollMRs, &enableComment,
		&enabled, &r.LocalPath, &cloneStatus, &lastCheckTime)
	if err != nil {
		return domain.Repository{}, err
	}

	r.Platform = domain.Platform(platform)
	r.Auth.Kind = domain.AuthKind(authKind)
	r.TriggerMode = domain.TriggerMode(triggerMode)
	r.CloneStatus = domain.CloneStatus(cloneStatus)
	r.EffectiveFrom = time.Unix(effectiveFrom, 0).UTC()
	r.LastCheckTime = time.Unix(lastCheckTime, 0).UTC()
	r.PollCommits = pollCommits != 0
	r.PollMRs = pollMRs != 0
	r.EnableComment = enableComment != 0
	r.Enabled = enabled != 0
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
