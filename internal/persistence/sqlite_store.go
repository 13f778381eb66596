// Package persistence stores editor projects and upload jobs in SQLite.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/caption-sync/internal/cloud"
	"github.com/MimeLyc/caption-sync/internal/jobs"
	"github.com/MimeLyc/caption-sync/internal/session"
	"github.com/MimeLyc/caption-sync/internal/subtitle"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed paths always use forward slashes
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// SaveProject inserts or replaces a project row.
func (s *SQLiteStore) SaveProject(ctx context.Context, p session.Project) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("project id is required")
	}
	captions := p.Captions
	if captions == nil {
		captions = []subtitle.Caption{}
	}
	payload, err := json.Marshal(captions)
	if err != nil {
		return fmt.Errorf("encode captions: %w", err)
	}
	updatedAt := p.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO projects (id, name, audio_name, language, captions_json, caption_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			audio_name=excluded.audio_name,
			language=excluded.language,
			captions_json=excluded.captions_json,
			caption_count=excluded.caption_count,
			updated_at=excluded.updated_at`,
		p.ID,
		p.Name,
		p.AudioName,
		p.Language,
		string(payload),
		len(captions),
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

// LoadProject returns the project with id, or ErrNotFound.
func (s *SQLiteStore) LoadProject(ctx context.Context, id string) (session.Project, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, audio_name, language, captions_json, updated_at
		 FROM projects
		 WHERE id = ?`,
		id,
	)

	var p session.Project
	var captionsJSON string
	if err := row.Scan(&p.ID, &p.Name, &p.AudioName, &p.Language, &captionsJSON, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return session.Project{}, err
	}
	if err := json.Unmarshal([]byte(captionsJSON), &p.Captions); err != nil {
		return session.Project{}, fmt.Errorf("decode captions of %s: %w", id, err)
	}
	return p, nil
}

// ListProjects returns all projects, most recently updated first.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, audio_name, language, caption_count, updated_at
		 FROM projects
		 ORDER BY updated_at DESC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]ProjectSummary, 0)
	for rows.Next() {
		var item ProjectSummary
		if err := rows.Scan(&item.ID, &item.Name, &item.AudioName, &item.Language, &item.CaptionCount, &item.UpdatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// DeleteProject removes a project. Missing ids return ErrNotFound.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.UploadJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, provider, project_id, project_name, files_json, status, attempts, error, results_json, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.UploadJob, 0)
	for rows.Next() {
		var item jobs.UploadJob
		var status, filesJSON, resultsJSON string
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&item.Payload.Provider,
			&item.Payload.ProjectID,
			&item.Payload.ProjectName,
			&filesJSON,
			&status,
			&item.Attempts,
			&item.Error,
			&resultsJSON,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		if err := json.Unmarshal([]byte(filesJSON), &item.Payload.Files); err != nil {
			return nil, fmt.Errorf("decode files of job %s: %w", item.ID, err)
		}
		var results []cloud.UploadResult
		if err := json.Unmarshal([]byte(resultsJSON), &results); err != nil {
			return nil, fmt.Errorf("decode results of job %s: %w", item.ID, err)
		}
		if len(results) > 0 {
			item.Results = results
		}
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.UploadJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	files := job.Payload.Files
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return err
	}
	results := job.Results
	if results == nil {
		results = []cloud.UploadResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, provider, project_id, project_name, files_json, status, attempts, error, results_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			provider=excluded.provider,
			project_id=excluded.project_id,
			project_name=excluded.project_name,
			files_json=excluded.files_json,
			status=excluded.status,
			attempts=excluded.attempts,
			error=excluded.error,
			results_json=excluded.results_json,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.Payload.Provider,
		job.Payload.ProjectID,
		job.Payload.ProjectName,
		string(filesJSON),
		string(job.Status),
		job.Attempts,
		job.Error,
		string(resultsJSON),
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

var _ jobs.Store = (*SQLiteStore)(nil)
