package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/store"
)

// SQLiteGardenStore keeps one table per category plus a public view over
// each that hides flagged records.
type SQLiteGardenStore struct {
	conn *sql.DB
	mu   sync.RWMutex
}

func NewSQLiteGardenStore(dbPath string) (*SQLiteGardenStore, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	s := &SQLiteGardenStore{conn: conn}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteGardenStore) Close() error {
	return s.conn.Close()
}

const categorySchema = `
	CREATE TABLE IF NOT EXISTS %[1]s (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL UNIQUE,
		image_url TEXT NOT NULL,
		confidence REAL NOT NULL,
		submitter_identity TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		manual_moderation INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_submitter ON %[1]s(submitter_identity);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_created ON %[1]s(created_at);

	CREATE VIEW IF NOT EXISTS %[2]s AS
		SELECT * FROM %[1]s
		WHERE manual_moderation IS NULL OR manual_moderation = 0;
`

func (s *SQLiteGardenStore) migrate() error {
	var schema strings.Builder
	for _, category := range models.Categories {
		fmt.Fprintf(&schema, categorySchema, category, category.PublicView())
	}

	schema.WriteString(`
	CREATE TABLE IF NOT EXISTS orphans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		filename TEXT NOT NULL,
		url TEXT NOT NULL,
		submitter_identity TEXT NOT NULL,
		reported_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stats (
		category TEXT PRIMARY KEY,
		accepted INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS moderators (
		provider TEXT NOT NULL,
		provider_id TEXT NOT NULL,
		id TEXT NOT NULL,
		username TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (provider, provider_id)
	);
	`)

	_, err := s.conn.Exec(schema.String())
	return err
}

// relation maps a category and view to a table or view name. Names never
// come from request input.
func relation(view models.View, category models.Category) (string, error) {
	if _, ok := models.ParseCategory(string(category)); !ok {
		return "", fmt.Errorf("unknown category %q", category)
	}
	if view == models.ViewPublic {
		return category.PublicView(), nil
	}
	return string(category), nil
}

const submissionColumns = "id, filename, image_url, confidence, submitter_identity, created_at, manual_moderation"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner, category models.Category) (models.Submission, error) {
	var (
		sub       models.Submission
		createdMs int64
		moderated sql.NullBool
	)
	if err := row.Scan(&sub.Id, &sub.Filename, &sub.ImageURL, &sub.Confidence, &sub.Submitter, &createdMs, &moderated); err != nil {
		return models.Submission{}, err
	}
	sub.Category = category
	sub.Created = time.UnixMilli(createdMs).UTC()
	if moderated.Valid {
		v := moderated.Bool
		sub.ManualModeration = &v
	}
	return sub, nil
}

func (s *SQLiteGardenStore) InsertSubmission(ctx context.Context, sub models.Submission) (models.Submission, error) {
	table, err := relation(models.ViewAll, sub.Category)
	if err != nil {
		return models.Submission{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Submission{}, err
	}
	sub.Id = id.String()
	sub.Created = time.Now().UTC().Truncate(time.Millisecond)

	var moderated any
	if sub.ManualModeration != nil {
		moderated = *sub.ManualModeration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO `+table+` (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sub.Id, sub.Filename, sub.ImageURL, sub.Confidence, sub.Submitter, sub.Created.UnixMilli(), moderated)
	if err != nil {
		return models.Submission{}, fmt.Errorf("failed to insert submission: %w", err)
	}

	return sub, nil
}

func (s *SQLiteGardenStore) GetSubmission(ctx context.Context, category models.Category, id string) (models.Submission, error) {
	table, err := relation(models.ViewAll, category)
	if err != nil {
		return models.Submission{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.conn.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM `+table+` WHERE id = ?`, id)
	sub, err := scanSubmission(row, category)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Submission{}, store.ErrItemNotFound
	}
	if err != nil {
		return models.Submission{}, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

func (s *SQLiteGardenStore) ListSubmissions(ctx context.Context, view models.View, category models.Category, page int) ([]models.Submission, error) {
	rel, err := relation(view, category)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+submissionColumns+` FROM `+rel+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, models.PageSize, store.Offset(page))
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	subs := []models.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows, category)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteGardenStore) CountSubmissions(ctx context.Context, view models.View, category models.Category) (int, error) {
	rel, err := relation(view, category)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+rel).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return count, nil
}

func (s *SQLiteGardenStore) CountSubmitterSubmissions(ctx context.Context, submitter string, category models.Category) (int, error) {
	table, err := relation(models.ViewAll, category)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err = s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE submitter_identity = ?`, submitter).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count submitter submissions: %w", err)
	}
	return count, nil
}

func (s *SQLiteGardenStore) SetManualModeration(ctx context.Context, category models.Category, id string) (models.Submission, error) {
	table, err := relation(models.ViewAll, category)
	if err != nil {
		return models.Submission{}, err
	}

	s.mu.Lock()
	result, err := s.conn.ExecContext(ctx, `UPDATE `+table+` SET manual_moderation = 1 WHERE id = ?`, id)
	s.mu.Unlock()
	if err != nil {
		return models.Submission{}, fmt.Errorf("failed to flag submission: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return models.Submission{}, err
	}
	if n == 0 {
		return models.Submission{}, store.ErrItemNotFound
	}

	return s.GetSubmission(ctx, category, id)
}

func (s *SQLiteGardenStore) RecordOrphans(ctx context.Context, orphans []models.Orphan) ([]models.Orphan, error) {
	if len(orphans) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return orphans, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO orphans (category, filename, url, submitter_identity, reported_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return orphans, fmt.Errorf("failed to prepare orphan statement: %w", err)
	}
	defer stmt.Close()

	for _, o := range orphans {
		if _, err := stmt.ExecContext(ctx, string(o.Category), o.Filename, o.URL, o.Submitter, o.Reported.UnixMilli()); err != nil {
			return orphans, fmt.Errorf("failed to insert orphan: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return orphans, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil, nil
}

func (s *SQLiteGardenStore) ListOrphans(ctx context.Context) ([]models.Orphan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT category, filename, url, submitter_identity, reported_at
		FROM orphans ORDER BY reported_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphans: %w", err)
	}
	defer rows.Close()

	orphans := []models.Orphan{}
	for rows.Next() {
		var (
			o          models.Orphan
			category   string
			reportedMs int64
		)
		if err := rows.Scan(&category, &o.Filename, &o.URL, &o.Submitter, &reportedMs); err != nil {
			return nil, fmt.Errorf("failed to scan orphan: %w", err)
		}
		o.Category = models.Category(category)
		o.Reported = time.UnixMilli(reportedMs).UTC()
		orphans = append(orphans, o)
	}
	return orphans, rows.Err()
}

func (s *SQLiteGardenStore) IncrementStats(ctx context.Context, category models.Category, accepted int, rejected int) error {
	if accepted == 0 && rejected == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO stats (category, accepted, rejected) VALUES (?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			accepted = accepted + excluded.accepted,
			rejected = rejected + excluded.rejected
	`, string(category), accepted, rejected)
	if err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}
	return nil
}

func (s *SQLiteGardenStore) GetStats(ctx context.Context) ([]models.CategoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `SELECT category, accepted, rejected FROM stats`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	byCategory := map[models.Category]models.CategoryStats{}
	for rows.Next() {
		var (
			st       models.CategoryStats
			category string
		)
		if err := rows.Scan(&category, &st.Accepted, &st.Rejected); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		st.Category = models.Category(category)
		byCategory[st.Category] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := make([]models.CategoryStats, 0, len(models.Categories))
	for _, category := range models.Categories {
		st := byCategory[category]
		st.Category = category
		stats = append(stats, st)
	}
	return stats, nil
}

func (s *SQLiteGardenStore) EnsureModerator(ctx context.Context, moderator models.Moderator) (models.Moderator, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return models.Moderator{}, err
	}

	s.mu.Lock()
	_, err = s.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO moderators (provider, provider_id, id, username, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, moderator.Provider, moderator.ProviderId, id.String(), moderator.Username, time.Now().Unix())
	s.mu.Unlock()
	if err != nil {
		return models.Moderator{}, fmt.Errorf("failed to insert moderator: %w", err)
	}

	return s.GetModerator(ctx, moderator.Provider, moderator.ProviderId)
}

func (s *SQLiteGardenStore) GetModerator(ctx context.Context, provider string, providerId string) (models.Moderator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m models.Moderator
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, username, provider, provider_id FROM moderators
		WHERE provider = ? AND provider_id = ?
	`, provider, providerId).Scan(&m.Id, &m.Username, &m.Provider, &m.ProviderId)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Moderator{}, store.ErrItemNotFound
	}
	if err != nil {
		return models.Moderator{}, fmt.Errorf("failed to get moderator: %w", err)
	}
	return m, nil
}
