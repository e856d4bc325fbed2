package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for items, lists, profiles,
// friends, and the enrichment job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "wishwell.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for tests and diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Items ---

const itemColumns = `id, owner_id, list_id, name, price, image, link, enrichment_status, claimed_by, claimed_at, created_at, updated_at`

func (s *Store) SaveItem(item Item) error {
	status := item.EnrichmentStatus
	if status == "" {
		status = EnrichPending
	}
	var claimedBy, claimedAt any
	if item.ClaimedBy != "" {
		claimedBy = item.ClaimedBy
		claimedAt = item.ClaimedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.OwnerID, item.ListID, item.Name, item.Price, item.Image, item.Link,
		status, claimedBy, claimedAt,
		item.CreatedAt.UTC().Format(time.RFC3339), item.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var i Item
	var claimedBy, claimedAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&i.ID, &i.OwnerID, &i.ListID, &i.Name, &i.Price, &i.Image, &i.Link,
		&i.EnrichmentStatus, &claimedBy, &claimedAt, &createdAt, &updatedAt)
	if err != nil {
		return Item{}, err
	}
	i.ClaimedBy = claimedBy.String
	if claimedAt.Valid && claimedAt.String != "" {
		t, err := time.Parse(time.RFC3339, claimedAt.String)
		if err != nil {
			return Item{}, fmt.Errorf("parsing claimed_at: %w", err)
		}
		i.ClaimedAt = t
	}
	if i.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Item{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if i.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Item{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return i, nil
}

func (s *Store) GetItem(id string) (Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return Item{}, ErrNotFound
	}
	return item, err
}

// ListItems returns an owner's items, newest first.
func (s *Store) ListItems(ownerID string) ([]Item, error) {
	rows, err := s.db.Query(`SELECT `+itemColumns+` FROM items WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemFields applies an owner edit to name/price/image/link. The owner
// guard lives in the WHERE clause so a non-owner edit is a no-op.
func (s *Store) UpdateItemFields(id, ownerID string, item Item) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE items SET name = ?, price = ?, image = ?, link = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		item.Name, item.Price, item.Image, item.Link, now, id, ownerID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteItem removes an item. Only the owner's delete takes effect.
func (s *Store) DeleteItem(id, ownerID string) error {
	res, err := s.db.Exec(`DELETE FROM items WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimItem atomically reserves an item for claimerID. The claimed_by guard
// in the WHERE clause makes the first writer win; a lost race returns
// ErrAlreadyClaimed so the caller can report who holds the claim.
func (s *Store) ClaimItem(id, claimerID string) (Item, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE items SET claimed_by = ?, claimed_at = ?, updated_at = ?
		WHERE id = ? AND claimed_by IS NULL`,
		claimerID, now, now, id,
	)
	if err != nil {
		return Item{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Item{}, err
	}
	item, getErr := s.GetItem(id)
	if n == 0 {
		if getErr != nil {
			return Item{}, getErr
		}
		return item, ErrAlreadyClaimed
	}
	return item, getErr
}

// CompleteEnrichment applies the enrichment write-back. The status guard
// ensures the placeholder is replaced at most once; a repeat delivery or a
// write-back racing an owner edit of a settled item is a no-op.
// Pass name == "" to keep the owner-supplied name.
func (s *Store) CompleteEnrichment(id, name, price, image string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var res sql.Result
	var err error
	if name == "" {
		res, err = s.db.Exec(`
			UPDATE items SET price = ?, image = ?, enrichment_status = ?, updated_at = ?
			WHERE id = ? AND enrichment_status = ?`,
			price, image, EnrichEnriched, now, id, EnrichPending,
		)
	} else {
		res, err = s.db.Exec(`
			UPDATE items SET name = ?, price = ?, image = ?, enrichment_status = ?, updated_at = ?
			WHERE id = ? AND enrichment_status = ?`,
			name, price, image, EnrichEnriched, now, id, EnrichPending,
		)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEnrichmentFailed moves a still-pending item to the failed state. The
// item keeps its placeholder fields and stays visible.
func (s *Store) MarkEnrichmentFailed(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE items SET enrichment_status = ?, updated_at = ?
		WHERE id = ? AND enrichment_status = ?`,
		EnrichFailed, now, id, EnrichPending,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Lists ---

func (s *Store) CreateList(list List) error {
	_, err := s.db.Exec(`INSERT INTO lists (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)`,
		list.ID, list.OwnerID, list.Name, list.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) GetList(id string) (List, error) {
	var l List
	var createdAt string
	err := s.db.QueryRow(`SELECT id, owner_id, name, created_at FROM lists WHERE id = ?`, id).
		Scan(&l.ID, &l.OwnerID, &l.Name, &createdAt)
	if err == sql.ErrNoRows {
		return List{}, ErrNotFound
	}
	if err != nil {
		return List{}, err
	}
	if l.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return List{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return l, nil
}

// DefaultList returns the owner's oldest list, creating one when none exists.
func (s *Store) DefaultList(ownerID string) (List, error) {
	var l List
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, owner_id, name, created_at FROM lists
		WHERE owner_id = ? ORDER BY created_at ASC LIMIT 1`, ownerID).
		Scan(&l.ID, &l.OwnerID, &l.Name, &createdAt)
	if err == nil {
		if l.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return List{}, fmt.Errorf("parsing created_at: %w", err)
		}
		return l, nil
	}
	if err != sql.ErrNoRows {
		return List{}, err
	}
	l = List{
		ID:        newID(),
		OwnerID:   ownerID,
		Name:      "My Wishlist",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateList(l); err != nil {
		return List{}, fmt.Errorf("creating default list: %w", err)
	}
	return l, nil
}

// --- Profiles ---

func (s *Store) UpsertProfile(p Profile) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO profiles (id, email, first_name, last_name, username, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			username = excluded.username`,
		p.ID, p.Email, p.FirstName, p.LastName, p.Username, createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetProfile(id string) (Profile, error) {
	var p Profile
	var createdAt string
	err := s.db.QueryRow(`SELECT id, email, first_name, last_name, username, created_at FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Username, &createdAt)
	if err == sql.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Profile{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return p, nil
}

// --- Friends ---

func (s *Store) AddFriend(userID, friendID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO friends (user_id, friend_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, friend_id) DO NOTHING`,
		userID, friendID, now,
	)
	return err
}

func (s *Store) ListFriends(userID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT friend_id FROM friends WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. Exhausted jobs move to the failed state;
// otherwise the job is rescheduled with exponential backoff.
func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetJob returns a single job by id. Used by tests and the status command.
func (s *Store) GetJob(id string) (Job, error) {
	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err := s.db.QueryRow(`
		SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts, &runAfter, &createdAt, &updatedAt, &lastError)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return Job{}, fmt.Errorf("parsing run_after: %w", err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Job{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Job{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return j, nil
}
