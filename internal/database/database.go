package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/touchheat/touchheat/internal/models"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

type Database struct {
	db *sql.DB
}

func NewDatabase(databasePath string) (*Database, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS projects(
	  id              TEXT PRIMARY KEY,
	  name            TEXT    NOT NULL,
	  api_key         TEXT    NOT NULL UNIQUE,
	  allowed_domains TEXT,
	  created_at      INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS touch_events(
	  id         INTEGER PRIMARY KEY,
	  project_id TEXT    NOT NULL REFERENCES projects(id),
	  x          INTEGER NOT NULL CHECK (x >= 0),
	  y          INTEGER NOT NULL CHECK (y >= 0),
	  viewport_w INTEGER NOT NULL CHECK (viewport_w > 0),
	  viewport_h INTEGER NOT NULL CHECK (viewport_h > 0),
	  thumb_zone TEXT    NOT NULL CHECK (thumb_zone IN ('left','right','center','unknown')),
	  mis_tap    INTEGER NOT NULL,
	  pressure   REAL,
	  selector   TEXT,
	  url        TEXT    NOT NULL,
	  ts_utc     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_touch_events_project     ON touch_events(project_id);
	CREATE INDEX IF NOT EXISTS idx_touch_events_project_url ON touch_events(project_id, url);
	CREATE INDEX IF NOT EXISTS idx_touch_events_ts          ON touch_events(ts_utc);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// CreateProject registers a new project with a fresh UUID and a
// th_-prefixed API key.
func (d *Database) CreateProject(name string, allowedDomains []string) (*models.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("project name cannot be empty")
	}
	key, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	project := &models.Project{
		ID:             uuid.NewString(),
		Name:           name,
		APIKey:         key,
		AllowedDomains: allowedDomains,
		CreatedAt:      time.Now().UTC(),
	}

	var domainsJSON any
	if len(allowedDomains) > 0 {
		data, err := json.Marshal(allowedDomains)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal allowed domains: %w", err)
		}
		domainsJSON = string(data)
	}
	_, err = d.db.Exec(
		`INSERT INTO projects(id, name, api_key, allowed_domains, created_at) VALUES(?,?,?,?,?)`,
		project.ID, project.Name, project.APIKey, domainsJSON, project.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}
	return project, nil
}

func generateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return "th_" + base64.RawURLEncoding.EncodeToString(raw)[:43], nil
}

// LookupProject returns the project or sql.ErrNoRows when unknown.
func (d *Database) LookupProject(projectID string) (*models.Project, error) {
	row := d.db.QueryRow(
		`SELECT id, name, api_key, allowed_domains, created_at FROM projects WHERE id = ?`,
		projectID,
	)
	return scanProject(row)
}

func (d *Database) ListProjects() ([]models.Project, error) {
	rows, err := d.db.Query(
		`SELECT id, name, api_key, allowed_domains, created_at FROM projects ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateAllowedDomains replaces a project's domain allowlist. A nil or
// empty list clears the restriction.
func (d *Database) UpdateAllowedDomains(projectID string, domains []string) error {
	var domainsJSON any
	if len(domains) > 0 {
		data, err := json.Marshal(domains)
		if err != nil {
			return fmt.Errorf("failed to marshal allowed domains: %w", err)
		}
		domainsJSON = string(data)
	}
	result, err := d.db.Exec(`UPDATE projects SET allowed_domains = ? WHERE id = ?`, domainsJSON, projectID)
	if err != nil {
		return fmt.Errorf("failed to update allowed domains: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	var domainsJSON sql.NullString
	var createdAt int64
	if err := row.Scan(&p.ID, &p.Name, &p.APIKey, &domainsJSON, &createdAt); err != nil {
		return nil, err
	}
	if domainsJSON.Valid {
		if err := json.Unmarshal([]byte(domainsJSON.String), &p.AllowedDomains); err != nil {
			return nil, fmt.Errorf("failed to unmarshal allowed domains: %w", err)
		}
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &p, nil
}

// InsertEvents persists a batch atomically, stamping each event with the
// server-side capture time. Any invalid event rolls back the whole batch.
func (d *Database) InsertEvents(projectID string, events []models.TouchEvent) error {
	transaction, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	statement, err := transaction.Prepare(
		`INSERT INTO touch_events(project_id, x, y, viewport_w, viewport_h, thumb_zone, mis_tap, pressure, selector, url, ts_utc)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	now := time.Now().UTC().UnixMilli()
	for _, event := range events {
		if violations := event.Validate("event"); len(violations) > 0 {
			_ = transaction.Rollback()
			return fmt.Errorf("invalid event: %s", violations[0])
		}
		if _, err := statement.Exec(
			projectID, event.X, event.Y, event.ViewportW, event.ViewportH,
			string(event.ThumbZone), event.MisTap, event.Pressure, event.Selector,
			event.URL, now,
		); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FetchEvents returns all events for a project, optionally restricted to
// one page URL, ordered by capture time.
func (d *Database) FetchEvents(projectID, urlFilter string) ([]models.TouchEvent, error) {
	query := `SELECT x, y, viewport_w, viewport_h, thumb_zone, mis_tap, pressure, selector, url, ts_utc
	          FROM touch_events WHERE project_id = ?`
	args := []any{projectID}
	if urlFilter != "" {
		query += ` AND url = ?`
		args = append(args, urlFilter)
	}
	query += ` ORDER BY ts_utc, id`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.TouchEvent
	for rows.Next() {
		var e models.TouchEvent
		var zone string
		if err := rows.Scan(&e.X, &e.Y, &e.ViewportW, &e.ViewportH, &zone,
			&e.MisTap, &e.Pressure, &e.Selector, &e.URL, &e.TSUTC); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.ThumbZone = models.ThumbZone(zone)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ProjectStatus summarizes snippet installation health for a project.
type ProjectStatus struct {
	Status                string   `json:"status"` // active | inactive | no_data
	LastEventTime         *string  `json:"lastEventTime"`
	MinutesSinceLastEvent *int     `json:"minutesSinceLastEvent"`
	TotalEvents           int      `json:"totalEvents"`
	RecentEventsCount     int      `json:"recentEventsCount"`
	UniqueURLs            []string `json:"uniqueUrls"`
	IsInstalled           bool     `json:"isInstalled"`
}

// Status derives the installation status document for a project as of now:
// active within 5 minutes of the last event, inactive otherwise, no_data
// when nothing has ever been ingested.
func (d *Database) Status(projectID string, now time.Time) (*ProjectStatus, error) {
	status := &ProjectStatus{Status: "no_data", UniqueURLs: []string{}}

	if err := d.db.QueryRow(
		`SELECT COUNT(*) FROM touch_events WHERE project_id = ?`, projectID,
	).Scan(&status.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	status.IsInstalled = status.TotalEvents > 0

	var lastTS sql.NullInt64
	if err := d.db.QueryRow(
		`SELECT MAX(ts_utc) FROM touch_events WHERE project_id = ?`, projectID,
	).Scan(&lastTS); err != nil {
		return nil, fmt.Errorf("failed to query last event: %w", err)
	}
	if lastTS.Valid {
		last := time.UnixMilli(lastTS.Int64).UTC()
		iso := last.Format(time.RFC3339)
		minutes := int(now.Sub(last).Minutes())
		status.LastEventTime = &iso
		status.MinutesSinceLastEvent = &minutes
		if minutes <= 5 {
			status.Status = "active"
		} else {
			status.Status = "inactive"
		}
	}

	cutoff := now.Add(-24 * time.Hour).UnixMilli()
	rows, err := d.db.Query(
		`SELECT url FROM touch_events WHERE project_id = ? AND ts_utc >= ? ORDER BY ts_utc DESC LIMIT 100`,
		projectID, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan recent event: %w", err)
		}
		status.RecentEventsCount++
		normalized := raw
		if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
			normalized = u.Scheme + "://" + u.Host + u.Path
		}
		if !seen[normalized] && len(status.UniqueURLs) < 10 {
			seen[normalized] = true
			status.UniqueURLs = append(status.UniqueURLs, normalized)
		}
	}
	return status, rows.Err()
}
