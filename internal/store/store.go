// Package store persists display configurations and render snapshots in
// sqlite. It holds no display logic: configs go in and come out unchanged.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/sceneview/internal/config"
	"github.com/banshee-data/sceneview/internal/monitoring"
	"github.com/banshee-data/sceneview/internal/render"
	"github.com/banshee-data/sceneview/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var logf = monitoring.Component("Store")

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("not found")

// Store wraps the sqlite handle.
type Store struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// Open opens (creating if needed) the database at path and applies all
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{DB: db, path: path, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// SetClock replaces the clock used for timestamps.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// MigrateUp runs all pending migrations up to the latest version.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared DB handle.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty state.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// ConfigRecord describes a stored display config.
type ConfigRecord struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SaveDisplayConfig stores cfg under the display name, replacing any
// previous config for that display.
func (s *Store) SaveDisplayConfig(ctx context.Context, displayName string, cfg *config.DisplayConfig) error {
	if displayName == "" {
		return fmt.Errorf("display name cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	now := s.clock.Now().UnixNano()
	_, err = s.ExecContext(ctx, `
		INSERT INTO display_configs (config_id, display_name, config_json, created_unix_nanos, updated_unix_nanos)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(display_name) DO UPDATE SET
			config_json = excluded.config_json,
			updated_unix_nanos = excluded.updated_unix_nanos`,
		uuid.NewString(), displayName, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("save config for %s: %w", displayName, err)
	}
	logf("saved config for %s", displayName)
	return nil
}

// LoadDisplayConfig returns the config stored for a display.
func (s *Store) LoadDisplayConfig(ctx context.Context, displayName string) (*config.DisplayConfig, error) {
	var data string
	err := s.QueryRowContext(ctx,
		`SELECT config_json FROM display_configs WHERE display_name = ?`, displayName,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config for %s: %w", displayName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load config for %s: %w", displayName, err)
	}
	cfg, err := config.ParseDisplayConfig([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("stored config for %s: %w", displayName, err)
	}
	return cfg, nil
}

// ListDisplayConfigs returns every stored config record, by display name.
func (s *Store) ListDisplayConfigs(ctx context.Context) ([]ConfigRecord, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT config_id, display_name, created_unix_nanos, updated_unix_nanos
		FROM display_configs ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	var out []ConfigRecord
	for rows.Next() {
		var rec ConfigRecord
		var created, updated int64
		if err := rows.Scan(&rec.ID, &rec.DisplayName, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		rec.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteDisplayConfig removes the config stored for a display.
func (s *Store) DeleteDisplayConfig(ctx context.Context, displayName string) error {
	res, err := s.ExecContext(ctx, `DELETE FROM display_configs WHERE display_name = ?`, displayName)
	if err != nil {
		return fmt.Errorf("delete config for %s: %w", displayName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("config for %s: %w", displayName, ErrNotFound)
	}
	return nil
}

// SnapshotRecord describes a stored render snapshot.
type SnapshotRecord struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	FrameSeq      uint64    `json:"frame_seq"`
	SceneName     string    `json:"scene_name"`
	ObjectCount   int       `json:"object_count"`
	AttachedCount int       `json:"attached_count"`
	LinkCount     int       `json:"link_count"`
	RenderedAt    time.Time `json:"rendered_at"`
}

// RecordSnapshot stores a rendered frame summary with an optional PNG.
func (s *Store) RecordSnapshot(ctx context.Context, displayName string, f render.Frame, png []byte) (string, error) {
	id := uuid.NewString()
	_, err := s.ExecContext(ctx, `
		INSERT INTO render_snapshots (
			snapshot_id, display_name, frame_seq, scene_name,
			object_count, attached_count, link_count, png, rendered_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, displayName, int64(f.Seq), f.Scene,
		f.Count(render.ItemObject), f.Count(render.ItemAttached), f.Count(render.ItemLink),
		png, f.RenderedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("record snapshot: %w", err)
	}
	return id, nil
}

// RecentSnapshots returns the newest snapshots for a display, newest first.
func (s *Store) RecentSnapshots(ctx context.Context, displayName string, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.QueryContext(ctx, `
		SELECT snapshot_id, display_name, frame_seq, scene_name,
			object_count, attached_count, link_count, rendered_unix_nanos
		FROM render_snapshots
		WHERE display_name = ?
		ORDER BY rendered_unix_nanos DESC, frame_seq DESC
		LIMIT ?`, displayName, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		var seq, rendered int64
		if err := rows.Scan(&rec.ID, &rec.DisplayName, &seq, &rec.SceneName,
			&rec.ObjectCount, &rec.AttachedCount, &rec.LinkCount, &rendered); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		rec.FrameSeq = uint64(seq)
		rec.RenderedAt = time.Unix(0, rendered).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SnapshotPNG returns the image stored with a snapshot.
func (s *Store) SnapshotPNG(ctx context.Context, id string) ([]byte, error) {
	var png []byte
	err := s.QueryRowContext(ctx, `SELECT png FROM render_snapshots WHERE snapshot_id = ?`, id).Scan(&png)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(png) == 0) {
		return nil, fmt.Errorf("snapshot %s image: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return png, nil
}
