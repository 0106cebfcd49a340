package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/profile"
	_ "github.com/mattn/go-sqlite3"
)

// Repository is the SQLite-backed Store.
type Repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	mu     sync.Mutex
}

var _ Store = (*Repository)(nil)

func Open(cfg Config, log logger.Logger) (*Repository, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	// The CLI edits overrides while the daemon holds the database open
	dsn := cfg.DBPath + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("State store initialized")

	return &Repository{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (r *Repository) SavedProfile() (profile.Profile, bool, error) {
	code, ok, err := r.getInt(KeySavedProfile)
	if err != nil || !ok {
		return profile.Default, false, err
	}

	return profile.FromCode(code), true, nil
}

func (r *Repository) SetSavedProfile(p profile.Profile) error {
	if !p.IsValid() {
		return errors.New().WithData(ErrInvalidProfile, p.String())
	}

	return r.putSetting(KeySavedProfile, strconv.Itoa(p.Code()))
}

func (r *Repository) PreviousProfile() (profile.Profile, error) {
	code, ok, err := r.getInt(KeyPreviousProfile)
	if err != nil || !ok {
		return profile.Default, err
	}

	return profile.FromCode(code), nil
}

func (r *Repository) SetPreviousProfile(p profile.Profile) error {
	if p == profile.BatterySaver {
		return errors.New().WithData(ErrInvalidProfile, p.String())
	}

	return r.putSetting(KeyPreviousProfile, strconv.Itoa(p.Code()))
}

func (r *Repository) GlobalFeature() (bool, error) {
	value, ok, err := r.getInt(KeyFeatureGlobal)
	if err != nil || !ok {
		return false, err
	}

	return value != 0, nil
}

func (r *Repository) SetGlobalFeature(enabled bool) error {
	return r.putSetting(KeyFeatureGlobal, strconv.Itoa(boolToInt(enabled)))
}

func (r *Repository) AppOverrides() (map[string]struct{}, error) {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(listOverridesSQL)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	apps := make(map[string]struct{})
	for rows.Next() {
		var app string
		if err := rows.Scan(&app); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		apps[app] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return apps, nil
}

func (r *Repository) SetAppOverride(app string, enabled bool) error {
	errFactory := errors.New()

	app = strings.TrimSpace(app)
	if app == "" {
		return errFactory.New(ErrInvalidApp)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	query := deleteOverrideSQL
	if enabled {
		query = insertOverrideSQL
	}

	if _, err := r.db.Exec(query, app); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *Repository) BootTime() (uint64, bool, error) {
	value, ok, err := r.getSetting(KeyBootTime)
	if err != nil || !ok {
		return 0, false, err
	}

	bootTime, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, errors.New().Wrap(ErrCorruptValue, err)
	}

	return bootTime, true, nil
}

func (r *Repository) SetBootTime(bootTime uint64) error {
	return r.putSetting(KeyBootTime, strconv.FormatUint(bootTime, 10))
}

func (r *Repository) RecordTransition(ctx context.Context, t Transition) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	_, err := r.db.ExecContext(ctx, insertTransitionSQL,
		t.Timestamp.Unix(),
		int64(t.From.Code()),
		int64(t.To.Code()),
		string(t.Trigger),
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *Repository) Transitions(ctx context.Context, limit int) ([]Transition, error) {
	errFactory := errors.New()

	if limit <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "limit must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, listTransitionsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		var (
			timestamp, from, to int64
			trigger             string
		)
		if err := rows.Scan(&timestamp, &from, &to, &trigger); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		transitions = append(transitions, Transition{
			Timestamp: time.Unix(timestamp, 0),
			From:      profile.FromCode(int(from)),
			To:        profile.FromCode(int(to)),
			Trigger:   Trigger(trigger),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return transitions, nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Debug().Msg("State store closed")

	return nil
}

func (r *Repository) getSetting(key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var value string
	err := r.db.QueryRow(getSettingSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.New().Wrap(ErrStorageAccess, err)
	}

	return value, true, nil
}

func (r *Repository) getInt(key string) (int, bool, error) {
	value, ok, err := r.getSetting(key)
	if err != nil || !ok {
		return 0, false, err
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, errors.New().WithData(ErrCorruptValue, struct {
			Key   string
			Value string
		}{Key: key, Value: value})
	}

	return n, true, nil
}

func (r *Repository) putSetting(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec(putSettingSQL, key, value); err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}
