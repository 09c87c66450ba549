// Package storage persists the launcher settings in SQLite: the custom
// server list, scan configuration, quick-match criteria and the set of
// locally available game-data files reported by the data scanner.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/openfrag/scout/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Settings keys.
const (
	keyScanConfig = "scan_config"
	keyQuickMatch = "quickmatch_criteria"
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes the SQLite connection, sets pool parameters, and runs
// migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CustomServers returns the user-entered server list in display order.
func (r *Repository) CustomServers() ([]models.CustomServerEntry, error) {
	rows, err := r.db.Query(`SELECT position, address FROM custom_servers ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []models.CustomServerEntry
	for rows.Next() {
		var e models.CustomServerEntry
		if err := rows.Scan(&e.Position, &e.Address); err != nil {
			log.Warn().Err(err).Msg("Skipping unreadable custom server row")
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// AddCustomServer validates and appends an address to the custom list.
func (r *Repository) AddCustomServer(address string) (models.CustomServerEntry, error) {
	addr, err := models.ParseAddress(address)
	if err != nil {
		return models.CustomServerEntry{}, err
	}

	var next int
	if err := r.db.QueryRow(`SELECT COALESCE(MAX(position), 0) + 1 FROM custom_servers`).Scan(&next); err != nil {
		return models.CustomServerEntry{}, err
	}

	entry := models.CustomServerEntry{Address: addr.String(), Position: next}
	if _, err := r.db.Exec(
		`INSERT INTO custom_servers (position, address) VALUES (?, ?)`,
		entry.Position, entry.Address,
	); err != nil {
		return models.CustomServerEntry{}, err
	}

	return entry, nil
}

// RemoveCustomServer deletes an address from the custom list.
func (r *Repository) RemoveCustomServer(address string) error {
	_, err := r.db.Exec(`DELETE FROM custom_servers WHERE address = ?`, address)
	return err
}

// SaveScanConfig persists the local scan configuration.
func (r *Repository) SaveScanConfig(cfg models.ScanConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return r.setJSON(keyScanConfig, cfg)
}

// LoadScanConfig returns the persisted scan configuration, or ok=false when
// none was stored yet.
func (r *Repository) LoadScanConfig() (models.ScanConfiguration, bool, error) {
	var cfg models.ScanConfiguration
	ok, err := r.getJSON(keyScanConfig, &cfg)

	return cfg, ok, err
}

// SaveQuickMatchCriteria persists quick-match criteria as an opaque blob.
// The quickmatch package owns the shape.
func (r *Repository) SaveQuickMatchCriteria(v any) error {
	return r.setJSON(keyQuickMatch, v)
}

// LoadQuickMatchCriteria loads quick-match criteria into out, ok=false when
// none was stored yet.
func (r *Repository) LoadQuickMatchCriteria(out any) (bool, error) {
	return r.getJSON(keyQuickMatch, out)
}

// SetOwnedData replaces the set of locally available game-data files. The
// external data scanner calls this after a filesystem walk.
func (r *Repository) SetOwnedData(files []models.DataFile) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM owned_data`); err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, f := range files {
		if _, err := tx.Exec(`INSERT INTO owned_data (name, hash) VALUES (?, ?)`, f.Name, f.Hash); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// OwnedData returns the available game-data identifiers as a hashed lookup
// set keyed the same way the quick-match ranker keys requirements.
func (r *Repository) OwnedData() (map[uint64]struct{}, error) {
	rows, err := r.db.Query(`SELECT name FROM owned_data`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	owned := make(map[uint64]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			log.Warn().Err(err).Msg("Skipping unreadable owned data row")
			continue
		}
		owned[xxhash.Sum64String(name)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return owned, nil
}

func (r *Repository) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal setting %s: %w", key, err)
	}

	_, err = r.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(data),
	)

	return err
}

func (r *Repository) getJSON(key string, out any) (bool, error) {
	var raw string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("unmarshal setting %s: %w", key, err)
	}

	return true, nil
}
