package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tutu-network/hotplug/internal/domain"
)

// ─── Settings ───────────────────────────────────────────────────────────────

const (
	keyTunables = "tunables"
	keyEnabled  = "enabled"
)

// SetSetting stores a key-value pair.
func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetSetting retrieves a value. A missing key returns "" and ok=false.
func (d *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SaveTunables persists the runtime settings so a restart resumes with them.
func (d *DB) SaveTunables(ctx context.Context, t domain.Tunables) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tunables: %w", err)
	}
	return d.SetSetting(ctx, keyTunables, string(data))
}

// LoadTunables returns the persisted settings, if any.
func (d *DB) LoadTunables(ctx context.Context) (domain.Tunables, bool, error) {
	value, ok, err := d.GetSetting(ctx, keyTunables)
	if err != nil || !ok {
		return domain.Tunables{}, false, err
	}
	var t domain.Tunables
	if err := json.Unmarshal([]byte(value), &t); err != nil {
		return domain.Tunables{}, false, fmt.Errorf("decode tunables: %w", err)
	}
	return t, true, nil
}

// SaveEnabled persists whether the controller was running.
func (d *DB) SaveEnabled(ctx context.Context, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	return d.SetSetting(ctx, keyEnabled, value)
}

// LoadEnabled returns the persisted enabled flag, if any.
func (d *DB) LoadEnabled(ctx context.Context) (enabled, ok bool, err error) {
	value, ok, err := d.GetSetting(ctx, keyEnabled)
	if err != nil || !ok {
		return false, false, err
	}
	return value == "true", true, nil
}
