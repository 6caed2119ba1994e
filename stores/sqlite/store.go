package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"designlab/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database and its designs table.
func NewStore(dataSourceName string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	designTableStmt := `
	CREATE TABLE IF NOT EXISTS designs (
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		product TEXT,
		layers TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME,
		updated_at DATETIME,
		PRIMARY KEY (user_id, id)
	);`
	if _, err = db.Exec(designTableStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create designs table: %w", err)
	}

	return &sqliteStore{db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, tenant_id, name, product, created_at, updated_at FROM designs WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	designs := []*core.Design{}
	for rows.Next() {
		d := core.Design{UserID: userID}
		var product sql.NullString
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &product, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if d.Product, err = decodeProduct(product); err != nil {
			return nil, err
		}
		designs = append(designs, &d)
	}
	return designs, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	d := core.Design{ID: id, UserID: userID}
	var product sql.NullString
	var layers string
	err := s.db.QueryRowContext(ctx,
		"SELECT tenant_id, name, product, layers, created_at, updated_at FROM designs WHERE user_id = ? AND id = ?", userID, id).
		Scan(&d.TenantID, &d.Name, &product, &layers, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id}).Warn("Design not found")
			return nil, fmt.Errorf("design %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	if d.Product, err = decodeProduct(product); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(layers), &d.Layers); err != nil {
		return nil, fmt.Errorf("failed to decode layers of design %s: %w", id, err)
	}
	return &d, nil
}

func (s *sqliteStore) Save(ctx context.Context, design *core.Design) error {
	if design.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	if design.ID == "" {
		design.ID = ulid.Make().String()
	}

	product, layers, err := encodeColumns(design)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var created time.Time
	err = tx.QueryRowContext(ctx, "SELECT created_at FROM designs WHERE user_id = ? AND id = ?", design.UserID, design.ID).Scan(&created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			"INSERT INTO designs (id, user_id, tenant_id, name, product, layers, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			design.ID, design.UserID, design.TenantID, design.Name, product, layers, now, now)
		created = now
	case err == nil:
		_, err = tx.ExecContext(ctx,
			"UPDATE designs SET tenant_id = ?, name = ?, product = ?, layers = ?, updated_at = ? WHERE user_id = ? AND id = ?",
			design.TenantID, design.Name, product, layers, now, design.UserID, design.ID)
	}
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	design.CreatedAt = created
	design.UpdatedAt = now
	logrus.WithFields(logrus.Fields{"user_id": design.UserID, "design_id": design.ID}).Info("Design saved successfully")
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM designs WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("design %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func encodeColumns(d *core.Design) (sql.NullString, string, error) {
	var product sql.NullString
	if d.Product != nil {
		b, err := json.Marshal(d.Product)
		if err != nil {
			return product, "", err
		}
		product = sql.NullString{String: string(b), Valid: true}
	}
	layers := d.Layers
	if layers == nil {
		layers = []core.Layer{}
	}
	b, err := json.Marshal(layers)
	if err != nil {
		return product, "", err
	}
	return product, string(b), nil
}

func decodeProduct(col sql.NullString) (*core.ProductRef, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var p core.ProductRef
	if err := json.Unmarshal([]byte(col.String), &p); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	return &p, nil
}
