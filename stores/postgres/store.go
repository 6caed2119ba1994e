package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"designlab/core"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS designs (
	id         TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	tenant_id  TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	product    JSONB,
	layers     JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, id)
);
CREATE INDEX IF NOT EXISTS designs_user_updated_idx ON designs (user_id, updated_at DESC);`

type designRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	TenantID  string         `db:"tenant_id"`
	Name      string         `db:"name"`
	Product   sql.NullString `db:"product"`
	Layers    []byte         `db:"layers"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r designRow) design() (*core.Design, error) {
	d := &core.Design{
		ID:        r.ID,
		UserID:    r.UserID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Product.Valid && r.Product.String != "" {
		d.Product = &core.ProductRef{}
		if err := json.Unmarshal([]byte(r.Product.String), d.Product); err != nil {
			return nil, fmt.Errorf("failed to decode product of design %s: %w", r.ID, err)
		}
	}
	if len(r.Layers) > 0 {
		if err := json.Unmarshal(r.Layers, &d.Layers); err != nil {
			return nil, fmt.Errorf("failed to decode layers of design %s: %w", r.ID, err)
		}
	}
	return d, nil
}

type pgStore struct {
	db *sqlx.DB
}

// NewStore connects to Postgres through the pgx driver and ensures the schema exists.
func NewStore(ctx context.Context, databaseURL string) (*pgStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sqlx.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create designs table: %w", err)
	}
	return nil
}

func (s *pgStore) Close() error {
	return s.db.Close()
}

func (s *pgStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	var rows []designRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, tenant_id, name, product, created_at, updated_at
		 FROM designs WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to list designs")
		return nil, err
	}

	designs := make([]*core.Design, 0, len(rows))
	for _, r := range rows {
		d, err := r.design()
		if err != nil {
			return nil, err
		}
		designs = append(designs, d)
	}
	return designs, nil
}

func (s *pgStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	var r designRow
	err := s.db.GetContext(ctx, &r,
		`SELECT id, user_id, tenant_id, name, product, layers, created_at, updated_at
		 FROM designs WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id}).Warn("Design not found")
			return nil, fmt.Errorf("design %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	return r.design()
}

func (s *pgStore) Save(ctx context.Context, design *core.Design) error {
	if design.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	if design.ID == "" {
		design.ID = ulid.Make().String()
	}

	var product sql.NullString
	if design.Product != nil {
		b, err := json.Marshal(design.Product)
		if err != nil {
			return err
		}
		product = sql.NullString{String: string(b), Valid: true}
	}
	layers := design.Layers
	if layers == nil {
		layers = []core.Layer{}
	}
	layersJSON, err := json.Marshal(layers)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO designs (id, user_id, tenant_id, name, product, layers, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (user_id, id) DO UPDATE SET
		   tenant_id = EXCLUDED.tenant_id,
		   name = EXCLUDED.name,
		   product = EXCLUDED.product,
		   layers = EXCLUDED.layers,
		   updated_at = EXCLUDED.updated_at
		 RETURNING created_at, updated_at`,
		design.ID, design.UserID, design.TenantID, design.Name, product, string(layersJSON), now,
	).Scan(&design.CreatedAt, &design.UpdatedAt)
	if err != nil {
		logrus.WithError(err).WithField("design_id", design.ID).Error("Failed to save design")
		return err
	}

	logrus.WithFields(logrus.Fields{"user_id": design.UserID, "design_id": design.ID}).Info("Design saved successfully")
	return nil
}

func (s *pgStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM designs WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("design %s: %w", id, core.ErrNotFound)
	}
	return nil
}
