package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/models"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS cameras (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	archived   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS objects (
	id           BIGSERIAL PRIMARY KEY,
	base         TEXT NOT NULL,
	camera_id    BIGINT NOT NULL REFERENCES cameras(id),
	timestamp    BIGINT NOT NULL,
	roi          JSONB NOT NULL,
	metadata     JSONB NOT NULL DEFAULT '{}',
	score        DOUBLE PRECISION NOT NULL,
	cluster_size INTEGER NOT NULL DEFAULT 1,
	is_reference BOOLEAN NOT NULL DEFAULT TRUE,
	parent_id    BIGINT REFERENCES objects(id),
	image_key    TEXT NOT NULL,
	embedding    vector(64),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS objects_base_ts_idx ON objects (base, timestamp DESC);
CREATE INDEX IF NOT EXISTS objects_metadata_idx ON objects USING GIN (metadata);
`

const objectColumns = `id, base, camera_id, timestamp, roi, metadata, score, cluster_size, is_reference, parent_id, image_key, created_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables when they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Cameras ---

func (s *PostgresStore) CreateCamera(ctx context.Context, cam *models.Camera) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cameras (name, active, archived) VALUES ($1, $2, $3) RETURNING id, created_at`,
		cam.Name, cam.Active, cam.Archived,
	).Scan(&cam.ID, &cam.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("create camera %q: %w", cam.Name, ErrCameraExists)
	}
	if err != nil {
		return fmt.Errorf("create camera: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCameras(ctx context.Context) ([]models.Camera, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, active, archived, created_at FROM cameras ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []models.Camera
	for rows.Next() {
		var c models.Camera
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &c.Archived, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		cameras = append(cameras, c)
	}
	return cameras, rows.Err()
}

func (s *PostgresStore) GetCamera(ctx context.Context, id int64) (*models.Camera, error) {
	var c models.Camera
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, active, archived, created_at FROM cameras WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Active, &c.Archived, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get camera: %w", err)
	}
	return &c, nil
}

// --- Objects ---

func (s *PostgresStore) IndexObject(ctx context.Context, obj *models.Object, threshold float64) error {
	roi, err := json.Marshal(obj.ROI)
	if err != nil {
		return fmt.Errorf("marshal roi: %w", err)
	}
	meta, err := json.Marshal(obj.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	vec := pgvector.NewVector(obj.Embedding)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize clustering per base so two near-identical objects never both
	// become references.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(obj.Base)); err != nil {
		return fmt.Errorf("lock base: %w", err)
	}

	var refID int64
	var refSize int
	err = tx.QueryRow(ctx,
		`SELECT id, cluster_size FROM objects
		 WHERE base = $1 AND is_reference AND (embedding <=> $2) <= $3
		 ORDER BY embedding <=> $2
		 LIMIT 1`,
		string(obj.Base), vec, threshold,
	).Scan(&refID, &refSize)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		obj.IsReference = true
		obj.ClusterSize = 1
		obj.ParentID = nil
	case err != nil:
		return fmt.Errorf("find cluster reference: %w", err)
	default:
		obj.IsReference = false
		obj.ParentID = &refID
		obj.ClusterSize = refSize + 1
		if _, err := tx.Exec(ctx,
			`UPDATE objects SET cluster_size = $2 WHERE id = $1 OR parent_id = $1`,
			refID, obj.ClusterSize); err != nil {
			return fmt.Errorf("grow cluster: %w", err)
		}
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO objects (base, camera_id, timestamp, roi, metadata, score, cluster_size, is_reference, parent_id, image_key, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		string(obj.Base), obj.CameraID, obj.Timestamp, roi, meta, obj.Score,
		obj.ClusterSize, obj.IsReference, obj.ParentID, obj.ImageKey, vec,
	).Scan(&obj.ID, &obj.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert object: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetObject(ctx context.Context, base models.Base, id int64) (*models.Object, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+objectColumns+` FROM objects WHERE base = $1 AND id = $2`, string(base), id)
	obj, err := scanObject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

func (s *PostgresStore) SearchObjects(ctx context.Context, base models.Base, q ObjectQuery) ([]models.Object, error) {
	where := []string{"base = $1"}
	args := []any{string(base)}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch models.Quality(q.Quality) {
	case models.QualityAny:
	case "", models.QualityGood:
		where = append(where, "(metadata->>'quality' IS NULL OR metadata->>'quality' = 'good')")
	default:
		where = append(where, "metadata->>'quality' = "+arg(q.Quality))
	}
	if len(q.Metadata) > 0 {
		filter, err := json.Marshal(q.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata filter: %w", err)
		}
		where = append(where, "metadata @> "+arg(filter)+"::jsonb")
	}
	if len(q.CameraIDs) > 0 {
		where = append(where, "camera_id = ANY("+arg(q.CameraIDs)+")")
	}
	if q.From != nil {
		where = append(where, "timestamp >= "+arg(*q.From))
	}
	if q.To != nil {
		where = append(where, "timestamp <= "+arg(*q.To))
	}

	order := "timestamp DESC, id DESC"
	if q.Oldest {
		order = "timestamp ASC, id ASC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 250
	}

	query := fmt.Sprintf(`SELECT %s FROM objects WHERE %s ORDER BY %s LIMIT %s OFFSET %s`,
		objectColumns, strings.Join(where, " AND "), order, arg(limit), arg(q.Offset))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search objects: %w", err)
	}
	defer rows.Close()

	objects := []models.Object{}
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		objects = append(objects, *obj)
	}
	return objects, rows.Err()
}

func scanObject(row pgx.Row) (*models.Object, error) {
	var (
		obj       models.Object
		base      string
		roi, meta []byte
		createdAt time.Time
	)
	if err := row.Scan(&obj.ID, &base, &obj.CameraID, &obj.Timestamp, &roi, &meta, &obj.Score,
		&obj.ClusterSize, &obj.IsReference, &obj.ParentID, &obj.ImageKey, &createdAt); err != nil {
		return nil, err
	}
	obj.Base = models.Base(base)
	obj.CreatedAt = createdAt
	if err := json.Unmarshal(roi, &obj.ROI); err != nil {
		return nil, fmt.Errorf("decode roi: %w", err)
	}
	if err := json.Unmarshal(meta, &obj.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &obj, nil
}
