package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
)

// Schema — таблицы для регистрации workflow.
const Schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS workflow_versions (
	workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	version     INT NOT NULL,
	checksum    TEXT NOT NULL,
	snapshot    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (workflow_id, version)
);
`

// WorkflowRepo — репозиторий workflows и workflow_versions.
type WorkflowRepo struct {
	db DB
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(db DB) *WorkflowRepo {
	return &WorkflowRepo{db: db}
}

// Migrate создаёт таблицы, если их нет.
func (r *WorkflowRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Register сохраняет снимок workflow.
//
// Строка workflows создаётся при первой регистрации. Новая версия
// добавляется, только если checksum отличается от последней версии.
// Всё выполняется в одной транзакции.
func (r *WorkflowRepo) Register(ctx context.Context, snap graph.Snapshot) (*domain.Registration, error) {
	data, checksum, err := snap.Encode()
	if err != nil {
		return nil, err
	}

	reg := &domain.Registration{Name: snap.ID, Checksum: checksum}

	err = withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO workflows (id, name, created_at, updated_at)
			VALUES ($1, $2, NOW(), NOW())
			ON CONFLICT (name) DO UPDATE SET updated_at = NOW()
			RETURNING id
		`, uuid.New(), snap.ID).Scan(&reg.WorkflowID); err != nil {
			return fmt.Errorf("upsert workflow: %w", err)
		}

		var (
			lastVersion  int
			lastChecksum string
			lastCreated  time.Time
		)
		err := tx.QueryRow(ctx, `
			SELECT version, checksum, created_at
			FROM workflow_versions
			WHERE workflow_id = $1
			ORDER BY version DESC
			LIMIT 1
		`, reg.WorkflowID).Scan(&lastVersion, &lastChecksum, &lastCreated)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("get latest version: %w", err)
		case lastChecksum == checksum:
			reg.Version = lastVersion
			reg.CreatedAt = lastCreated
			return nil
		}

		reg.Version = lastVersion + 1
		reg.Created = true
		if err := tx.QueryRow(ctx, `
			INSERT INTO workflow_versions (workflow_id, version, checksum, snapshot, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING created_at
		`, reg.WorkflowID, reg.Version, checksum, data).Scan(&reg.CreatedAt); err != nil {
			return fmt.Errorf("insert workflow version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register workflow %s: %w", snap.ID, err)
	}

	return reg, nil
}

// Latest возвращает последнюю версию workflow по имени.
func (r *WorkflowRepo) Latest(ctx context.Context, name string) (*domain.Registration, error) {
	query := `
		SELECT w.id, w.name, v.version, v.checksum, v.created_at
		FROM workflows w
		JOIN workflow_versions v ON v.workflow_id = w.id
		WHERE w.name = $1
		ORDER BY v.version DESC
		LIMIT 1
	`
	var reg domain.Registration
	err := r.db.QueryRow(ctx, query, name).Scan(
		&reg.WorkflowID,
		&reg.Name,
		&reg.Version,
		&reg.Checksum,
		&reg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest workflow version: %w", err)
	}
	return &reg, nil
}
