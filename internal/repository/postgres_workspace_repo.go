package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/coachhub/internal/model"
)

// PostgresWorkspaceRepo はPostgreSQLを使用したワークスペースリポジトリ。
type PostgresWorkspaceRepo struct {
	db *sql.DB
}

// NewPostgresWorkspaceRepo はPostgresWorkspaceRepoを生成する。
func NewPostgresWorkspaceRepo(db *sql.DB) *PostgresWorkspaceRepo {
	return &PostgresWorkspaceRepo{db: db}
}

// Create はワークスペースと作成者のownerメンバーシップを同一トランザクションで作成する。
// 作成者が作成時点からownerロールを持つことを保証する。
func (r *PostgresWorkspaceRepo) Create(ctx context.Context, ws *model.Workspace, ownerMembership *model.Membership) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workspaces (id, name, created_by, created_at)
		 VALUES ($1, $2, $3, $4)`,
		ws.ID, ws.Name, ws.CreatedBy, ws.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workspace: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memberships (id, workspace_id, account_id, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ownerMembership.ID, ownerMembership.WorkspaceID, ownerMembership.AccountID,
		ownerMembership.Role, ownerMembership.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByID は指定IDのワークスペースを取得する。見つからない場合はnilを返す。
func (r *PostgresWorkspaceRepo) FindByID(ctx context.Context, id string) (*model.Workspace, error) {
	ws := &model.Workspace{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM workspaces WHERE id = $1`,
		id,
	).Scan(&ws.ID, &ws.Name, &ws.CreatedBy, &ws.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find workspace: %w", err)
	}

	return ws, nil
}

// ListByAccount はアカウントが所属するワークスペース一覧を参加日時順で返す。
func (r *PostgresWorkspaceRepo) ListByAccount(ctx context.Context, accountID string) ([]*model.Workspace, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT w.id, w.name, w.created_by, w.created_at
		 FROM workspaces w
		 JOIN memberships m ON m.workspace_id = w.id
		 WHERE m.account_id = $1
		 ORDER BY m.created_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var result []*model.Workspace
	for rows.Next() {
		ws := &model.Workspace{}
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.CreatedBy, &ws.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		result = append(result, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workspaces: %w", err)
	}

	return result, nil
}

// compile-time interface check
var _ WorkspaceRepository = (*PostgresWorkspaceRepo)(nil)
