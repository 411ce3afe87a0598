package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/coachhub/internal/model"
)

// PostgresMembershipRepo はPostgreSQLを使用したメンバーシップリポジトリ。
type PostgresMembershipRepo struct {
	db *sql.DB
}

// NewPostgresMembershipRepo はPostgresMembershipRepoを生成する。
func NewPostgresMembershipRepo(db *sql.DB) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db}
}

// Find はワークスペースとアカウントの組でメンバーシップを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresMembershipRepo) Find(ctx context.Context, workspaceID, accountID string) (*model.Membership, error) {
	m := &model.Membership{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, account_id, role, created_at
		 FROM memberships WHERE workspace_id = $1 AND account_id = $2`,
		workspaceID, accountID,
	).Scan(&m.ID, &m.WorkspaceID, &m.AccountID, &m.Role, &m.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}

	return m, nil
}

// Upsert はメンバーシップを冪等にUPSERTする。既存行のロールは指定値で
// そのまま上書きされる（降格も許す）。オーナーによる明示的割り当て専用。
func (r *PostgresMembershipRepo) Upsert(ctx context.Context, m *model.Membership) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (id, workspace_id, account_id, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (workspace_id, account_id) DO UPDATE SET
		   role = EXCLUDED.role`,
		m.ID, m.WorkspaceID, m.AccountID, m.Role, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

// UpsertWithRatchet はロールラチェット付きでメンバーシップをUPSERTする。
// 既存ロールがownerまたはcoachなら変更しない。ラチェット判定をSQL内で行うため、
// 同一キーへの並行受諾でも降格は起こらない。
func (r *PostgresMembershipRepo) UpsertWithRatchet(ctx context.Context, m *model.Membership) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (id, workspace_id, account_id, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (workspace_id, account_id) DO UPDATE SET
		   role = CASE
		     WHEN memberships.role IN ('owner', 'coach') THEN memberships.role
		     ELSE EXCLUDED.role
		   END`,
		m.ID, m.WorkspaceID, m.AccountID, m.Role, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert membership with ratchet: %w", err)
	}
	return nil
}

// ListByWorkspace はワークスペースの全メンバーを識別ラベル付きで返す。
// ラベルはidentityのプロフィールから導出する。並び順は呼び出し側で決める。
func (r *PostgresMembershipRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.account_id, m.role, m.created_at,
		        COALESCE(i.username, ''), COALESCE(i.first_name, ''),
		        COALESCE(i.last_name, ''), COALESCE(i.email, '')
		 FROM memberships m
		 LEFT JOIN telegram_identities i ON i.account_id = m.account_id
		 WHERE m.workspace_id = $1`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		var m model.Member
		ident := model.TelegramIdentity{}
		if err := rows.Scan(
			&m.AccountID, &m.Role, &m.JoinedAt,
			&ident.Username, &ident.FirstName, &ident.LastName, &ident.Email,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Label = ident.DisplayLabel()
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

// compile-time interface check
var _ MembershipRepository = (*PostgresMembershipRepo)(nil)
