package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/coachhub/internal/model"
)

// PostgresInviteRepo はPostgreSQLを使用した招待リポジトリ。
type PostgresInviteRepo struct {
	db *sql.DB
}

// NewPostgresInviteRepo はPostgresInviteRepoを生成する。
func NewPostgresInviteRepo(db *sql.DB) *PostgresInviteRepo {
	return &PostgresInviteRepo{db: db}
}

// Create は招待を作成する。tokenはUNIQUE制約を持つ。
func (r *PostgresInviteRepo) Create(ctx context.Context, inv *model.Invite) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invites
		   (id, workspace_id, role, token, created_by, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.WorkspaceID, inv.Role, inv.Token, inv.CreatedBy,
		inv.ExpiresAt, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invite: %w", err)
	}
	return nil
}

// FindByToken はトークンで招待を検索する。見つからない場合はnilを返す。
func (r *PostgresInviteRepo) FindByToken(ctx context.Context, token string) (*model.Invite, error) {
	inv := &model.Invite{}
	var acceptedAt sql.NullTime
	var acceptedBy sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, role, token, created_by, expires_at, accepted_at, accepted_by, created_at
		 FROM invites WHERE token = $1`,
		token,
	).Scan(
		&inv.ID, &inv.WorkspaceID, &inv.Role, &inv.Token, &inv.CreatedBy,
		&inv.ExpiresAt, &acceptedAt, &acceptedBy, &inv.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invite: %w", err)
	}

	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = acceptedBy.String
	}

	return inv, nil
}

// MarkAccepted は未受諾の招待を受諾済みにする。
// WHERE accepted_at IS NULL により最初の遷移でのみ書き込まれる。
// 戻り値はこの呼び出しで遷移したかどうか。並行受諾の敗者はfalseを受け取る。
func (r *PostgresInviteRepo) MarkAccepted(ctx context.Context, inviteID, accountID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invites SET accepted_at = $2, accepted_by = $3
		 WHERE id = $1 AND accepted_at IS NULL`,
		inviteID, at, accountID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark invite accepted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// compile-time interface check
var _ InviteRepository = (*PostgresInviteRepo)(nil)
