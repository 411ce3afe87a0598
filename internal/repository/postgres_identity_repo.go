package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/coachhub/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

const identityColumns = `id, telegram_user_id, account_id, email, username, first_name, last_name, created_at, last_auth_at`

// FindByTelegramUserID はTelegramユーザーIDでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByTelegramUserID(ctx context.Context, telegramUserID int64) (*model.TelegramIdentity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM telegram_identities WHERE telegram_user_id = $1`,
		telegramUserID,
	)
	return scanIdentity(row)
}

// FindByEmail は正規化済みメールアドレスでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.TelegramIdentity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM telegram_identities WHERE lower(email) = lower($1)`,
		email,
	)
	return scanIdentity(row)
}

// Upsert はtelegram_user_idをキーにidentityを冪等にUPSERTする。
// 競合時はプロフィールとlast_auth_atのみ更新し、account_idとcreated_atは保持する。
// 同一キーに対する並行書き込みはこのユニーク制約で解決される。
func (r *PostgresIdentityRepo) Upsert(ctx context.Context, identity *model.TelegramIdentity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO telegram_identities
		   (id, telegram_user_id, account_id, email, username, first_name, last_name, created_at, last_auth_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (telegram_user_id) DO UPDATE SET
		   email        = EXCLUDED.email,
		   username     = EXCLUDED.username,
		   first_name   = EXCLUDED.first_name,
		   last_name    = EXCLUDED.last_name,
		   last_auth_at = EXCLUDED.last_auth_at`,
		identity.ID, identity.TelegramUserID, identity.AccountID, identity.Email,
		identity.Username, identity.FirstName, identity.LastName,
		identity.CreatedAt, identity.LastAuthAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", err)
	}
	return nil
}

// scanIdentity は1行をTelegramIdentityに読み取る。sql.ErrNoRowsはnilに変換する。
func scanIdentity(row *sql.Row) (*model.TelegramIdentity, error) {
	identity := &model.TelegramIdentity{}
	err := row.Scan(
		&identity.ID, &identity.TelegramUserID, &identity.AccountID, &identity.Email,
		&identity.Username, &identity.FirstName, &identity.LastName,
		&identity.CreatedAt, &identity.LastAuthAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return identity, nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
