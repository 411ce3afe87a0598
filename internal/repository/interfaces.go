// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/coachhub/internal/model"
)

// IdentityRepository はTelegram IDと内部アカウントの紐付けの永続化インターフェース。
type IdentityRepository interface {
	// FindByTelegramUserID はTelegramユーザーIDでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByTelegramUserID(ctx context.Context, telegramUserID int64) (*model.TelegramIdentity, error)

	// FindByEmail は正規化済み（小文字・トリム済み）メールアドレスでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.TelegramIdentity, error)

	// Upsert はtelegram_user_idをキーにidentityを冪等にUPSERTする。
	// 既存行がある場合はプロフィールとlast_auth_atのみ更新し、
	// account_idとcreated_atは変更しない。
	Upsert(ctx context.Context, identity *model.TelegramIdentity) error
}

// WorkspaceRepository はワークスペースの永続化インターフェース。
type WorkspaceRepository interface {
	// Create はワークスペースと作成者のownerメンバーシップを
	// 同一トランザクションで作成する。
	Create(ctx context.Context, ws *model.Workspace, ownerMembership *model.Membership) error

	// FindByID は指定IDのワークスペースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Workspace, error)

	// ListByAccount はアカウントが所属するワークスペース一覧を返す。
	ListByAccount(ctx context.Context, accountID string) ([]*model.Workspace, error)
}

// MembershipRepository はメンバーシップの永続化インターフェース。
// (workspace_id, account_id) のユニーク制約を前提とする。
type MembershipRepository interface {
	// Find はワークスペースとアカウントの組でメンバーシップを検索する。
	// 見つからない場合はnilを返す。
	Find(ctx context.Context, workspaceID, accountID string) (*model.Membership, error)

	// Upsert はメンバーシップを冪等にUPSERTする。
	// 既存行があればロールを指定値でそのまま上書きする（オーナーによる明示的な
	// 割り当て用。ロールの降格も許す）。
	Upsert(ctx context.Context, m *model.Membership) error

	// UpsertWithRatchet はロールラチェット付きでメンバーシップをUPSERTする。
	// 既存ロールがownerまたはcoachの場合は変更せず、それ以外のみ指定ロールを
	// 適用する。招待トークン受諾のセルフサービス経路専用。
	UpsertWithRatchet(ctx context.Context, m *model.Membership) error

	// ListByWorkspace はワークスペースの全メンバーを識別ラベル付きで返す。
	// 並び順は保証しない（呼び出し側でソートする）。
	ListByWorkspace(ctx context.Context, workspaceID string) ([]model.Member, error)
}

// InviteRepository は招待の永続化インターフェース。
// 招待は受諾後も監査証跡として削除しない。
type InviteRepository interface {
	// Create は招待を作成する。tokenはグローバルユニーク。
	Create(ctx context.Context, inv *model.Invite) error

	// FindByToken はトークンで招待を検索する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Invite, error)

	// MarkAccepted は未受諾の招待を受諾済みにする。
	// accepted_atとaccepted_byは最初の遷移でのみ設定される。
	// この呼び出しで遷移が起きた場合はtrue、既に受諾済みだった場合はfalseを返す。
	MarkAccepted(ctx context.Context, inviteID, accountID string, at time.Time) (bool, error)
}
