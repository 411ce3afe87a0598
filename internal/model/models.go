// Package model はドメインモデルを定義する。
package model

import "time"

// Role はワークスペース内のメンバー権限を表す。
type Role string

const (
	// RoleOwner はワークスペースの所有者（招待発行・メンバー管理が可能）。
	RoleOwner Role = "owner"
	// RoleCoach はコーチ権限（担当メンバーのデータ閲覧・編集が可能）。
	RoleCoach Role = "coach"
	// RoleMember は一般メンバー権限。
	RoleMember Role = "member"
)

// RoleRank はロールの序列を返す。数値が小さいほど高権限。
// owner=1, coach=2, member=3、未知のロールは9として末尾に並ぶ。
func RoleRank(r Role) int {
	switch r {
	case RoleOwner:
		return 1
	case RoleCoach:
		return 2
	case RoleMember:
		return 3
	default:
		return 9
	}
}

// IsValidInviteRole はメール招待で指定可能なロールかを判定する。
// ownerはメール招待では付与できない。
func IsValidInviteRole(r Role) bool {
	return r == RoleCoach || r == RoleMember
}

// TelegramIdentity はTelegramユーザーIDと内部アカウントの紐付けを表す。
// 初回ログイン時に作成され、以後のログインごとにプロフィールと
// last_auth_atが更新される。本サブシステムからは削除されない。
type TelegramIdentity struct {
	ID             string
	TelegramUserID int64
	AccountID      string
	Email          string
	Username       string
	FirstName      string
	LastName       string
	CreatedAt      time.Time
	LastAuthAt     time.Time
}

// DisplayLabel はメンバー一覧などUIに表示する識別ラベルを返す。
// username → 姓名 → email の順でフォールバックする。
func (i *TelegramIdentity) DisplayLabel() string {
	if i.Username != "" {
		return i.Username
	}
	name := i.FirstName
	if i.LastName != "" {
		if name != "" {
			name += " "
		}
		name += i.LastName
	}
	if name != "" {
		return name
	}
	return i.Email
}

// Workspace はテナント境界を表す。全アプリケーションデータと
// メンバーシップはワークスペース単位でスコープされる。
type Workspace struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// Membership はワークスペースとアカウントの所属関係を表す。
// (workspace_id, account_id) の組はユニーク。
type Membership struct {
	ID          string
	WorkspaceID string
	AccountID   string
	Role        Role
	CreatedAt   time.Time
}

// Invite はワークスペースへの時限・単回利用の招待を表す。
// 受諾後も監査証跡として削除せず保持する。
type Invite struct {
	ID          string
	WorkspaceID string
	Role        Role
	Token       string
	CreatedBy   string
	ExpiresAt   time.Time
	AcceptedAt  *time.Time
	AcceptedBy  string
	CreatedAt   time.Time
}

// Accepted は招待が受諾済みかを返す。
func (inv *Invite) Accepted() bool {
	return inv.AcceptedAt != nil
}

// Expired は時刻nowにおいて招待が期限切れかを返す。
func (inv *Invite) Expired(now time.Time) bool {
	return now.After(inv.ExpiresAt)
}

// Member はメンバー一覧レスポンス用にメンバーシップと識別情報を結合した構造体。
type Member struct {
	AccountID string
	Role      Role
	Label     string
	JoinedAt  time.Time
}
