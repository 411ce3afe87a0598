// Package workspace はワークスペースのRBAC（owner/coach/member）と
// 招待ライフサイクルを提供する。
package workspace

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/coachhub/internal/model"
	"github.com/hitoshi/coachhub/internal/repository"
)

const (
	// defaultInviteTTLHours は招待トークンの既定の有効期間（7日）。
	defaultInviteTTLHours = 168
	// minInviteTTLHours / maxInviteTTLHours はTTLのクランプ範囲。
	minInviteTTLHours = 1
	maxInviteTTLHours = 720

	// inviteTokenBytes は招待トークンの乱数長。256ビットで推測不能とする。
	inviteTokenBytes = 32

	// defaultWorkspaceName は自動プロビジョニングされるワークスペースの名前。
	defaultWorkspaceName = "マイワークスペース"
)

// MetricsRecorder は招待ライフサイクルのメトリクス収集インターフェース。
type MetricsRecorder interface {
	RecordInviteCreated()
	RecordInviteAccepted()
}

// Service はワークスペースのアクセス制御ロジックを提供する。
// アプリケーションレベルのロックは取らず、並行書き込みの整合性は
// ストアのユニーク制約とUPSERTセマンティクスに委ねる。
type Service struct {
	workspaces  repository.WorkspaceRepository
	memberships repository.MembershipRepository
	invites     repository.InviteRepository
	identities  repository.IdentityRepository
	metrics     MetricsRecorder
}

// NewService はServiceを生成する。
func NewService(
	workspaces repository.WorkspaceRepository,
	memberships repository.MembershipRepository,
	invites repository.InviteRepository,
	identities repository.IdentityRepository,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		workspaces:  workspaces,
		memberships: memberships,
		invites:     invites,
		identities:  identities,
		metrics:     metrics,
	}
}

// CreateWorkspaceWithOwner はワークスペースを作成し、作成者に
// ownerメンバーシップを同一論理単位で付与する。
func (s *Service) CreateWorkspaceWithOwner(ctx context.Context, accountID, name string) (*model.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError(model.ErrCodeBlankName, "ワークスペース名を入力してください。")
	}

	now := time.Now().UTC()
	ws := &model.Workspace{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedBy: accountID,
		CreatedAt: now,
	}
	membership := &model.Membership{
		ID:          uuid.New().String(),
		WorkspaceID: ws.ID,
		AccountID:   accountID,
		Role:        model.RoleOwner,
		CreatedAt:   now,
	}

	if err := s.workspaces.Create(ctx, ws, membership); err != nil {
		return nil, model.NewDownstreamError(err)
	}

	slog.Info("workspace created",
		slog.String("workspace_id", ws.ID),
		slog.String("account_id", accountID),
	)
	return ws, nil
}

// Bootstrap は呼び出し元の所属ワークスペース一覧を返す。
// 1つも所属していないアカウントにはデフォルトのワークスペースを
// 自動プロビジョニングしてownerとして参加させる。
func (s *Service) Bootstrap(ctx context.Context, accountID string) ([]*model.Workspace, error) {
	list, err := s.workspaces.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, model.NewDownstreamError(err)
	}
	if len(list) > 0 {
		return list, nil
	}

	ws, err := s.CreateWorkspaceWithOwner(ctx, accountID, defaultWorkspaceName)
	if err != nil {
		return nil, err
	}
	return []*model.Workspace{ws}, nil
}

// CreateInvite はcoachロールの時限・単回利用の招待トークンを発行する。
// 呼び出し元がownerでない場合はAuthorizationErrorを返す。
// ttlHoursが0（リクエストで省略）の場合は既定値168時間、
// それ以外は[1, 720]にクランプされる。
func (s *Service) CreateInvite(ctx context.Context, callerAccountID, workspaceID string, ttlHours int) (string, error) {
	if err := s.requireOwner(ctx, workspaceID, callerAccountID); err != nil {
		return "", err
	}

	if ttlHours == 0 {
		ttlHours = defaultInviteTTLHours
	}
	if ttlHours < minInviteTTLHours {
		ttlHours = minInviteTTLHours
	}
	if ttlHours > maxInviteTTLHours {
		ttlHours = maxInviteTTLHours
	}

	token, err := generateInviteToken()
	if err != nil {
		return "", model.NewDownstreamError(err)
	}

	now := time.Now().UTC()
	inv := &model.Invite{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Role:        model.RoleCoach,
		Token:       token,
		CreatedBy:   callerAccountID,
		ExpiresAt:   now.Add(time.Duration(ttlHours) * time.Hour),
		CreatedAt:   now,
	}
	if err := s.invites.Create(ctx, inv); err != nil {
		return "", model.NewDownstreamError(err)
	}

	s.metrics.RecordInviteCreated()
	slog.Info("invite created",
		slog.String("workspace_id", workspaceID),
		slog.String("invite_id", inv.ID),
		slog.Int("ttl_hours", ttlHours),
	)
	return token, nil
}

// AcceptInvite は招待トークンを受諾し、所属先ワークスペースIDを返す。
//
// 状態機械: Pending → Expired（時間経過・終端）/ Pending → Accepted（受諾・終端）。
// 同一アカウントによる再受諾は冪等な成功（同じワークスペースIDを返す）、
// 別アカウントによる受諾済みトークンの再利用は拒否する。
// メンバーシップにはロールラチェットを適用する: 既存ロールがownerまたはcoachなら
// 維持し、それ以外のみ招待のロールを設定する。
func (s *Service) AcceptInvite(ctx context.Context, callerAccountID, token string) (string, error) {
	inv, err := s.invites.FindByToken(ctx, token)
	if err != nil {
		return "", model.NewDownstreamError(err)
	}
	if inv == nil {
		return "", model.NewNotFoundError(model.ErrCodeInviteNotFound, "招待が見つかりません。")
	}

	now := time.Now().UTC()

	if inv.Accepted() {
		if inv.AcceptedBy == callerAccountID {
			// 同一アカウントの再受諾は冪等な成功
			return inv.WorkspaceID, nil
		}
		return "", model.NewStateError(model.ErrCodeInviteAccepted, "この招待は既に使用されています。")
	}

	if inv.Expired(now) {
		return "", model.NewStateError(model.ErrCodeInviteExpired, "この招待は期限切れです。")
	}

	membership := &model.Membership{
		ID:          uuid.New().String(),
		WorkspaceID: inv.WorkspaceID,
		AccountID:   callerAccountID,
		Role:        inv.Role,
		CreatedAt:   now,
	}
	if err := s.memberships.UpsertWithRatchet(ctx, membership); err != nil {
		return "", model.NewDownstreamError(err)
	}

	claimed, err := s.invites.MarkAccepted(ctx, inv.ID, callerAccountID, now)
	if err != nil {
		return "", model.NewDownstreamError(err)
	}
	if !claimed {
		// 並行受諾で別アカウントが先に確定した場合: 単回利用を維持するため
		// 敗者側にはエラーを返す。同一アカウントの重複リクエストは成功扱い。
		current, err := s.invites.FindByToken(ctx, token)
		if err != nil {
			return "", model.NewDownstreamError(err)
		}
		if current == nil || current.AcceptedBy != callerAccountID {
			return "", model.NewStateError(model.ErrCodeInviteAccepted, "この招待は既に使用されています。")
		}
	}

	s.metrics.RecordInviteAccepted()
	slog.Info("invite accepted",
		slog.String("workspace_id", inv.WorkspaceID),
		slog.String("invite_id", inv.ID),
		slog.String("account_id", callerAccountID),
	)
	return inv.WorkspaceID, nil
}

// InviteByEmail はメールアドレスで既存アカウントを直接メンバーに追加する。
//
// 呼び出し元がownerでない場合はAuthorizationError、ロールがcoach/member以外は
// ValidationError。対象アカウントが未ログイン（identity行なし）の場合はNotFound。
// トークン受諾と異なりラチェットは適用しない: オーナーによる明示的な管理操作の
// ため、既存ロールの降格も許される。この2経路を統一してはならない。
func (s *Service) InviteByEmail(ctx context.Context, callerAccountID, workspaceID, email string, role model.Role) error {
	if err := s.requireOwner(ctx, workspaceID, callerAccountID); err != nil {
		return err
	}

	if role == "" {
		role = model.RoleMember
	}
	if !model.IsValidInviteRole(role) {
		return model.NewValidationError(model.ErrCodeInvalidRole, "ロールはcoachまたはmemberを指定してください。")
	}

	normalized := strings.ToLower(strings.TrimSpace(email))
	identity, err := s.identities.FindByEmail(ctx, normalized)
	if err != nil {
		return model.NewDownstreamError(err)
	}
	if identity == nil {
		return model.NewNotFoundError(model.ErrCodeInviteeNotFound, "対象ユーザーが見つかりません。先に一度ログインしてもらってください。")
	}

	membership := &model.Membership{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		AccountID:   identity.AccountID,
		Role:        role,
		CreatedAt:   time.Now().UTC(),
	}
	// ロールは指定値のまま適用する（ラチェットなし）
	if err := s.memberships.Upsert(ctx, membership); err != nil {
		return model.NewDownstreamError(err)
	}

	slog.Info("member assigned by email",
		slog.String("workspace_id", workspaceID),
		slog.String("account_id", identity.AccountID),
		slog.String("role", string(role)),
	)
	return nil
}

// ListMembers はワークスペースのメンバー一覧を固定の全順序で返す。
// 並び: ロール序列（owner=1, coach=2, member=3, その他=9）→
// 識別ラベルの大文字小文字を無視した辞書順 → 参加日時順。
// 呼び出し元がメンバーでない場合はAuthorizationErrorを返す。
func (s *Service) ListMembers(ctx context.Context, callerAccountID, workspaceID string) ([]model.Member, error) {
	member, err := s.IsMember(ctx, workspaceID, callerAccountID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, model.NewAuthorizationError(model.ErrCodeNotWorkspaceMember, "このワークスペースのメンバーではありません。")
	}

	members, err := s.memberships.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, model.NewDownstreamError(err)
	}

	sort.Slice(members, func(i, j int) bool {
		ri, rj := model.RoleRank(members[i].Role), model.RoleRank(members[j].Role)
		if ri != rj {
			return ri < rj
		}
		li, lj := strings.ToLower(members[i].Label), strings.ToLower(members[j].Label)
		if li != lj {
			return li < lj
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})

	return members, nil
}

// IsMember は呼び出し元がワークスペースのメンバーかを返す。
// ストア側のテナント分離ポリシーからも利用される述語。
func (s *Service) IsMember(ctx context.Context, workspaceID, accountID string) (bool, error) {
	m, err := s.memberships.Find(ctx, workspaceID, accountID)
	if err != nil {
		return false, model.NewDownstreamError(err)
	}
	return m != nil, nil
}

// IsOwner は呼び出し元がワークスペースのownerかを返す。
func (s *Service) IsOwner(ctx context.Context, workspaceID, accountID string) (bool, error) {
	m, err := s.memberships.Find(ctx, workspaceID, accountID)
	if err != nil {
		return false, model.NewDownstreamError(err)
	}
	return m != nil && m.Role == model.RoleOwner, nil
}

// requireOwner はowner専用操作の権限チェックを行う。
func (s *Service) requireOwner(ctx context.Context, workspaceID, accountID string) error {
	owner, err := s.IsOwner(ctx, workspaceID, accountID)
	if err != nil {
		return err
	}
	if !owner {
		return model.NewAuthorizationError(model.ErrCodeNotWorkspaceOwner, "この操作はワークスペースのオーナーのみ実行できます。")
	}
	return nil
}

// generateInviteToken は暗号論的に推測不能なURLセーフの招待トークンを生成する。
func generateInviteToken() (string, error) {
	b := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
