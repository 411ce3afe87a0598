package workspace

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/coachhub/internal/model"
	"github.com/hitoshi/coachhub/internal/repository"
)

// mockWorkspaceRepo はWorkspaceRepositoryのモック実装
type mockWorkspaceRepo struct {
	CreateFn        func(ctx context.Context, ws *model.Workspace, ownerMembership *model.Membership) error
	FindByIDFn      func(ctx context.Context, id string) (*model.Workspace, error)
	ListByAccountFn func(ctx context.Context, accountID string) ([]*model.Workspace, error)
}

func (m *mockWorkspaceRepo) Create(ctx context.Context, ws *model.Workspace, ownerMembership *model.Membership) error {
	return m.CreateFn(ctx, ws, ownerMembership)
}

func (m *mockWorkspaceRepo) FindByID(ctx context.Context, id string) (*model.Workspace, error) {
	return m.FindByIDFn(ctx, id)
}

func (m *mockWorkspaceRepo) ListByAccount(ctx context.Context, accountID string) ([]*model.Workspace, error) {
	return m.ListByAccountFn(ctx, accountID)
}

// mockMembershipRepo はMembershipRepositoryのモック実装
type mockMembershipRepo struct {
	FindFn              func(ctx context.Context, workspaceID, accountID string) (*model.Membership, error)
	UpsertFn            func(ctx context.Context, m *model.Membership) error
	UpsertWithRatchetFn func(ctx context.Context, m *model.Membership) error
	ListByWorkspaceFn   func(ctx context.Context, workspaceID string) ([]model.Member, error)
}

func (m *mockMembershipRepo) Find(ctx context.Context, workspaceID, accountID string) (*model.Membership, error) {
	return m.FindFn(ctx, workspaceID, accountID)
}

func (m *mockMembershipRepo) Upsert(ctx context.Context, mem *model.Membership) error {
	return m.UpsertFn(ctx, mem)
}

func (m *mockMembershipRepo) UpsertWithRatchet(ctx context.Context, mem *model.Membership) error {
	return m.UpsertWithRatchetFn(ctx, mem)
}

func (m *mockMembershipRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]model.Member, error) {
	return m.ListByWorkspaceFn(ctx, workspaceID)
}

// mockInviteRepo はInviteRepositoryのモック実装
type mockInviteRepo struct {
	CreateFn       func(ctx context.Context, inv *model.Invite) error
	FindByTokenFn  func(ctx context.Context, token string) (*model.Invite, error)
	MarkAcceptedFn func(ctx context.Context, inviteID, accountID string, at time.Time) (bool, error)
}

func (m *mockInviteRepo) Create(ctx context.Context, inv *model.Invite) error {
	return m.CreateFn(ctx, inv)
}

func (m *mockInviteRepo) FindByToken(ctx context.Context, token string) (*model.Invite, error) {
	return m.FindByTokenFn(ctx, token)
}

func (m *mockInviteRepo) MarkAccepted(ctx context.Context, inviteID, accountID string, at time.Time) (bool, error) {
	return m.MarkAcceptedFn(ctx, inviteID, accountID, at)
}

// mockIdentityRepo はIdentityRepositoryのモック実装
type mockIdentityRepo struct {
	FindByTelegramUserIDFn func(ctx context.Context, telegramUserID int64) (*model.TelegramIdentity, error)
	FindByEmailFn          func(ctx context.Context, email string) (*model.TelegramIdentity, error)
	UpsertFn               func(ctx context.Context, identity *model.TelegramIdentity) error
}

func (m *mockIdentityRepo) FindByTelegramUserID(ctx context.Context, telegramUserID int64) (*model.TelegramIdentity, error) {
	return m.FindByTelegramUserIDFn(ctx, telegramUserID)
}

func (m *mockIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.TelegramIdentity, error) {
	return m.FindByEmailFn(ctx, email)
}

func (m *mockIdentityRepo) Upsert(ctx context.Context, identity *model.TelegramIdentity) error {
	return m.UpsertFn(ctx, identity)
}

type nopMetrics struct{}

func (nopMetrics) RecordInviteCreated()  {}
func (nopMetrics) RecordInviteAccepted() {}

// compile-time interface check
var (
	_ repository.WorkspaceRepository  = (*mockWorkspaceRepo)(nil)
	_ repository.MembershipRepository = (*mockMembershipRepo)(nil)
	_ repository.InviteRepository     = (*mockInviteRepo)(nil)
	_ repository.IdentityRepository   = (*mockIdentityRepo)(nil)
	_ MetricsRecorder                 = nopMetrics{}
)

func ownerMembershipRepo(workspaceID, ownerID string) *mockMembershipRepo {
	return &mockMembershipRepo{
		FindFn: func(_ context.Context, wsID, accID string) (*model.Membership, error) {
			if wsID == workspaceID && accID == ownerID {
				return &model.Membership{WorkspaceID: wsID, AccountID: accID, Role: model.RoleOwner}, nil
			}
			return nil, nil
		},
	}
}

func TestCreateWorkspaceWithOwner_Success(t *testing.T) {
	var gotWS *model.Workspace
	var gotMembership *model.Membership

	svc := NewService(
		&mockWorkspaceRepo{
			CreateFn: func(_ context.Context, ws *model.Workspace, m *model.Membership) error {
				gotWS = ws
				gotMembership = m
				return nil
			},
		},
		&mockMembershipRepo{}, &mockInviteRepo{}, &mockIdentityRepo{}, nopMetrics{},
	)

	ws, err := svc.CreateWorkspaceWithOwner(context.Background(), "acc-1", "  営業チーム  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ws.Name != "営業チーム" {
		t.Errorf("name not trimmed: got %q", ws.Name)
	}
	if gotWS == nil || gotMembership == nil {
		t.Fatal("workspace and owner membership should be created together")
	}
	if gotMembership.Role != model.RoleOwner {
		t.Errorf("creator role = %q, want owner", gotMembership.Role)
	}
	if gotMembership.WorkspaceID != gotWS.ID {
		t.Error("owner membership should reference the new workspace")
	}
	if gotMembership.AccountID != "acc-1" {
		t.Errorf("owner account = %q, want acc-1", gotMembership.AccountID)
	}
}

func TestCreateWorkspaceWithOwner_BlankName(t *testing.T) {
	svc := NewService(
		&mockWorkspaceRepo{
			CreateFn: func(_ context.Context, _ *model.Workspace, _ *model.Membership) error {
				t.Fatal("Create should not be called for blank name")
				return nil
			},
		},
		&mockMembershipRepo{}, &mockInviteRepo{}, &mockIdentityRepo{}, nopMetrics{},
	)

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := svc.CreateWorkspaceWithOwner(context.Background(), "acc-1", name)
		var appErr *model.AppError
		if !errors.As(err, &appErr) || appErr.Kind != model.KindValidation {
			t.Errorf("name %q: want validation error, got %v", name, err)
		}
	}
}

func TestBootstrap_ProvisionsDefaultWorkspace(t *testing.T) {
	created := false
	svc := NewService(
		&mockWorkspaceRepo{
			ListByAccountFn: func(_ context.Context, _ string) ([]*model.Workspace, error) {
				return nil, nil
			},
			CreateFn: func(_ context.Context, ws *model.Workspace, m *model.Membership) error {
				created = true
				if ws.Name == "" {
					t.Error("default workspace should have a name")
				}
				if m.Role != model.RoleOwner {
					t.Errorf("bootstrap role = %q, want owner", m.Role)
				}
				return nil
			},
		},
		&mockMembershipRepo{}, &mockInviteRepo{}, &mockIdentityRepo{}, nopMetrics{},
	)

	list, err := svc.Bootstrap(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("default workspace should be provisioned for a fresh account")
	}
	if len(list) != 1 {
		t.Fatalf("got %d workspaces, want 1", len(list))
	}
}

func TestBootstrap_ExistingWorkspaces(t *testing.T) {
	existing := []*model.Workspace{{ID: "ws-1", Name: "既存"}}
	svc := NewService(
		&mockWorkspaceRepo{
			ListByAccountFn: func(_ context.Context, _ string) ([]*model.Workspace, error) {
				return existing, nil
			},
			CreateFn: func(_ context.Context, _ *model.Workspace, _ *model.Membership) error {
				t.Fatal("Create should not be called when workspaces exist")
				return nil
			},
		},
		&mockMembershipRepo{}, &mockInviteRepo{}, &mockIdentityRepo{}, nopMetrics{},
	)

	list, err := svc.Bootstrap(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "ws-1" {
		t.Errorf("unexpected workspace list: %+v", list)
	}
}

func TestCreateInvite_OwnerOnly(t *testing.T) {
	memberships := &mockMembershipRepo{
		FindFn: func(_ context.Context, _, _ string) (*model.Membership, error) {
			return &model.Membership{Role: model.RoleCoach}, nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, &mockInviteRepo{}, &mockIdentityRepo{}, nopMetrics{})

	_, err := svc.CreateInvite(context.Background(), "acc-coach", "ws-1", 0)
	var appErr *model.AppError
	if !errors.As(err, &appErr) || appErr.Kind != model.KindAuthorization {
		t.Fatalf("want authorization error for coach caller, got %v", err)
	}
}

func TestCreateInvite_TokenShapeAndUniqueness(t *testing.T) {
	var stored []*model.Invite
	invites := &mockInviteRepo{
		CreateFn: func(_ context.Context, inv *model.Invite) error {
			stored = append(stored, inv)
			return nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, ownerMembershipRepo("ws-1", "acc-owner"), invites, &mockIdentityRepo{}, nopMetrics{})

	t1, err := svc.CreateInvite(context.Background(), "acc-owner", "ws-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t2, err := svc.CreateInvite(context.Background(), "acc-owner", "ws-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if t1 == t2 {
		t.Error("two invite tokens should never collide")
	}
	for _, tok := range []string{t1, t2} {
		raw, err := base64.RawURLEncoding.DecodeString(tok)
		if err != nil {
			t.Errorf("token %q is not URL-safe base64: %v", tok, err)
			continue
		}
		if len(raw) != inviteTokenBytes {
			t.Errorf("token entropy = %d bytes, want %d", len(raw), inviteTokenBytes)
		}
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d invites, want 2", len(stored))
	}
	if stored[0].Role != model.RoleCoach {
		t.Errorf("invite role = %q, want coach", stored[0].Role)
	}
}

func TestCreateInvite_TTLClamping(t *testing.T) {
	tests := []struct {
		name      string
		ttlHours  int
		wantHours int
	}{
		{"zero uses default", 0, defaultInviteTTLHours},
		{"negative clamps up to minimum", -5, minInviteTTLHours},
		{"large negative clamps up to minimum", -10000, minInviteTTLHours},
		{"above maximum clamps down", 10000, maxInviteTTLHours},
		{"in range passes through", 24, 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *model.Invite
			invites := &mockInviteRepo{
				CreateFn: func(_ context.Context, inv *model.Invite) error {
					got = inv
					return nil
				},
			}
			svc := NewService(&mockWorkspaceRepo{}, ownerMembershipRepo("ws-1", "acc-owner"), invites, &mockIdentityRepo{}, nopMetrics{})

			before := time.Now().UTC()
			if _, err := svc.CreateInvite(context.Background(), "acc-owner", "ws-1", tt.ttlHours); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			after := time.Now().UTC()

			minExpiry := before.Add(time.Duration(tt.wantHours) * time.Hour)
			maxExpiry := after.Add(time.Duration(tt.wantHours) * time.Hour)
			if got.ExpiresAt.Before(minExpiry) || got.ExpiresAt.After(maxExpiry) {
				t.Errorf("expiry %v outside [%v, %v]", got.ExpiresAt, minExpiry, maxExpiry)
			}
		})
	}
}

func TestAcceptInvite_Success(t *testing.T) {
	now := time.Now().UTC()
	inv := &model.Invite{
		ID:          "inv-1",
		WorkspaceID: "ws-1",
		Role:        model.RoleCoach,
		Token:       "tok",
		ExpiresAt:   now.Add(time.Hour),
	}

	var ratcheted *model.Membership
	markedID := ""
	memberships := &mockMembershipRepo{
		UpsertWithRatchetFn: func(_ context.Context, m *model.Membership) error {
			ratcheted = m
			return nil
		},
	}
	invites := &mockInviteRepo{
		FindByTokenFn: func(_ context.Context, token string) (*model.Invite, error) {
			if token == "tok" {
				return inv, nil
			}
			return nil, nil
		},
		MarkAcceptedFn: func(_ context.Context, inviteID, accountID string, _ time.Time) (bool, error) {
			markedID = inviteID
			if accountID != "acc-2" {
				t.Errorf("accepted_by = %q, want acc-2", accountID)
			}
			return true, nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, invites, &mockIdentityRepo{}, nopMetrics{})

	wsID, err := svc.AcceptInvite(context.Background(), "acc-2", "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsID != "ws-1" {
		t.Errorf("workspace = %q, want ws-1", wsID)
	}
	if ratcheted == nil {
		t.Fatal("membership should be upserted via the ratchet path")
	}
	if ratcheted.Role != model.RoleCoach {
		t.Errorf("membership role = %q, want coach", ratcheted.Role)
	}
	if markedID != "inv-1" {
		t.Errorf("marked invite = %q, want inv-1", markedID)
	}
}

func TestAcceptInvite_NotFound(t *testing.T) {
	invites := &mockInviteRepo{
		FindByTokenFn: func(_ context.Context, _ string) (*model.Invite, error) {
			return nil, nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, &mockMembershipRepo{}, invites, &mockIdentityRepo{}, nopMetrics{})

	_, err := svc.AcceptInvite(context.Background(), "acc-2", "no-such-token")
	var appErr *model.AppError
	if !errors.As(err, &appErr) || appErr.Kind != model.KindNotFound {
		t.Fatalf("want not found error, got %v", err)
	}
}

func TestAcceptInvite_Expired(t *testing.T) {
	inv := &model.Invite{
		ID:          "inv-1",
		WorkspaceID: "ws-1",
		Role:        model.RoleCoach,
		ExpiresAt:   time.Now().UTC().Add(-time.Minute),
	}
	invites := &mockInviteRepo{
		FindByTokenFn: func(_ context.Context, _ string) (*model.Invite, error) {
			return inv, nil
		},
	}
	memberships := &mockMembershipRepo{
		UpsertWithRatchetFn: func(_ context.Context, _ *model.Membership) error {
			t.Fatal("expired invite must not grant membership")
			return nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, invites, &mockIdentityRepo{}, nopMetrics{})

	_, err := svc.AcceptInvite(context.Background(), "acc-2", "tok")
	var appErr *model.AppError
	if !errors.As(err, &appErr) || appErr.Kind != model.KindState {
		t.Fatalf("want state error for expired invite, got %v", err)
	}
	if appErr.Code != model.ErrCodeInviteExpired {
		t.Errorf("code = %q, want %q", appErr.Code, model.ErrCodeInviteExpired)
	}
}

func TestAcceptInvite_IdempotentReaccept(t *testing.T) {
	acceptedAt := time.Now().UTC().Add(-time.Hour)
	inv := &model.Invite{
		ID:          "inv-1",
		WorkspaceID: "ws-1",
		Role:        model.RoleCoach,
		// 受諾済みだが期限も切れている: 受諾状態が優先される
		ExpiresAt:  time.Now().UTC().Add(-time.Minute),
		AcceptedAt: &acceptedAt,
		AcceptedBy: "acc-2",
	}
	invites := &mockInviteRepo{
		FindByTokenFn: func(_ context.Context, _ string) (*model.Invite, error) {
			return inv, nil
		},
	}
	memberships := &mockMembershipRepo{
		UpsertWithRatchetFn: func(_ context.Context, _ *model.Membership) error {
			t.Fatal("re-acceptance should not touch membership")
			return nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, invites, &mockIdentityRepo{}, nopMetrics{})

	wsID, err := svc.AcceptInvite(context.Background(), "acc-2", "tok")
	if err != nil {
		t.Fatalf("same-account re-accept should succeed: %v", err)
	}
	if wsID != "ws-1" {
		t.Errorf("workspace = %q, want ws-1", wsID)
	}
}

func TestAcceptInvite_AlreadyUsedByOther(t *testing.T) {
	acceptedAt := time.Now().UTC().Add(-time.Hour)
	inv := &model.Invite{
		ID:          "inv-1",
		WorkspaceID: "ws-1",
		Role:        model.RoleCoach,
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
		AcceptedAt:  &acceptedAt,
		AcceptedBy:  "acc-2",
	}
	invites := &mockInviteRepo{
		FindByTokenFn: func(_ context.Context, _ string) (*model.Invite, error) {
			return inv, nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, &mockMembershipRepo{}, invites, &mockIdentityRepo{}, nopMetrics{})

	_, err := svc.AcceptInvite(context.Background(), "acc-3", "tok")
	var appErr *model.AppError
	if !errors.As(err, &appErr) || appErr.Kind != model.KindState {
		t.Fatalf("want state error for reused invite, got %v", err)
	}
	if appErr.Code != model.ErrCodeInviteAccepted {
		t.Errorf("code = %q, want %q", appErr.Code, model.ErrCodeInviteAccepted)
	}
}

// 2アカウントが同一トークンを同時に受諾し、受諾済みチェックを両方すり抜けた場合、
// 招待行を確定できなかった側（敗者）はエラーを受け取ることを検証する。
func TestAcceptInvite_ConcurrentLoserRejected(t *testing.T) {
	now := time.Now().UTC()
	pending := &model.Invite{
		ID:          "inv-1",
		WorkspaceID: "ws-1",
		Role:        model.RoleCoach,
		Token:       "tok",
		ExpiresAt:   now.Add(time.Hour),
	}
	winnerAt := now
	claimedByWinner := &model.Invite{
		ID:          "inv-1",
		WorkspaceID: "ws-1",
		Role:        model.RoleCoach,
		Token:       "tok",
		ExpiresAt:   now.Add(time.Hour),
		AcceptedAt:  &winnerAt,
		AcceptedBy:  "acc-winner",
	}

	// 1回目のFindByTokenは未受諾を返し、MarkAcceptedの時点では
	// 別アカウントが先に確定している状況を再現する。
	finds := 0
	invites := &mockInviteRepo{
		FindByTokenFn: func(_ context.Context, _ string) (*model.Invite, error) {
			finds++
			if finds == 1 {
				return pending, nil
			}
			return claimedByWinner, nil
		},
		MarkAcceptedFn: func(_ context.Context, _, _ string, _ time.Time) (bool, error) {
			return false, nil
		},
	}
	memberships := &mockMembershipRepo{
		UpsertWithRatchetFn: func(_ context.Context, _ *model.Membership) error {
			return nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, invites, &mockIdentityRepo{}, nopMetrics{})

	_, err := svc.AcceptInvite(context.Background(), "acc-loser", "tok")
	var appErr *model.AppError
	if !errors.As(err, &appErr) || appErr.Kind != model.KindState {
		t.Fatalf("race loser should get a state error, got %v", err)
	}
	if appErr.Code != model.ErrCodeInviteAccepted {
		t.Errorf("code = %q, want %q", appErr.Code, model.ErrCodeInviteAccepted)
	}
	if finds != 2 {
		t.Errorf("invite should be re-read after a failed claim, got %d reads", finds)
	}
}

// 同一アカウントの重複リクエストが受諾済みチェックとMarkAcceptedの間で競合しても、
// 成功として扱われることを検証する。
func TestAcceptInvite_ConcurrentSameAccountSucceeds(t *testing.T) {
	now := time.Now().UTC()
	pending := &model.Invite{
		ID:          "inv-1",
		WorkspaceID: "ws-1",
		Role:        model.RoleCoach,
		Token:       "tok",
		ExpiresAt:   now.Add(time.Hour),
	}
	selfAt := now
	claimedBySelf := &model.Invite{
		ID:          "inv-1",
		WorkspaceID: "ws-1",
		Role:        model.RoleCoach,
		Token:       "tok",
		ExpiresAt:   now.Add(time.Hour),
		AcceptedAt:  &selfAt,
		AcceptedBy:  "acc-2",
	}

	finds := 0
	invites := &mockInviteRepo{
		FindByTokenFn: func(_ context.Context, _ string) (*model.Invite, error) {
			finds++
			if finds == 1 {
				return pending, nil
			}
			return claimedBySelf, nil
		},
		MarkAcceptedFn: func(_ context.Context, _, _ string, _ time.Time) (bool, error) {
			return false, nil
		},
	}
	memberships := &mockMembershipRepo{
		UpsertWithRatchetFn: func(_ context.Context, _ *model.Membership) error {
			return nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, invites, &mockIdentityRepo{}, nopMetrics{})

	wsID, err := svc.AcceptInvite(context.Background(), "acc-2", "tok")
	if err != nil {
		t.Fatalf("same-account duplicate request should succeed: %v", err)
	}
	if wsID != "ws-1" {
		t.Errorf("workspace = %q, want ws-1", wsID)
	}
}

func TestInviteByEmail_Success(t *testing.T) {
	var upserted *model.Membership
	memberships := ownerMembershipRepo("ws-1", "acc-owner")
	memberships.UpsertFn = func(_ context.Context, m *model.Membership) error {
		upserted = m
		return nil
	}
	memberships.UpsertWithRatchetFn = func(_ context.Context, _ *model.Membership) error {
		t.Fatal("email assignment must not use the ratchet path")
		return nil
	}
	identities := &mockIdentityRepo{
		FindByEmailFn: func(_ context.Context, email string) (*model.TelegramIdentity, error) {
			if email != "tg-555@id.coachhub.internal" {
				t.Errorf("lookup email = %q, want normalized form", email)
			}
			return &model.TelegramIdentity{AccountID: "acc-target", Email: email}, nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, &mockInviteRepo{}, identities, nopMetrics{})

	err := svc.InviteByEmail(context.Background(), "acc-owner", "ws-1", "  TG-555@ID.Coachhub.Internal  ", model.RoleMember)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upserted == nil {
		t.Fatal("membership should be upserted")
	}
	if upserted.AccountID != "acc-target" || upserted.Role != model.RoleMember {
		t.Errorf("unexpected membership: %+v", upserted)
	}
}

func TestInviteByEmail_DefaultsToMemberRole(t *testing.T) {
	var upserted *model.Membership
	memberships := ownerMembershipRepo("ws-1", "acc-owner")
	memberships.UpsertFn = func(_ context.Context, m *model.Membership) error {
		upserted = m
		return nil
	}
	identities := &mockIdentityRepo{
		FindByEmailFn: func(_ context.Context, email string) (*model.TelegramIdentity, error) {
			return &model.TelegramIdentity{AccountID: "acc-target", Email: email}, nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, &mockInviteRepo{}, identities, nopMetrics{})

	if err := svc.InviteByEmail(context.Background(), "acc-owner", "ws-1", "a@example.com", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upserted.Role != model.RoleMember {
		t.Errorf("default role = %q, want member", upserted.Role)
	}
}

func TestInviteByEmail_Rejections(t *testing.T) {
	identities := &mockIdentityRepo{
		FindByEmailFn: func(_ context.Context, _ string) (*model.TelegramIdentity, error) {
			return nil, nil
		},
	}

	tests := []struct {
		name     string
		caller   string
		role     model.Role
		wantKind model.ErrorKind
		wantCode string
	}{
		{"non-owner caller", "acc-other", model.RoleMember, model.KindAuthorization, model.ErrCodeNotWorkspaceOwner},
		{"owner role not assignable", "acc-owner", model.RoleOwner, model.KindValidation, model.ErrCodeInvalidRole},
		{"unknown role", "acc-owner", model.Role("admin"), model.KindValidation, model.ErrCodeInvalidRole},
		{"invitee never logged in", "acc-owner", model.RoleCoach, model.KindNotFound, model.ErrCodeInviteeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockWorkspaceRepo{}, ownerMembershipRepo("ws-1", "acc-owner"), &mockInviteRepo{}, identities, nopMetrics{})
			err := svc.InviteByEmail(context.Background(), tt.caller, "ws-1", "x@example.com", tt.role)
			var appErr *model.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("want AppError, got %v", err)
			}
			if appErr.Kind != tt.wantKind || appErr.Code != tt.wantCode {
				t.Errorf("got kind=%q code=%q, want kind=%q code=%q", appErr.Kind, appErr.Code, tt.wantKind, tt.wantCode)
			}
		})
	}
}

func TestListMembers_TotalOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	unsorted := []model.Member{
		{AccountID: "m2", Role: model.RoleMember, Label: "bob", JoinedAt: base.Add(2 * time.Hour)},
		{AccountID: "c1", Role: model.RoleCoach, Label: "Zoe", JoinedAt: base},
		{AccountID: "m1", Role: model.RoleMember, Label: "Bob", JoinedAt: base.Add(time.Hour)},
		{AccountID: "o1", Role: model.RoleOwner, Label: "alice", JoinedAt: base},
		{AccountID: "x1", Role: model.Role("ghost"), Label: "ann", JoinedAt: base},
		{AccountID: "c2", Role: model.RoleCoach, Label: "adam", JoinedAt: base},
	}
	memberships := &mockMembershipRepo{
		FindFn: func(_ context.Context, _, accID string) (*model.Membership, error) {
			return &model.Membership{AccountID: accID, Role: model.RoleMember}, nil
		},
		ListByWorkspaceFn: func(_ context.Context, _ string) ([]model.Member, error) {
			return unsorted, nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, &mockInviteRepo{}, &mockIdentityRepo{}, nopMetrics{})

	got, err := svc.ListMembers(context.Background(), "m1", "ws-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// owner → coach（ラベル順）→ member（大文字小文字無視、同ラベルは参加順）→ 未知ロール
	wantOrder := []string{"o1", "c2", "c1", "m1", "m2", "x1"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d members, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].AccountID != want {
			t.Errorf("position %d: got %q, want %q", i, got[i].AccountID, want)
		}
	}
}

func TestListMembers_NonMemberRejected(t *testing.T) {
	memberships := &mockMembershipRepo{
		FindFn: func(_ context.Context, _, _ string) (*model.Membership, error) {
			return nil, nil
		},
		ListByWorkspaceFn: func(_ context.Context, _ string) ([]model.Member, error) {
			t.Fatal("non-member must not see the member list")
			return nil, nil
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, &mockInviteRepo{}, &mockIdentityRepo{}, nopMetrics{})

	_, err := svc.ListMembers(context.Background(), "acc-stranger", "ws-1")
	var appErr *model.AppError
	if !errors.As(err, &appErr) || appErr.Kind != model.KindAuthorization {
		t.Fatalf("want authorization error, got %v", err)
	}
}

func TestIsOwner(t *testing.T) {
	memberships := &mockMembershipRepo{
		FindFn: func(_ context.Context, _, accID string) (*model.Membership, error) {
			switch accID {
			case "acc-owner":
				return &model.Membership{Role: model.RoleOwner}, nil
			case "acc-coach":
				return &model.Membership{Role: model.RoleCoach}, nil
			default:
				return nil, nil
			}
		},
	}
	svc := NewService(&mockWorkspaceRepo{}, memberships, &mockInviteRepo{}, &mockIdentityRepo{}, nopMetrics{})

	tests := []struct {
		accountID string
		want      bool
	}{
		{"acc-owner", true},
		{"acc-coach", false},
		{"acc-none", false},
	}
	for _, tt := range tests {
		got, err := svc.IsOwner(context.Background(), "ws-1", tt.accountID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsOwner(%q) = %v, want %v", tt.accountID, got, tt.want)
		}
	}
}
