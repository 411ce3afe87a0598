package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/coachhub/internal/middleware"
	"github.com/hitoshi/coachhub/internal/model"
)

// WorkspaceServiceInterface はワークスペースハンドラーが必要とするサービスインターフェース。
type WorkspaceServiceInterface interface {
	CreateWorkspaceWithOwner(ctx context.Context, accountID, name string) (*model.Workspace, error)
	Bootstrap(ctx context.Context, accountID string) ([]*model.Workspace, error)
	CreateInvite(ctx context.Context, callerAccountID, workspaceID string, ttlHours int) (string, error)
	AcceptInvite(ctx context.Context, callerAccountID, token string) (string, error)
	InviteByEmail(ctx context.Context, callerAccountID, workspaceID, email string, role model.Role) error
	ListMembers(ctx context.Context, callerAccountID, workspaceID string) ([]model.Member, error)
}

// WorkspaceHandler はワークスペース管理のHTTPハンドラー。
type WorkspaceHandler struct {
	service WorkspaceServiceInterface
}

// NewWorkspaceHandler はWorkspaceHandlerを生成する。
func NewWorkspaceHandler(service WorkspaceServiceInterface) *WorkspaceHandler {
	return &WorkspaceHandler{
		service: service,
	}
}

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

type workspaceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateWorkspace はワークスペースを作成し、作成者をownerとして参加させる。
// POST /api/workspaces
func (h *WorkspaceHandler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAppError(w, model.NewValidationError(model.ErrCodeInvalidRequest, "リクエストボディが不正です。"))
		return
	}

	ws, err := h.service.CreateWorkspaceWithOwner(r.Context(), accountID, req.Name)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toWorkspaceResponse(ws))
}

// Bootstrap は呼び出し元の所属ワークスペース一覧を返す。
// 1つも所属していない場合はデフォルトのワークスペースを自動作成する。
// POST /api/bootstrap
func (h *WorkspaceHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	list, err := h.service.Bootstrap(r.Context(), accountID)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	resp := make([]workspaceResponse, 0, len(list))
	for _, ws := range list {
		resp = append(resp, toWorkspaceResponse(ws))
	}

	writeJSON(w, http.StatusOK, map[string]any{"workspaces": resp})
}

type createInviteRequest struct {
	TTLHours int `json:"ttlHours"`
}

// CreateInvite はcoach招待トークンを発行する。owner専用。
// POST /api/workspaces/{id}/invites
func (h *WorkspaceHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	workspaceID := chi.URLParam(r, "id")

	// ボディは省略可能（TTLは既定値となる）
	var req createInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteAppError(w, model.NewValidationError(model.ErrCodeInvalidRequest, "リクエストボディが不正です。"))
		return
	}

	token, err := h.service.CreateInvite(r.Context(), accountID, workspaceID, req.TTLHours)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

// AcceptInvite は招待トークンを受諾する。
// POST /api/invites/accept
func (h *WorkspaceHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req acceptInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		middleware.WriteAppError(w, model.NewValidationError(model.ErrCodeInvalidRequest, "tokenは必須です。"))
		return
	}

	workspaceID, err := h.service.AcceptInvite(r.Context(), accountID, req.Token)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"workspaceId": workspaceID})
}

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AddMemberByEmail はメールアドレスで既存アカウントをメンバーに追加する。owner専用。
// POST /api/workspaces/{id}/members
func (h *WorkspaceHandler) AddMemberByEmail(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	workspaceID := chi.URLParam(r, "id")

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		middleware.WriteAppError(w, model.NewValidationError(model.ErrCodeInvalidRequest, "emailは必須です。"))
		return
	}

	if err := h.service.InviteByEmail(r.Context(), accountID, workspaceID, req.Email, model.Role(req.Role)); err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type memberResponse struct {
	AccountID string    `json:"accountId"`
	Role      string    `json:"role"`
	Label     string    `json:"label"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// ListMembers はワークスペースのメンバー一覧を返す。メンバー専用。
// GET /api/workspaces/{id}/members
func (h *WorkspaceHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	workspaceID := chi.URLParam(r, "id")

	members, err := h.service.ListMembers(r.Context(), accountID, workspaceID)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	resp := make([]memberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, memberResponse{
			AccountID: m.AccountID,
			Role:      string(m.Role),
			Label:     m.Label,
			JoinedAt:  m.JoinedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": resp})
}

// --- ヘルパー関数 ---

func toWorkspaceResponse(ws *model.Workspace) workspaceResponse {
	return workspaceResponse{
		ID:        ws.ID,
		Name:      ws.Name,
		CreatedAt: ws.CreatedAt,
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "認証が必要です。",
		"code":  "UNAUTHORIZED",
	})
}
