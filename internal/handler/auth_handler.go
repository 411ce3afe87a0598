// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/coachhub/internal/auth"
	"github.com/hitoshi/coachhub/internal/middleware"
	"github.com/hitoshi/coachhub/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Login はinitDataを検証し、アカウントを冪等に紐付けてセッションを発行する。
	Login(ctx context.Context, rawInitData string) (*auth.LoginResult, error)
}

// AuthHandler はTelegram Mini App認証のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

type loginRequest struct {
	InitData string `json:"initData"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	IsNewUser    bool   `json:"isNewUser"`
}

// Login はMini AppのinitDataでログインする。
// POST /auth/telegram
//
// 成功時は200でアクセストークンとリフレッシュトークンを返す。
// 検証・紐付け・発行のいずれかが失敗した場合はトークンを一切返さない。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAppError(w, model.NewValidationError(model.ErrCodeInvalidRequest, "リクエストボディが不正です。"))
		return
	}
	if req.InitData == "" {
		middleware.WriteAppError(w, model.NewValidationError(model.ErrCodeInvalidRequest, "initDataは必須です。"))
		return
	}

	result, err := h.service.Login(r.Context(), req.InitData)
	if err != nil {
		middleware.WriteAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		UserID:       result.AccountID,
		IsNewUser:    result.IsNewAccount,
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
