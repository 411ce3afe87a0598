// Package authapi は外部認証プロバイダー（メール/パスワード型の
// マネージドIDバックエンド）へのHTTPクライアントを提供する。
// アカウントの管理者作成・更新とパスワードサインインのみを扱う。
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrEmailExists は導出メールのアカウントが既にプロバイダー側に
// 存在することを示す。呼び出し側はメールでの照合による修復を試みる。
var ErrEmailExists = errors.New("authapi: email already registered")

// Config はプロバイダークライアントの設定。
type Config struct {
	// BaseURL はプロバイダーAPIのベースURL。テスト時はhttptestサーバーを指す。
	BaseURL string
	// ServiceKey は管理者APIの認可に使うサービスキー。
	ServiceKey string
	// HTTPClient はテスト用にオーバーライド可能。未指定時はタイムアウト付きの既定値。
	HTTPClient *http.Client
}

// Client は外部認証プロバイダーAPIのクライアント。
type Client struct {
	config Config
}

// NewClient はClientを生成する。
func NewClient(config Config) *Client {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{config: config}
}

// Account はプロバイダー側アカウントのAPIレスポンス。
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// TokenPair はパスワードサインインで発行されるトークンペア。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Metadata はアカウントに付与するプロフィールメタデータ。
type Metadata struct {
	TelegramUserID int64  `json:"telegram_user_id"`
	Username       string `json:"username,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
}

// adminCreateRequest は管理者アカウント作成リクエストのボディ。
type adminCreateRequest struct {
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	EmailConfirm bool     `json:"email_confirm"`
	UserMetadata Metadata `json:"user_metadata"`
}

// AdminCreateAccount は確認済み状態のアカウントを管理者権限で作成する。
// 同一メールのアカウントが既に存在する場合はErrEmailExistsを返す。
func (c *Client) AdminCreateAccount(ctx context.Context, email, password string, meta Metadata) (*Account, error) {
	body := adminCreateRequest{
		Email:        email,
		Password:     password,
		EmailConfirm: true,
		UserMetadata: meta,
	}

	respBody, status, err := c.doJSON(ctx, http.MethodPost, "/admin/users", body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnprocessableEntity || status == http.StatusConflict {
		return nil, ErrEmailExists
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("admin create account failed with status %d: %s", status, string(respBody))
	}

	var account Account
	if err := json.Unmarshal(respBody, &account); err != nil {
		return nil, fmt.Errorf("failed to parse create account response: %w", err)
	}
	if account.ID == "" {
		return nil, fmt.Errorf("empty account id in create response")
	}
	return &account, nil
}

// AdminFindAccountByEmail はメールアドレスでアカウントを検索する。
// 見つからない場合はnilを返す。
func (c *Client) AdminFindAccountByEmail(ctx context.Context, email string) (*Account, error) {
	path := "/admin/users?email=" + url.QueryEscape(email)
	respBody, status, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("admin find account failed with status %d: %s", status, string(respBody))
	}

	var result struct {
		Users []Account `json:"users"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse find account response: %w", err)
	}

	for _, u := range result.Users {
		if strings.EqualFold(u.Email, email) {
			account := u
			return &account, nil
		}
	}
	return nil, nil
}

// adminUpdateRequest は管理者アカウント更新リクエストのボディ。
type adminUpdateRequest struct {
	Password     string   `json:"password"`
	UserMetadata Metadata `json:"user_metadata"`
}

// AdminUpdateAccount はアカウントのパスワードとメタデータを管理者権限で更新する。
// ログインごとのパスワード再設定（シークレットローテーションの自己修復）に使う。
func (c *Client) AdminUpdateAccount(ctx context.Context, accountID, password string, meta Metadata) error {
	body := adminUpdateRequest{Password: password, UserMetadata: meta}

	respBody, status, err := c.doJSON(ctx, http.MethodPut, "/admin/users/"+accountID, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("admin update account failed with status %d: %s", status, string(respBody))
	}
	return nil
}

// SignInWithPassword はメール/パスワードでサインインし、トークンペアを取得する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*TokenPair, error) {
	body := map[string]string{"email": email, "password": password}

	respBody, status, err := c.doJSON(ctx, http.MethodPost, "/token?grant_type=password", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("password sign-in failed with status %d: %s", status, string(respBody))
	}

	var pair TokenPair
	if err := json.Unmarshal(respBody, &pair); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, fmt.Errorf("incomplete token pair in response")
	}
	return &pair, nil
}

// doJSON はJSONボディ付きのHTTPリクエストを実行し、レスポンスボディと
// ステータスコードを返す。ステータスの解釈は呼び出し側で行う。
func (c *Client) doJSON(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ServiceKey)
	req.Header.Set("apikey", c.config.ServiceKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read provider response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}
