package model

import "fmt"

// ErrorKind はエラーの分類を表す。HTTPステータスへの変換と
// ログ出力時の分類に使用する。
type ErrorKind string

const (
	// KindConfig は必須設定の欠落。リクエストでは回復不能（500）。
	KindConfig ErrorKind = "config"
	// KindValidation はリクエストボディや資格情報フィールドの形式不正。
	KindValidation ErrorKind = "validation"
	// KindAuthentication は署名不正・タイムスタンプ不正。
	KindAuthentication ErrorKind = "authentication"
	// KindAuthorization はオーナー専用操作を非オーナーが実行した等の権限不足。
	KindAuthorization ErrorKind = "authorization"
	// KindNotFound は未知の招待トークン・未知の招待先メールアドレス。
	KindNotFound ErrorKind = "not_found"
	// KindState は期限切れ招待・別アカウントによる受諾済み招待。
	KindState ErrorKind = "state"
	// KindDownstream は外部認証プロバイダーまたはストア呼び出しの失敗。
	KindDownstream ErrorKind = "downstream"
)

// 定義済みエラーコード
const (
	ErrCodeMissingConfig      = "MISSING_CONFIG"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidInitData    = "INVALID_INIT_DATA"
	ErrCodeNotWorkspaceOwner  = "NOT_WORKSPACE_OWNER"
	ErrCodeNotWorkspaceMember = "NOT_WORKSPACE_MEMBER"
	ErrCodeInviteNotFound     = "INVITE_NOT_FOUND"
	ErrCodeInviteExpired      = "INVITE_EXPIRED"
	ErrCodeInviteAccepted     = "INVITE_ALREADY_ACCEPTED"
	ErrCodeInviteeNotFound    = "INVITEE_NOT_FOUND"
	ErrCodeInvalidRole        = "INVALID_ROLE"
	ErrCodeBlankName          = "BLANK_WORKSPACE_NAME"
	ErrCodeDownstream         = "DOWNSTREAM_FAILED"
)

// AppError は統一エラーフォーマットを表す。
// 外側のリクエスト境界で1回だけHTTPレスポンスに変換され、
// 原因（cause）はサーバー側ログにのみ記録される。
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	cause   error
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は元となったエラーを返す。errors.Is / errors.As 用。
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewConfigError は設定欠落エラーを生成する。
func NewConfigError(message string) *AppError {
	return &AppError{Kind: KindConfig, Code: ErrCodeMissingConfig, Message: message}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(code, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: message}
}

// NewAuthenticationError は認証エラーを生成する。
// 署名検証の失敗理由はcauseとしてログに残し、レスポンスには含めない。
func NewAuthenticationError(cause error) *AppError {
	return &AppError{
		Kind:    KindAuthentication,
		Code:    ErrCodeInvalidInitData,
		Message: "認証情報の検証に失敗しました。",
		cause:   cause,
	}
}

// NewAuthorizationError は権限不足エラーを生成する。
func NewAuthorizationError(code, message string) *AppError {
	return &AppError{Kind: KindAuthorization, Code: code, Message: message}
}

// NewNotFoundError は対象未検出エラーを生成する。
func NewNotFoundError(code, message string) *AppError {
	return &AppError{Kind: KindNotFound, Code: code, Message: message}
}

// NewStateError は状態遷移不能エラーを生成する。
func NewStateError(code, message string) *AppError {
	return &AppError{Kind: KindState, Code: code, Message: message}
}

// NewDownstreamError は外部システム呼び出し失敗エラーを生成する。
// 下流のエラーメッセージをラップして伝搬する。
func NewDownstreamError(cause error) *AppError {
	return &AppError{
		Kind:    KindDownstream,
		Code:    ErrCodeDownstream,
		Message: "外部サービスの呼び出しに失敗しました。",
		cause:   cause,
	}
}
