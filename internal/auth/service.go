// Package auth はTelegram initData検証からセッション発行までの
// ログインフローを提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/coachhub/internal/authapi"
	"github.com/hitoshi/coachhub/internal/credential"
	"github.com/hitoshi/coachhub/internal/initdata"
	"github.com/hitoshi/coachhub/internal/model"
	"github.com/hitoshi/coachhub/internal/repository"
)

// ProviderClient は外部認証プロバイダーへの操作インターフェース。
// authapi.Clientの部分集合として定義する。
type ProviderClient interface {
	AdminCreateAccount(ctx context.Context, email, password string, meta authapi.Metadata) (*authapi.Account, error)
	AdminFindAccountByEmail(ctx context.Context, email string) (*authapi.Account, error)
	AdminUpdateAccount(ctx context.Context, accountID, password string, meta authapi.Metadata) error
	SignInWithPassword(ctx context.Context, email, password string) (*authapi.TokenPair, error)
}

// MetricsRecorder はログインフローのメトリクス収集インターフェース。
type MetricsRecorder interface {
	RecordLoginSuccess(isNewAccount bool)
	RecordLoginFailure(stage string)
	RecordLoginLatency(d time.Duration)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BotToken         string        // initData署名検証用の共有シークレット
	CredentialSecret string        // 合成パスワード導出用のサーバーシークレット
	InitDataMaxAge   time.Duration // initDataの最大許容経過時間
}

// Service は検証・導出・紐付け・セッション発行を1つのログインフローとして提供する。
// どのステップの失敗もフロー全体を失敗させる（fail-closed）。
// エラーと同時にトークンが返ることはない。
type Service struct {
	provider  ProviderClient
	identRepo repository.IdentityRepository
	metrics   MetricsRecorder
	config    ServiceConfig
}

// NewService はServiceを生成する。
func NewService(provider ProviderClient, identRepo repository.IdentityRepository, metrics MetricsRecorder, config ServiceConfig) *Service {
	return &Service{
		provider:  provider,
		identRepo: identRepo,
		metrics:   metrics,
		config:    config,
	}
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	AccountID    string
	IsNewAccount bool
}

// Login はinitDataを検証し、アカウントを冪等に紐付け、セッショントークンを発行する。
//
// フロー: 署名検証 → 資格情報導出 → アカウント紐付け → パスワードサインイン。
// リトライは行わず、下流の失敗は即座にDownstreamErrorとして呼び出し元へ返す。
func (s *Service) Login(ctx context.Context, rawInitData string) (*LoginResult, error) {
	start := time.Now()

	claims, err := initdata.Verify(rawInitData, s.config.BotToken, s.config.InitDataMaxAge, time.Now())
	if err != nil {
		s.metrics.RecordLoginFailure("verify")
		return nil, classifyVerifyError(err)
	}

	email := credential.DeriveEmail(claims.UserID)
	secret := credential.DeriveSecret(claims.UserID, s.config.CredentialSecret)

	accountID, isNew, err := s.bind(ctx, claims, email, secret)
	if err != nil {
		s.metrics.RecordLoginFailure("bind")
		return nil, err
	}

	pair, err := s.provider.SignInWithPassword(ctx, email, secret)
	if err != nil {
		s.metrics.RecordLoginFailure("signin")
		return nil, model.NewDownstreamError(err)
	}

	s.metrics.RecordLoginSuccess(isNew)
	s.metrics.RecordLoginLatency(time.Since(start))

	if isNew {
		slog.Info("new account bound",
			slog.Int64("telegram_user_id", claims.UserID),
			slog.String("account_id", accountID),
		)
	} else {
		slog.Info("existing account logged in",
			slog.Int64("telegram_user_id", claims.UserID),
			slog.String("account_id", accountID),
		)
	}

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		AccountID:    accountID,
		IsNewAccount: isNew,
	}, nil
}

// bind はTelegramユーザーIDを内部アカウントIDへ冪等に紐付ける。
//
// identity行が存在すれば既存のアカウントIDを再利用し、なければプロバイダーに
// アカウントを作成する。作成が「メール重複」で失敗した場合は、過去のクラッシュで
// identity行を書く前に作成済みになった孤児アカウントとみなし、メール照合で
// 回収して再紐付けする（再拒否ではなく修復）。
//
// どちらの経路でもidentity行をUPSERTし、その後アカウントのパスワードを
// 導出値で無条件に再設定する。この再設定によりサーバーシークレットの
// ローテーションはマイグレーションなしで自己修復される。
func (s *Service) bind(ctx context.Context, claims *initdata.ClaimSet, email, secret string) (accountID string, isNew bool, err error) {
	identity, err := s.identRepo.FindByTelegramUserID(ctx, claims.UserID)
	if err != nil {
		return "", false, model.NewDownstreamError(err)
	}

	meta := authapi.Metadata{
		TelegramUserID: claims.UserID,
		Username:       strings.TrimSpace(claims.Username),
		FirstName:      strings.TrimSpace(claims.FirstName),
		LastName:       strings.TrimSpace(claims.LastName),
	}

	if identity != nil {
		accountID = identity.AccountID
	} else {
		account, createErr := s.provider.AdminCreateAccount(ctx, email, secret, meta)
		switch {
		case createErr == nil:
			accountID = account.ID
			isNew = true
		case errors.Is(createErr, authapi.ErrEmailExists):
			orphan, findErr := s.provider.AdminFindAccountByEmail(ctx, email)
			if findErr != nil {
				return "", false, model.NewDownstreamError(findErr)
			}
			if orphan == nil {
				return "", false, model.NewDownstreamError(createErr)
			}
			slog.Warn("adopted orphaned provider account",
				slog.Int64("telegram_user_id", claims.UserID),
				slog.String("account_id", orphan.ID),
			)
			accountID = orphan.ID
		default:
			return "", false, model.NewDownstreamError(createErr)
		}
	}

	now := time.Now().UTC()
	err = s.identRepo.Upsert(ctx, &model.TelegramIdentity{
		ID:             uuid.New().String(),
		TelegramUserID: claims.UserID,
		AccountID:      accountID,
		Email:          email,
		Username:       meta.Username,
		FirstName:      meta.FirstName,
		LastName:       meta.LastName,
		CreatedAt:      now,
		LastAuthAt:     now,
	})
	if err != nil {
		return "", false, model.NewDownstreamError(err)
	}

	// ログインごとの無条件パスワード再設定。
	if err := s.provider.AdminUpdateAccount(ctx, accountID, secret, meta); err != nil {
		return "", false, model.NewDownstreamError(err)
	}

	return accountID, isNew, nil
}

// classifyVerifyError は検証エラーをエラー分類に変換する。
// 形式不正はValidation、署名・鮮度の不一致はAuthenticationとして扱う。
func classifyVerifyError(err error) *model.AppError {
	switch {
	case errors.Is(err, initdata.ErrMissingField), errors.Is(err, initdata.ErrMalformed):
		return model.NewValidationError(model.ErrCodeInvalidInitData, "initDataの形式が不正です。")
	default:
		return model.NewAuthenticationError(err)
	}
}
