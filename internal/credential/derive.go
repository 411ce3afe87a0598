// Package credential はTelegramユーザーIDから外部認証プロバイダー用の
// 合成メール/パスワードを決定論的に導出する。
// すべて純粋関数であり、導出結果は永続化せずログインのたびに再計算する。
package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// 導出パスワードの16進プレフィックス長。HMAC-SHA256の前半128ビット分。
const secretPrefixLen = 32

// passwordSuffix はプロバイダーのパスワード要件
// （大文字・小文字・数字・記号を各1文字以上）を常に満たすための固定サフィックス。
const passwordSuffix = "aA1!"

// DeriveEmail はTelegramユーザーIDから合成メールアドレスを導出する。
// ユーザーには表示されず、同じIDに対して永続的に同じ値を返す。
func DeriveEmail(telegramUserID int64) string {
	return fmt.Sprintf("tg-%d@id.coachhub.internal", telegramUserID)
}

// DeriveSecret はTelegramユーザーIDとサーバーシークレットから
// プロバイダー用パスワードを導出する。
// ログインごとにアカウントのパスワードを本導出値で再設定するため、
// サーバーシークレットをローテーションしてもマイグレーションは不要で、
// 各ユーザーが次に1回ログインすれば自己修復される。
func DeriveSecret(telegramUserID int64, serverSecret string) string {
	mac := hmac.New(sha256.New, []byte(serverSecret))
	fmt.Fprintf(mac, "identity:%d", telegramUserID)
	digest := hex.EncodeToString(mac.Sum(nil))
	return digest[:secretPrefixLen] + passwordSuffix
}
