// Package initdata はTelegram Mini AppのinitData署名検証を提供する。
// 検証は純粋関数として実装し、副作用を持たない。
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// 検証失敗の理由別エラー。
var (
	// ErrMissingField は必須フィールド（hash、auth_date、user.id等）の欠落。
	ErrMissingField = errors.New("initdata: missing required field")
	// ErrMalformed はフィールドの形式不正。
	ErrMalformed = errors.New("initdata: malformed field")
	// ErrExpired はauth_dateが許容期間より古い。
	ErrExpired = errors.New("initdata: auth_date expired")
	// ErrFutureTimestamp はauth_dateが未来すぎる。
	ErrFutureTimestamp = errors.New("initdata: auth_date is in the future")
	// ErrBadSignature は署名の不一致。
	ErrBadSignature = errors.New("initdata: signature mismatch")
)

// auth_dateが現在時刻より先行してよい許容幅。
// 端末とサーバーの時計ずれを吸収する。
const maxClockSkew = 30 * time.Second

// ClaimSet は検証済みinitDataから抽出したユーザークレーム。
type ClaimSet struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// pair はinitData内の1つのkey=valueフィールド。
// 同一キーの重複を許す順序付き多重集合として扱う。
type pair struct {
	key   string
	value string
}

// Verify はinitData文字列の署名と鮮度を検証し、ClaimSetを返す。
//
// 検証手順:
//  1. key=value列をパースし、hashフィールドを分離する
//  2. 残りをキーのバイト列昇順にソートし "key=value" を改行で連結
//  3. secretKey = HMAC-SHA256(key=botToken, msg="WebAppData")
//  4. expected = hex(HMAC-SHA256(key=secretKey, msg=連結文字列))
//  5. expectedとhashを定数時間で比較する
//  6. auth_dateの鮮度を確認する（未来方向は30秒まで、過去方向はmaxAgeまで）
func Verify(raw, botToken string, maxAge time.Duration, now time.Time) (*ClaimSet, error) {
	pairs, err := parsePairs(raw)
	if err != nil {
		return nil, err
	}

	var providedHash string
	fields := make([]pair, 0, len(pairs))
	for _, p := range pairs {
		if p.key == "hash" {
			providedHash = p.value
			continue
		}
		fields = append(fields, p)
	}
	if providedHash == "" {
		return nil, fmt.Errorf("%w: hash", ErrMissingField)
	}

	expected := computeSignature(fields, botToken)
	if !constantTimeEqualFold(expected, providedHash) {
		return nil, ErrBadSignature
	}

	if err := checkFreshness(fields, maxAge, now); err != nil {
		return nil, err
	}

	return parseClaims(fields)
}

// parsePairs はinitDataをURLエンコードされたkey=value列としてパースする。
// フィールドの出現順を保持する。
func parsePairs(raw string) ([]pair, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty init data", ErrMalformed)
	}

	parts := strings.Split(raw, "&")
	pairs := make([]pair, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		pairs = append(pairs, pair{key: key, value: value})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrMalformed)
	}
	return pairs, nil
}

// computeSignature はhash以外のフィールドから期待署名を計算する。
func computeSignature(fields []pair, botToken string) string {
	sorted := make([]pair, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].key < sorted[j].key
	})

	lines := make([]string, len(sorted))
	for i, p := range sorted {
		lines[i] = p.key + "=" + p.value
	}
	message := strings.Join(lines, "\n")

	keyMAC := hmac.New(sha256.New, []byte(botToken))
	keyMAC.Write([]byte("WebAppData"))
	secretKey := keyMAC.Sum(nil)

	sigMAC := hmac.New(sha256.New, secretKey)
	sigMAC.Write([]byte(message))
	return hex.EncodeToString(sigMAC.Sum(nil))
}

// constantTimeEqualFold は16進文字列を大文字小文字を無視して定数時間で比較する。
// 長さが異なる場合のみ即座に失敗し、それ以外は全長のXOR累積で判定する。
// 早期リターンによるタイミングリークを避けるため、途中で打ち切らない。
func constantTimeEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var acc byte
	for i := 0; i < len(a); i++ {
		acc |= lowerHex(a[i]) ^ lowerHex(b[i])
	}
	return acc == 0
}

// lowerHex はASCII大文字を小文字に畳む。分岐を含まない。
func lowerHex(c byte) byte {
	// 'A'〜'Z' の範囲のみビットを立てる
	isUpper := byte(0)
	if c >= 'A' && c <= 'Z' {
		isUpper = 1
	}
	return c | (isUpper << 5)
}

// checkFreshness はauth_dateフィールドの鮮度を検証する。
// 境界は両端とも包含: now+30sちょうどは許容、now-maxAgeちょうども許容。
func checkFreshness(fields []pair, maxAge time.Duration, now time.Time) error {
	var authDateRaw string
	for _, p := range fields {
		if p.key == "auth_date" {
			authDateRaw = p.value
			break
		}
	}
	if authDateRaw == "" {
		return fmt.Errorf("%w: auth_date", ErrMissingField)
	}

	unix, err := strconv.ParseInt(authDateRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: auth_date: %v", ErrMalformed, err)
	}
	authDate := time.Unix(unix, 0)

	if authDate.After(now.Add(maxClockSkew)) {
		return ErrFutureTimestamp
	}
	if now.Sub(authDate) > maxAge {
		return ErrExpired
	}
	return nil
}

// userClaims はuserフィールドのJSONスキーマ。
// 動的なmapではなく型付きでパースし、不正は個別エラーとして返す。
type userClaims struct {
	ID        json.Number `json:"id"`
	Username  string      `json:"username"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
}

// parseClaims はuserフィールドをパースしClaimSetを組み立てる。
func parseClaims(fields []pair) (*ClaimSet, error) {
	var userRaw string
	for _, p := range fields {
		if p.key == "user" {
			userRaw = p.value
			break
		}
	}
	if userRaw == "" {
		return nil, fmt.Errorf("%w: user", ErrMissingField)
	}

	var claims userClaims
	if err := json.Unmarshal([]byte(userRaw), &claims); err != nil {
		return nil, fmt.Errorf("%w: user: %v", ErrMalformed, err)
	}
	if claims.ID.String() == "" {
		return nil, fmt.Errorf("%w: user.id", ErrMissingField)
	}
	id, err := claims.ID.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: user.id: %v", ErrMalformed, err)
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: user.id must be positive", ErrMalformed)
	}

	return &ClaimSet{
		UserID:    id,
		Username:  claims.Username,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
	}, nil
}
