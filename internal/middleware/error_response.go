package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/coachhub/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// クライアントはcodeで分岐し、errorを表示する。
type ErrorResponseBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteAppError はAppErrorを統一フォーマットのHTTPレスポンスに変換する。
// 変換はこの1箇所のみで行い、原因（cause）はレスポンスに含めず
// サーバー側ログにのみ記録する。
// 設定欠落（KindConfig）は500、それ以外のクライアント由来のエラーは
// すべて400で返す。
func WriteAppError(w http.ResponseWriter, err error) {
	var appErr *model.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		WriteInternalServerError(w)
		return
	}

	status := http.StatusBadRequest
	if appErr.Kind == model.KindConfig {
		status = http.StatusInternalServerError
	}

	if cause := appErr.Unwrap(); cause != nil {
		slog.Warn("request failed",
			slog.String("kind", string(appErr.Kind)),
			slog.String("code", appErr.Code),
			slog.String("cause", cause.Error()),
		)
	}

	writeJSONError(w, status, appErr.Code, appErr.Message)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "内部エラーが発生しました。")
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Error: message,
		Code:  code,
	})
}
