// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError はクライアントに返すエラーを表す。
// ワイヤ上では {"error": Message} として返し、Statusをそのままステータスコードに使う。
type APIError struct {
	Code    string // エラーコード（ログ・メトリクス用）
	Message string // クライアント向けメッセージ
	Status  int    // HTTPステータスコード
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidPayload      = "INVALID_PAYLOAD"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeSlugConflict        = "SLUG_CONFLICT"
	ErrCodeEmailConflict       = "EMAIL_CONFLICT"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeMissingConfig       = "MISSING_CONFIG"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認可エラーを生成する。
// 拒否理由（ユーザーの有無など）はメッセージに含めない。
func NewUnauthorizedError() *APIError {
	return &APIError{Code: ErrCodeUnauthorized, Message: "Unauthorized", Status: http.StatusUnauthorized}
}

// NewInvalidPayloadError はバリデーションエラーを生成する。
func NewInvalidPayloadError(reason string) *APIError {
	return &APIError{Code: ErrCodeInvalidPayload, Message: reason, Status: http.StatusBadRequest}
}

// NewUserNotFoundError はセッションに対応するユーザーが存在しない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{Code: ErrCodeUserNotFound, Message: "User not found", Status: http.StatusNotFound}
}

// NewSlugConflictError はslugの一意制約違反エラーを生成する。
func NewSlugConflictError() *APIError {
	return &APIError{Code: ErrCodeSlugConflict, Message: "Slug already exists", Status: http.StatusConflict}
}

// NewEmailConflictError はメールアドレス重複エラーを生成する。
func NewEmailConflictError() *APIError {
	return &APIError{Code: ErrCodeEmailConflict, Message: "Email already in use", Status: http.StatusConflict}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{Code: ErrCodeInvalidCredentials, Message: "Invalid credentials", Status: http.StatusUnauthorized}
}

// NewMissingConfigError は必須設定が欠けている場合のエラーを生成する。
func NewMissingConfigError(name string) *APIError {
	return &APIError{Code: ErrCodeMissingConfig, Message: "Missing " + name, Status: http.StatusInternalServerError}
}

// NewUpstreamUnavailableError は上流APIがすべて失敗した場合のエラーを生成する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{Code: ErrCodeUpstreamUnavailable, Message: "Discord data unavailable", Status: http.StatusBadGateway}
}

// NewServiceUnavailableError はストレージ障害時のエラーを生成する。
func NewServiceUnavailableError() *APIError {
	return &APIError{Code: ErrCodeServiceUnavailable, Message: "Service unavailable", Status: http.StatusServiceUnavailable}
}

// NewForbiddenError はCSRF検証失敗など、認証とは別の理由で拒否する場合のエラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{Code: ErrCodeForbidden, Message: message, Status: http.StatusForbidden}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{Code: ErrCodeRateLimited, Message: "Too many requests", Status: http.StatusTooManyRequests}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{Code: ErrCodeInternal, Message: "Internal server error", Status: http.StatusInternalServerError}
}
