package auth

import "net/http"

const (
	csrfFailedMessage        = "CSRF validation failed"
	invalidCredentialMessage = "メールアドレスまたはパスワードが正しくありません"
)

// CSRFError は CSRF 検証の失敗を表します。境界で 403 に変換されます。
type CSRFError struct {
	Status  int
	Message string
	reason  string
}

func (e *CSRFError) Error() string {
	return e.Message
}

// Reason は拒否理由（missing_header / missing_cookie / mismatch）を返します。
func (e *CSRFError) Reason() string {
	return e.reason
}

func newCSRFError(reason string) *CSRFError {
	return &CSRFError{
		Status:  http.StatusForbidden,
		Message: csrfFailedMessage,
		reason:  reason,
	}
}

// CredentialsAuthError はログイン情報の不一致を表します。境界で 401 に変換されます。
type CredentialsAuthError struct {
	Status            int
	Message           string
	RemainingAttempts int
}

func (e *CredentialsAuthError) Error() string {
	return e.Message
}

func newCredentialsAuthError(remaining int) *CredentialsAuthError {
	return &CredentialsAuthError{
		Status:            http.StatusUnauthorized,
		Message:           invalidCredentialMessage,
		RemainingAttempts: remaining,
	}
}
