package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondWithError はエラーを API の JSON 応答に変換します。
func respondWithError(c *gin.Context, err error) {
	var (
		credErr *CredentialsAuthError
		csrfErr *CSRFError
	)
	switch {
	case errors.As(err, &credErr):
		c.JSON(credErr.Status, gin.H{
			"code":              "INVALID_CREDENTIALS",
			"message":           credErr.Message,
			"remainingAttempts": credErr.RemainingAttempts,
		})
	case errors.As(err, &csrfErr):
		c.JSON(csrfErr.Status, gin.H{
			"code":    "CSRF_INVALID",
			"message": csrfErr.Message,
		})
	case errors.Is(err, ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{
			"code":    "EMAIL_TAKEN",
			"message": "このメールアドレスは既に登録されています",
		})
	case errors.Is(err, ErrUserNotFound):
		// ログイン済みセッションのユーザーが消えている
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "ログインが必要です",
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました",
		})
	}
}

func respondUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"code":     "UNAUTHORIZED",
		"message":  "ログインが必要です",
		"redirect": LoginPath,
	})
}

func respondWeakPassword(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "WEAK_PASSWORD",
		"message": "パスワードは8文字以上で、大文字と数字をそれぞれ1文字以上含めてください",
	})
}
