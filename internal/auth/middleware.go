package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/audit"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/metrics"
)

// RequireLogin はセッションを必須にするミドルウェアを返します。
func (g *AccessGuard) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, d, err := g.decideAuth(c)
		g.enforce(c, sess, d, err, "")
	}
}

// RequireEvent はパスパラメーター param のイベントへの権限を必須にするミドルウェアを返します。
func (g *AccessGuard) RequireEvent(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID := c.Param(param)
		sess, d, err := g.decideEvent(c, eventID)
		g.enforce(c, sess, d, err, eventID)
	}
}

// enforce は判定結果を gin の応答に変換します。
// 拒否した場合は Abort するため、後続のハンドラーは実行されません。
func (g *AccessGuard) enforce(c *gin.Context, sess *Session, d Decision, err error, eventID string) {
	if err != nil {
		metrics.AccessDecision("error")
		g.logger.Error("session resolution failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_ERROR",
			"message": "セッションの確認に失敗しました",
		})
		return
	}

	if !d.IsAuthorized() {
		metrics.AccessDecision(string(d.Reason))
		g.logger.Info("access denied",
			slog.String("reason", string(d.Reason)),
			slog.String("path", c.Request.URL.Path),
			slog.String("event_id", eventID),
			slog.String("redirect", d.Redirect),
		)
		if d.Reason != ReasonUnauthenticated {
			ev := audit.Event{
				Kind:    audit.KindAccessDenied,
				EventID: eventID,
				Reason:  string(d.Reason),
				IP:      c.ClientIP(),
				Path:    c.Request.URL.Path,
			}
			if sess != nil {
				ev.UserID = sess.UserID
			}
			g.recorder.Record(c.Request.Context(), ev)
		}
		deny(c, d)
		return
	}

	metrics.AccessDecision("authorized")
	c.Set(ContextSessionKey, d.Session)
	c.Next()
}

func deny(c *gin.Context, d Decision) {
	if !isAPIRequest(c.Request) {
		c.Redirect(http.StatusSeeOther, d.Redirect)
		c.Abort()
		return
	}

	status := http.StatusForbidden
	code := "EVENT_FORBIDDEN"
	message := "このイベントへのアクセス権がありません"
	switch d.Reason {
	case ReasonUnauthenticated:
		status = http.StatusUnauthorized
		code = "UNAUTHORIZED"
		message = "ログインが必要です"
	case ReasonEventMismatch:
		code = "EVENT_MISMATCH"
		message = "別のイベントが選択されています"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":     code,
		"message":  message,
		"redirect": d.Redirect,
	})
}

// isAPIRequest は JSON で応答すべきリクエストかを返します。
func isAPIRequest(r *http.Request) bool {
	return r != nil && r.URL != nil && strings.HasPrefix(r.URL.Path, "/api/")
}
