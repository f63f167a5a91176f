package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/audit"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/metrics"
)

const (
	// CSRFCookieName はダブルサブミット用クッキーの名前です。値は "<token>|<metadata>" 形式です。
	CSRFCookieName = "next-auth.csrf-token"

	csrfMetaSeparator = "|"
	csrfTokenBytes    = 32
)

// csrfHeaderNames はトークンを探すヘッダー名です（先に見つかった値を使用）。
// 大文字小文字は区別しないため、クライアントライブラリ差異の吸収用の表記ゆれです。
var csrfHeaderNames = []string{"x-csrf-token", "X-CSRF-Token", "x-xsrf-token"}

// AssertCSRF はリクエストのヘッダートークンとクッキートークンを比較します。
// どちらかが欠けている、または完全一致しない場合は *CSRFError を返します。
func AssertCSRF(r *http.Request) error {
	header := csrfHeaderToken(r)
	cookie := csrfCookieToken(r)

	switch {
	case header == "":
		return newCSRFError("missing_header")
	case cookie == "":
		return newCSRFError("missing_cookie")
	case header != cookie:
		return newCSRFError("mismatch")
	}
	return nil
}

func csrfHeaderToken(r *http.Request) string {
	for _, name := range csrfHeaderNames {
		if v := headerValue(r.Header, name); v != "" {
			return v
		}
	}
	return ""
}

// headerValue は正規化されていないキーで登録されたヘッダーも探します。
func headerValue(h http.Header, name string) string {
	if v := h.Get(name); v != "" {
		return v
	}
	for key, values := range h {
		if strings.EqualFold(key, name) && len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return ""
}

func csrfCookieToken(r *http.Request) string {
	token, _ := splitCSRFCookie(csrfCookieValue(r))
	return token
}

// csrfCookieValue はクッキーの値をデコードして返します。
// 発行元によって区切り文字が %7C にエンコードされて届くためです。
func csrfCookieValue(r *http.Request) string {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return ""
	}
	if v, err := url.QueryUnescape(cookie.Value); err == nil {
		return v
	}
	return cookie.Value
}

// splitCSRFCookie は最初の区切り文字で token と metadata に分けます。
func splitCSRFCookie(value string) (token, meta string) {
	token, meta, _ = strings.Cut(value, csrfMetaSeparator)
	return token, meta
}

// CSRFGuard は CSRF トークンの発行と検証ミドルウェアをまとめた構造体です。
type CSRFGuard struct {
	secret   []byte
	secure   bool
	logger   *slog.Logger
	recorder audit.Recorder
}

// CSRFOptions は CSRFGuard の依存関係です。
type CSRFOptions struct {
	Secret   string
	Secure   bool
	Logger   *slog.Logger
	Recorder audit.Recorder
}

// NewCSRFGuard は CSRFGuard を作成します。
func NewCSRFGuard(opts CSRFOptions) *CSRFGuard {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = audit.Discard
	}
	return &CSRFGuard{
		secret:   []byte(opts.Secret),
		secure:   opts.Secure,
		logger:   logger,
		recorder: recorder,
	}
}

// Verify は状態を変更するリクエストに AssertCSRF を適用するミドルウェアです。
func (g *CSRFGuard) Verify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		if err := AssertCSRF(c.Request); err != nil {
			var csrfErr *CSRFError
			if !errors.As(err, &csrfErr) {
				csrfErr = newCSRFError("unknown")
			}
			metrics.CSRFRejected(csrfErr.Reason())
			g.logger.Warn("csrf rejected",
				slog.String("reason", csrfErr.Reason()),
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.String("ip", c.ClientIP()),
			)
			g.recorder.Record(c.Request.Context(), audit.Event{
				Kind:   audit.KindCSRFRejected,
				Reason: csrfErr.Reason(),
				IP:     c.ClientIP(),
				Path:   c.Request.URL.Path,
			})
			c.AbortWithStatusJSON(csrfErr.Status, gin.H{
				"code":    "CSRF_INVALID",
				"message": csrfErr.Message,
			})
			return
		}

		c.Next()
	}
}

// Issue はクッキーに有効なトークンがあれば再利用し、無ければ新しく発行します。
// metadata にはトークンと秘密鍵の SHA-256 を入れますが、検証時には参照しません。
func (g *CSRFGuard) Issue(c *gin.Context) (string, error) {
	if value := csrfCookieValue(c.Request); value != "" {
		token, meta := splitCSRFCookie(value)
		if token != "" && subtle.ConstantTimeCompare([]byte(meta), []byte(g.metadata(token))) == 1 {
			return token, nil
		}
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token + csrfMetaSeparator + g.metadata(token),
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// HandleToken は GET /api/auth/csrf のハンドラーです。
func (g *CSRFGuard) HandleToken(c *gin.Context) {
	token, err := g.Issue(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "CSRF トークンの生成に失敗しました",
		})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"csrfToken": token})
}

func (g *CSRFGuard) metadata(token string) string {
	sum := sha256.Sum256(append([]byte(token), g.secret...))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
