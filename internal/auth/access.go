package auth

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/audit"
)

// リダイレクト先
const (
	LoginPath       = "/login"
	SelectEventPath = "/login/select-event"
)

// DenyReason はアクセス拒否の理由です。
type DenyReason string

const (
	ReasonUnauthenticated DenyReason = "unauthenticated"
	ReasonNoEventRole     DenyReason = "no_event_role"
	ReasonEventMismatch   DenyReason = "event_mismatch"
)

// Decision はアクセスガードの判定結果です。
// Authorized（Session あり）か Denied（Redirect あり）のどちらかです。
// Denied をリダイレクトに変換するのは呼び出し側（gin の境界）の責務です。
type Decision struct {
	Session  *Session
	Redirect string
	Reason   DenyReason
}

// Authorized は許可の判定を作ります。
func Authorized(sess *Session) Decision {
	return Decision{Session: sess}
}

// Denied は拒否の判定を作ります。
func Denied(redirect string, reason DenyReason) Decision {
	return Decision{Redirect: redirect, Reason: reason}
}

// IsAuthorized は許可された判定かを返します。
func (d Decision) IsAuthorized() bool {
	return d.Session != nil && d.Redirect == ""
}

// CheckSession はセッションの有無だけを判定します。
func CheckSession(sess *Session) Decision {
	if sess == nil {
		return Denied(LoginPath, ReasonUnauthenticated)
	}
	return Authorized(sess)
}

// CheckEventAccess はセッションが eventID にアクセスできるかを判定します。
// next はイベント不一致時に選択画面へ渡す戻り先で、空またはローカルパスでない場合は
// /events/<eventID> を使います。
func CheckEventAccess(sess *Session, eventID, next string) Decision {
	if d := CheckSession(sess); !d.IsAuthorized() {
		return d
	}
	if _, ok := sess.RoleFor(eventID); !ok {
		return Denied(SelectEventPath, ReasonNoEventRole)
	}
	if sess.CurrentEventID != "" && sess.CurrentEventID != eventID {
		if !isLocalPath(next) {
			next = EventPath(eventID)
		}
		return Denied(SelectEventPath+"?next="+escapeNext(next), ReasonEventMismatch)
	}
	return Authorized(sess)
}

// EventPath はイベントのトップページのパスを返します。
func EventPath(eventID string) string {
	return "/events/" + url.PathEscape(eventID)
}

// isLocalPath はオープンリダイレクトにならない同一オリジンのパスかを返します。
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

// escapeNext はクエリ値としてエスケープしますが、読みやすさのため "/" はそのまま残します。
func escapeNext(p string) string {
	return strings.ReplaceAll(url.QueryEscape(p), "%2F", "/")
}

// AccessGuard はセッションを解決し、ログイン必須・イベント権限を判定します。
type AccessGuard struct {
	resolver SessionResolver
	logger   *slog.Logger
	recorder audit.Recorder
}

// AccessGuardOptions は AccessGuard の任意の依存関係です。
type AccessGuardOptions struct {
	Logger   *slog.Logger
	Recorder audit.Recorder
}

// NewAccessGuard は AccessGuard を作成します。
func NewAccessGuard(resolver SessionResolver, opts AccessGuardOptions) *AccessGuard {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = audit.Discard
	}
	return &AccessGuard{
		resolver: resolver,
		logger:   logger,
		recorder: recorder,
	}
}

// RequireAuth はセッションを解決し、無ければ /login への Denied を返します。
// セッションの解決自体に失敗した場合はエラーを返します。
func (g *AccessGuard) RequireAuth(c *gin.Context) (Decision, error) {
	_, d, err := g.decideAuth(c)
	return d, err
}

// RequireEventAccess は RequireAuth の後にイベント権限を判定します。
func (g *AccessGuard) RequireEventAccess(c *gin.Context, eventID string) (Decision, error) {
	_, d, err := g.decideEvent(c, eventID)
	return d, err
}

func (g *AccessGuard) decideAuth(c *gin.Context) (*Session, Decision, error) {
	sess, err := g.resolver.Resolve(c)
	if err != nil {
		return nil, Decision{}, err
	}
	return sess, CheckSession(sess), nil
}

func (g *AccessGuard) decideEvent(c *gin.Context, eventID string) (*Session, Decision, error) {
	sess, err := g.resolver.Resolve(c)
	if err != nil {
		return nil, Decision{}, err
	}
	// API の場合は戻り先をイベントのページにする
	next := ""
	if c.Request != nil && !isAPIRequest(c.Request) {
		next = c.Request.URL.RequestURI()
	}
	return sess, CheckEventAccess(sess, eventID, next), nil
}
