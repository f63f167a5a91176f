// Package session は gin-contrib/sessions のクッキーストアを使ったログインセッションを提供します。
package session

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/auth"
)

// CookieName はセッションクッキーの名前です。
const CookieName = "celebra_session"

const (
	keyUser         = "uid"
	keyEmail        = "email"
	keyName         = "name"
	keyRoles        = "roles"
	keyCurrentEvent = "current_event"
	keyIssuedAt     = "issued_at"
	keyLastActive   = "last_active"

	defaultMaxAge      = 12 * time.Hour
	defaultIdleTimeout = 30 * time.Minute
)

// Options はセッションの寿命とクッキー属性です。
type Options struct {
	MaxAge      time.Duration
	IdleTimeout time.Duration
	Secure      bool
}

func (o Options) withDefaults() Options {
	if o.MaxAge <= 0 {
		o.MaxAge = defaultMaxAge
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = defaultIdleTimeout
	}
	return o
}

// NewCookieStore は署名付きクッキーストアを作成します。
func NewCookieStore(secret []byte, opts Options) cookie.Store {
	opts = opts.withDefaults()
	store := cookie.NewStore(secret)
	store.Options(opts.cookieOptions())
	return store
}

func (o Options) cookieOptions() sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   int(o.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Middleware はリクエストごとにセッションを読み込むミドルウェアです。
// Store を使うルートより前に登録してください。
func Middleware(store sessions.Store) gin.HandlerFunc {
	return sessions.Sessions(CookieName, store)
}

// Store は auth.SessionProvider の実装です。
type Store struct {
	opts Options
	now  func() time.Time
}

var _ auth.SessionProvider = (*Store)(nil)

// NewStore は Store を作成します。
func NewStore(opts Options) *Store {
	return &Store{
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

// Resolve はクッキーからセッションを復元します。
// 未ログイン、期限切れ、無操作タイムアウト、内容が壊れている場合は (nil, nil) を返し、
// 期限切れと壊れたセッションは削除します。
func (s *Store) Resolve(c *gin.Context) (*auth.Session, error) {
	session := sessions.Default(c)
	userID, ok := session.Get(keyUser).(string)
	if !ok || userID == "" {
		return nil, nil
	}

	now := s.now()
	issuedAt := readUnix(session.Get(keyIssuedAt))
	lastActive := readUnix(session.Get(keyLastActive))
	if issuedAt.IsZero() || now.Sub(issuedAt) > s.opts.MaxAge {
		return nil, expire(session)
	}
	if lastActive.IsZero() || now.Sub(lastActive) > s.opts.IdleTimeout {
		return nil, expire(session)
	}

	roles, err := decodeRoles(session.Get(keyRoles))
	if err != nil {
		return nil, expire(session)
	}

	session.Set(keyLastActive, now.Unix())
	if err := session.Save(); err != nil {
		return nil, err
	}

	email, _ := session.Get(keyEmail).(string)
	name, _ := session.Get(keyName).(string)
	current, _ := session.Get(keyCurrentEvent).(string)
	return &auth.Session{
		UserID:         userID,
		Email:          email,
		Name:           name,
		Roles:          roles,
		CurrentEventID: current,
		IssuedAt:       issuedAt,
		LastActive:     now,
	}, nil
}

// Establish はログイン成功時にセッションを作り直します。
func (s *Store) Establish(c *gin.Context, sess *auth.Session) error {
	rolesJSON, err := json.Marshal(sess.Roles)
	if err != nil {
		return err
	}

	now := s.now()
	session := sessions.Default(c)
	session.Clear()
	session.Options(s.opts.cookieOptions())
	session.Set(keyUser, sess.UserID)
	session.Set(keyEmail, sess.Email)
	session.Set(keyName, sess.Name)
	session.Set(keyRoles, string(rolesJSON))
	if sess.CurrentEventID != "" {
		session.Set(keyCurrentEvent, sess.CurrentEventID)
	}
	session.Set(keyIssuedAt, now.Unix())
	session.Set(keyLastActive, now.Unix())
	return session.Save()
}

// SetCurrentEvent は選択中のイベントを更新します。
func (s *Store) SetCurrentEvent(c *gin.Context, eventID string) error {
	session := sessions.Default(c)
	if eventID == "" {
		session.Delete(keyCurrentEvent)
	} else {
		session.Set(keyCurrentEvent, eventID)
	}
	return session.Save()
}

// UpdateRoles はログイン中のセッションのロール一覧を置き換えます。
func (s *Store) UpdateRoles(c *gin.Context, roles []auth.Role) error {
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return err
	}
	session := sessions.Default(c)
	session.Set(keyRoles, string(rolesJSON))
	return session.Save()
}

// Destroy はセッションを削除します。
func (s *Store) Destroy(c *gin.Context) error {
	return expire(sessions.Default(c))
}

func expire(session sessions.Session) error {
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}

func decodeRoles(v interface{}) ([]auth.Role, error) {
	raw, ok := v.(string)
	if !ok || raw == "" {
		return nil, nil
	}
	var roles []auth.Role
	if err := json.Unmarshal([]byte(raw), &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
