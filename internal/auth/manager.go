package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/audit"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/metrics"
)

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	users      UserStore
	sessions   SessionProvider
	credential *Credential
	limiter    *loginLimiter
	logger     *slog.Logger
	recorder   audit.Recorder
	now        func() time.Time
}

// ManagerOptions は Manager の依存関係です。
type ManagerOptions struct {
	Users      UserStore
	Sessions   SessionProvider
	Credential *Credential
	Limiter    LimiterConfig
	Logger     *slog.Logger
	Recorder   audit.Recorder
}

// NewManager は認証マネージャーを作成します。
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Manager{
		users:      opts.Users,
		sessions:   opts.Sessions,
		credential: opts.Credential,
		limiter:    newLoginLimiter(opts.Limiter),
		logger:     logger,
		recorder:   recorder,
		now:        time.Now,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login は POST /api/auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "email と password を JSON で送ってください",
		})
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()
	if retryAfter := m.limiter.retryAfter(ip); retryAfter > 0 {
		metrics.LoginAttempt("locked")
		m.recorder.Record(ctx, audit.Event{Kind: audit.KindLoginLocked, IP: ip, Path: c.Request.URL.Path})
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "一定時間後に再度お試しください",
		})
		return
	}

	user, err := m.users.FindByEmail(ctx, NormalizeEmail(req.Email))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		m.logger.Error("user lookup failed", slog.Any("error", err))
		respondWithError(c, err)
		return
	}

	// ユーザー無し・パスワード未設定・不一致を応答内容と時間で区別させない
	var ok bool
	if user == nil || user.PasswordHash == "" {
		m.credential.EqualizeTiming(ctx, req.Password)
	} else {
		ok = m.credential.Verify(ctx, req.Password, user.PasswordHash)
	}
	if !ok {
		m.limiter.prune()
		remaining := m.limiter.recordFailure(ip)
		metrics.LoginAttempt("failed")
		ev := audit.Event{Kind: audit.KindLoginFailed, IP: ip, Path: c.Request.URL.Path}
		if user != nil {
			ev.UserID = user.ID
		}
		m.recorder.Record(ctx, ev)
		respondWithError(c, newCredentialsAuthError(remaining))
		return
	}

	m.limiter.reset(ip)
	m.upgradeHash(c, user, req.Password)

	now := m.now()
	sess := &Session{
		UserID:     user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Roles:      user.Roles,
		IssuedAt:   now,
		LastActive: now,
	}
	if err := m.sessions.Establish(c, sess); err != nil {
		m.logger.Error("session save failed", slog.String("user_id", user.ID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	metrics.LoginAttempt("succeeded")
	m.recorder.Record(ctx, audit.Event{Kind: audit.KindLoginSucceeded, UserID: user.ID, IP: ip, Path: c.Request.URL.Path})

	redirect := SelectEventPath
	if len(user.Roles) == 1 {
		redirect = EventPath(user.Roles[0].EventID)
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":   user.ID,
		"redirect": redirect,
	})
}

// upgradeHash はコスト設定が上がっていれば保存済みハッシュを更新します。失敗してもログインは続行します。
func (m *Manager) upgradeHash(c *gin.Context, user *User, password string) {
	if !m.credential.NeedsRehash(user.PasswordHash) {
		return
	}
	ctx := c.Request.Context()
	hash, err := m.credential.Hash(ctx, password)
	if err == nil {
		err = m.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		m.logger.Warn("password rehash failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	m.logger.Info("password rehashed", slog.String("user_id", user.ID), slog.Int("cost", m.credential.Cost()))
}

// Logout は /api/auth/logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	sess, _ := SessionFrom(c)
	if err := m.sessions.Destroy(c); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの削除に失敗しました",
		})
		return
	}
	if sess != nil {
		m.recorder.Record(c.Request.Context(), audit.Event{Kind: audit.KindLogout, UserID: sess.UserID, IP: c.ClientIP()})
	}
	c.Status(http.StatusNoContent)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
}

// Register は POST /api/auth/register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "email と password を JSON で送ってください",
		})
		return
	}

	email := NormalizeEmail(req.Email)
	if !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_EMAIL",
			"message": "メールアドレスの形式が正しくありません",
		})
		return
	}
	if !MeetsRequirements(req.Password) {
		respondWeakPassword(c)
		return
	}

	ctx := c.Request.Context()
	hash, err := m.credential.Hash(ctx, req.Password)
	if err != nil {
		respondWithError(c, err)
		return
	}

	user := &User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
	}
	if err := m.users.Create(ctx, user); err != nil {
		if !errors.Is(err, ErrEmailTaken) {
			m.logger.Error("user create failed", slog.Any("error", err))
		}
		respondWithError(c, err)
		return
	}

	m.recorder.Record(ctx, audit.Event{Kind: audit.KindUserRegistered, UserID: user.ID, IP: c.ClientIP()})
	c.JSON(http.StatusCreated, gin.H{"id": user.ID})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// ChangePassword は POST /api/auth/password のハンドラーです。RequireLogin の後に置きます。
func (m *Manager) ChangePassword(c *gin.Context) {
	sess, ok := SessionFrom(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "currentPassword と newPassword を JSON で送ってください",
		})
		return
	}

	ctx := c.Request.Context()
	user, err := m.users.FindByID(ctx, sess.UserID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	key := "user:" + user.ID
	if retryAfter := m.limiter.retryAfter(key); retryAfter > 0 {
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "一定時間後に再度お試しください",
		})
		return
	}
	if !m.credential.Verify(ctx, req.CurrentPassword, user.PasswordHash) {
		respondWithError(c, newCredentialsAuthError(m.limiter.recordFailure(key)))
		return
	}
	m.limiter.reset(key)

	if !MeetsRequirements(req.NewPassword) {
		respondWeakPassword(c)
		return
	}

	hash, err := m.credential.Hash(ctx, req.NewPassword)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if err := m.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		m.logger.Error("password update failed", slog.String("user_id", user.ID), slog.Any("error", err))
		respondWithError(c, err)
		return
	}

	m.recorder.Record(ctx, audit.Event{Kind: audit.KindPasswordChanged, UserID: user.ID, IP: c.ClientIP()})
	c.Status(http.StatusNoContent)
}

// Session は GET /api/auth/session のハンドラーです。
func (m *Manager) Session(c *gin.Context) {
	sess, ok := SessionFrom(c)
	if !ok {
		respondUnauthorized(c)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Events は GET /api/auth/events のハンドラーです。選択可能なイベントを返します。
func (m *Manager) Events(c *gin.Context) {
	sess, ok := SessionFrom(c)
	if !ok {
		respondUnauthorized(c)
		return
	}
	roles := sess.Roles
	if roles == nil {
		roles = []Role{}
	}
	c.JSON(http.StatusOK, gin.H{
		"events":         roles,
		"currentEventId": sess.CurrentEventID,
	})
}

type selectEventRequest struct {
	EventID string `json:"eventId" binding:"required"`
	Next    string `json:"next"`
}

// SelectEvent は POST /api/auth/select-event のハンドラーです。
func (m *Manager) SelectEvent(c *gin.Context) {
	sess, ok := SessionFrom(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	var req selectEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "eventId を指定してください",
		})
		return
	}

	if _, ok := sess.RoleFor(req.EventID); !ok {
		sess = m.refreshRoles(c, sess)
	}
	if _, ok := sess.RoleFor(req.EventID); !ok {
		m.recorder.Record(c.Request.Context(), audit.Event{
			Kind:    audit.KindAccessDenied,
			UserID:  sess.UserID,
			EventID: req.EventID,
			Reason:  string(ReasonNoEventRole),
			IP:      c.ClientIP(),
			Path:    c.Request.URL.Path,
		})
		c.JSON(http.StatusForbidden, gin.H{
			"code":    "EVENT_FORBIDDEN",
			"message": "このイベントへのアクセス権がありません",
		})
		return
	}

	if err := m.sessions.SetCurrentEvent(c, req.EventID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	m.recorder.Record(c.Request.Context(), audit.Event{Kind: audit.KindEventSelected, UserID: sess.UserID, EventID: req.EventID})

	redirect := req.Next
	if !isLocalPath(redirect) {
		redirect = EventPath(req.EventID)
	}
	c.JSON(http.StatusOK, gin.H{"redirect": redirect})
}

// roleUpdater はセッションのロール一覧を書き換えられるプロバイダーです。
type roleUpdater interface {
	UpdateRoles(c *gin.Context, roles []Role) error
}

// refreshRoles はログイン後に付与されたロールをユーザーストアから取り込みます。
// 取り込めない場合は元のセッションを返します。
func (m *Manager) refreshRoles(c *gin.Context, sess *Session) *Session {
	updater, ok := m.sessions.(roleUpdater)
	if !ok {
		return sess
	}
	user, err := m.users.FindByID(c.Request.Context(), sess.UserID)
	if err != nil {
		m.logger.Warn("role refresh failed", slog.String("user_id", sess.UserID), slog.Any("error", err))
		return sess
	}
	if err := updater.UpdateRoles(c, user.Roles); err != nil {
		m.logger.Warn("role refresh failed", slog.String("user_id", sess.UserID), slog.Any("error", err))
		return sess
	}
	refreshed := *sess
	refreshed.Roles = user.Roles
	return &refreshed
}

// EventScope は RequireEvent で保護されたイベントページの代わりに、検証済みのスコープを返します。
func (m *Manager) EventScope(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := SessionFrom(c)
		if !ok {
			respondUnauthorized(c)
			return
		}
		eventID := c.Param(param)
		role, _ := sess.RoleFor(eventID)
		c.JSON(http.StatusOK, gin.H{
			"eventId": eventID,
			"role":    role.Name,
			"userId":  sess.UserID,
		})
	}
}

// NormalizeEmail はメールアドレスを比較用に正規化します。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
