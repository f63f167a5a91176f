// Package auth は認証・認可機能を提供します。
//
// パスワードの検証（Credential）、CSRF のダブルサブミット検証、
// イベント単位のロールに基づくアクセス制御（AccessGuard）と、
// それらを束ねる gin ハンドラー（Manager）を含みます。
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
)

// Role はユーザーとイベントを結びつける権限です。
type Role struct {
	EventID string `json:"eventId"`
	Name    string `json:"role"`
}

// Session はセッションプロバイダーが発行するログイン状態です。
// ガードからは読み取り専用として扱います。
type Session struct {
	UserID         string    `json:"userId"`
	Email          string    `json:"email,omitempty"`
	Name           string    `json:"name,omitempty"`
	Roles          []Role    `json:"roles"`
	CurrentEventID string    `json:"currentEventId,omitempty"`
	IssuedAt       time.Time `json:"issuedAt"`
	LastActive     time.Time `json:"lastActive"`
}

// RoleFor は eventID に対応するロールを返します。
func (s *Session) RoleFor(eventID string) (Role, bool) {
	if s == nil || eventID == "" {
		return Role{}, false
	}
	for _, r := range s.Roles {
		if r.EventID == eventID {
			return r, true
		}
	}
	return Role{}, false
}

// User は認証情報を含むユーザーレコードです。
// PasswordHash が空の場合はパスワード未設定を表します。
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserStore はユーザーレコードの永続化を抽象化します。
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	AddRole(ctx context.Context, id string, role Role) error
}

// SessionResolver はリクエストからセッションを解決します。
// セッションが無い場合は (nil, nil) を返します。
type SessionResolver interface {
	Resolve(c *gin.Context) (*Session, error)
}

// SessionWriter はログイン・ログアウト・イベント切替でセッションを書き換えます。
type SessionWriter interface {
	Establish(c *gin.Context, sess *Session) error
	SetCurrentEvent(c *gin.Context, eventID string) error
	Destroy(c *gin.Context) error
}

// SessionProvider は解決と書き換えの両方を提供します。
type SessionProvider interface {
	SessionResolver
	SessionWriter
}

// ContextSessionKey は、ハンドラー間で検証済みセッションを共有するためのキーです。
const ContextSessionKey = "auth.session"

// SessionFrom はガードが格納したセッションを取り出します。
func SessionFrom(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(ContextSessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*Session)
	return sess, ok && sess != nil
}

// ErrUserNotFound はユーザーが存在しない場合に返されます。
var ErrUserNotFound = errors.New("user not found")

// ErrEmailTaken はメールアドレスが既に登録済みの場合に返されます。
var ErrEmailTaken = errors.New("email already registered")
