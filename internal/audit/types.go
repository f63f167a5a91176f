// Package audit は認証イベントの監査ログを非同期に記録します。
package audit

import (
	"context"
	"time"
)

// Kind は監査イベントの種別を表します。
type Kind string

const (
	KindLoginSucceeded  Kind = "login.succeeded"
	KindLoginFailed     Kind = "login.failed"
	KindLoginLocked     Kind = "login.locked"
	KindLogout          Kind = "logout"
	KindCSRFRejected    Kind = "csrf.rejected"
	KindAccessDenied    Kind = "access.denied"
	KindPasswordChanged Kind = "password.changed"
	KindUserRegistered  Kind = "user.registered"
	KindEventSelected   Kind = "event.selected"
)

// Event は一件の監査イベントです。
type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	UserID  string    `json:"userId,omitempty"`
	EventID string    `json:"eventId,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	IP      string    `json:"ip,omitempty"`
	Path    string    `json:"path,omitempty"`
	At      time.Time `json:"at"`
}

// Recorder は監査イベントを受け取ります。
// 記録は呼び出し元を待たせず、失敗してもリクエストを失敗させません。
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

type discard struct{}

func (discard) Record(context.Context, Event) {}

// Discard は何もしない Recorder です。監査ログ無効時に使います。
var Discard Recorder = discard{}
