package auth

import (
	"sync"
	"time"
)

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// expired はウィンドウが過ぎたか、ロックが明けたかを返します。
// ロック明けは新しいウィンドウとして数え直します。
func (s *attemptState) expired(now time.Time, window time.Duration) bool {
	if !s.lockedUntil.IsZero() && !now.Before(s.lockedUntil) {
		return true
	}
	return now.Sub(s.firstAttempt) > window
}

// LimiterConfig はログイン試行制限の設定です。
type LimiterConfig struct {
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration
}

// loginLimiter は IP ごとのログイン失敗回数を数え、上限でロックします。
type loginLimiter struct {
	cfg      LimiterConfig
	now      func() time.Time
	lock     sync.Mutex
	attempts map[string]*attemptState
}

func newLoginLimiter(cfg LimiterConfig) *loginLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 10 * time.Minute
	}
	return &loginLimiter{
		cfg:      cfg,
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
}

// retryAfter はロック中であれば残り時間を返します。
func (l *loginLimiter) retryAfter(key string) time.Duration {
	l.lock.Lock()
	defer l.lock.Unlock()

	state, ok := l.attempts[key]
	if !ok {
		return 0
	}
	now := l.now()
	if !now.Before(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

// recordFailure は失敗を記録し、残り試行回数を返します。
func (l *loginLimiter) recordFailure(key string) int {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	state, ok := l.attempts[key]
	if !ok || state.expired(now, l.cfg.Window) {
		state = &attemptState{firstAttempt: now}
		l.attempts[key] = state
	}

	state.count++
	if state.count >= l.cfg.MaxAttempts {
		state.lockedUntil = now.Add(l.cfg.LockDuration)
		state.count = l.cfg.MaxAttempts
	}

	remaining := l.cfg.MaxAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (l *loginLimiter) reset(key string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.attempts, key)
}

// prune は期限切れのエントリを削除します。
func (l *loginLimiter) prune() {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	for key, state := range l.attempts {
		if now.Sub(state.firstAttempt) > l.cfg.Window && !now.Before(state.lockedUntil) {
			delete(l.attempts, key)
		}
	}
}
