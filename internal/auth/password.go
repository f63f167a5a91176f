package auth

import (
	"context"
	"fmt"
	"runtime"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/config"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/metrics"
)

const (
	// bcrypt は先頭 72 バイトしか使わない
	maxPasswordBytes  = 72
	minPasswordLength = 8

	// ユーザーが存在しない場合のタイミング均一化に使う値（平文は公開されても問題ない）
	timingDummyPassword = "celebra-timing-equalizer"
)

// HashConfig は Credential の設定です。
type HashConfig struct {
	// Cost は既定のハッシュコストです。0 は既定値 12、10 未満は 10 に切り上げます。
	Cost int
	// Workers は同時に実行できる bcrypt 計算の数です。0 は CPU 数です。
	Workers int
}

// Credential はパスワードのハッシュ化と検証を行います。
// bcrypt は CPU を占有するため、同時実行数をセマフォで制限します。
type Credential struct {
	cost int
	sem  *semaphore.Weighted

	// EqualizeTiming 用。同じコストで事前に作っておく
	dummyHash string
}

// NewCredential は Credential を作成します。
// タイミング均一化用のハッシュを作れない場合（乱数源の故障）は panic します。
func NewCredential(cfg HashConfig) *Credential {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	cost := cfg.Cost
	if cost == 0 {
		cost = config.DefaultBcryptCost
	}
	cost = config.ClampBcryptCost(cost)

	dummy, err := bcrypt.GenerateFromPassword([]byte(timingDummyPassword), cost)
	if err != nil {
		panic(fmt.Sprintf("auth: timing dummy hash: %v", err))
	}
	return &Credential{
		cost:      cost,
		sem:       semaphore.NewWeighted(int64(workers)),
		dummyHash: string(dummy),
	}
}

// Cost は実際に使用されるハッシュコストを返します。
func (c *Credential) Cost() int {
	return c.cost
}

// Hash は設定済みのコストでパスワードをハッシュ化します。
func (c *Credential) Hash(ctx context.Context, password string) (string, error) {
	return c.HashWithCost(ctx, password, c.cost)
}

// HashWithCost は指定コストでパスワードをハッシュ化します。
// 呼び出しごとに新しいソルトを使うため、同じ入力でも結果は毎回異なります。
// エラーになるのは ctx の終了と乱数取得の失敗だけです。
func (c *Credential) HashWithCost(ctx context.Context, password string, cost int) (string, error) {
	cost = config.ClampBcryptCost(cost)
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.sem.Release(1)
	defer metrics.ObservePasswordHash("hash", time.Now())

	hash, err := bcrypt.GenerateFromPassword(passwordBytes(password), cost)
	if err != nil {
		return "", fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	return string(hash), nil
}

// Verify は password が hash と一致するかを返します。
// hash が空の場合は計算せずに false を返します。
// 形式が不正なハッシュも不一致として扱い、エラーにはしません。
func (c *Credential) Verify(ctx context.Context, password, hash string) bool {
	if hash == "" {
		return false
	}
	if err := c.acquire(ctx); err != nil {
		return false
	}
	defer c.sem.Release(1)
	defer metrics.ObservePasswordHash("verify", time.Now())

	return bcrypt.CompareHashAndPassword([]byte(hash), passwordBytes(password)) == nil
}

// NeedsRehash は保存済みハッシュのコストが現在の設定を下回っているかを返します。
func (c *Credential) NeedsRehash(hash string) bool {
	if hash == "" {
		return false
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return cost < c.cost
}

// EqualizeTiming はダミーのハッシュに対して比較を行い、結果を捨てます。
// ユーザーやパスワードが存在しない場合でも、応答時間を不一致時とそろえるために使います。
func (c *Credential) EqualizeTiming(ctx context.Context, password string) {
	_ = c.Verify(ctx, password, c.dummyHash)
}

// MeetsRequirements はパスワード強度の最低条件を満たすかを返します。
// 大文字 1 文字以上、数字 1 文字以上、8 文字以上です。
func MeetsRequirements(password string) bool {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return false
	}
	var upper, digit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && digit
}

func (c *Credential) acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.sem.Acquire(ctx, 1)
}

func passwordBytes(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
