// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// スロット名。鍵とポリシーはそれぞれ独立したスロットに保存される。
const (
	SlotPrivateKey = "privkey"
	SlotExpiry     = "expiry"
)

const (
	// PrivateKeySize は secp256k1 秘密スカラーのバイト長。
	PrivateKeySize = 32
	// PublicKeySize は非圧縮公開鍵のバイト長。
	PublicKeySize = 65
	// ExpirySize は有効期限（秒）のシリアライズ後のバイト長。
	ExpirySize = 8
)

// Slot はキーストアに永続化される1件の値を表す。
type Slot struct {
	Name      string
	Value     []byte
	CreatedAt time.Time
}

// ExpiryPolicy はトークンの有効期間を表す。初期化後は変更されない。
type ExpiryPolicy struct {
	Seconds uint64
}

// Duration は有効期間を time.Duration で返す。
func (p ExpiryPolicy) Duration() time.Duration {
	return time.Duration(p.Seconds) * time.Second
}

// HoursToSeconds はセットアップ入力の時間数を秒に変換する。
func HoursToSeconds(hours uint8) uint64 {
	return uint64(hours) * 3600
}
