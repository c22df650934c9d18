package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ヘッダーの固定値。alg は歴史的なラベルで、実際の署名方式は secp256k1 ECDSA。
const (
	TokenType      = "JWT"
	TokenAlgorithm = "HS256"
)

// Header はトークンヘッダーを表す。
type Header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// DefaultHeader は全トークン共通のヘッダーを返す。
func DefaultHeader() Header {
	return Header{Type: TokenType, Algorithm: TokenAlgorithm}
}

// Payload はトークンのペイロードを表す。
type Payload struct {
	Subject   string    `json:"address"`
	ExpiresAt Timestamp `json:"exp"`
}

// Timestamp は Unix エポックからのナノ秒。JSON では10進数の文字列として表現する。
type Timestamp uint64

// TimestampFromTime は time.Time を Timestamp に変換する。エポック以前は0に丸める。
func TimestampFromTime(t time.Time) Timestamp {
	ns := t.UnixNano()
	if ns < 0 {
		return 0
	}
	return Timestamp(ns)
}

// Add は秒数を加算した Timestamp を返す。
func (ts Timestamp) Add(seconds uint64) Timestamp {
	return ts + Timestamp(seconds*uint64(time.Second))
}

// Time は Timestamp を time.Time に変換する。
func (ts Timestamp) Time() time.Time {
	return time.Unix(0, int64(ts)).UTC()
}

// MarshalJSON は Timestamp を10進数の文字列として出力する。
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(ts), 10))
}

// UnmarshalJSON は10進数の文字列を Timestamp として読み込む。
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp must be a decimal integer: %w", err)
	}
	*ts = Timestamp(n)
	return nil
}
