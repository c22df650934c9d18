// Package codec はトークンのワイヤーフォーマットのエンコード・デコードを提供する。
//
// トークンは base64url（パディングなし）でエンコードされたヘッダー、ペイロード、署名を
// "." で連結した文字列。署名はセグメントの文字列ではなく Serialize の出力バイト列に対して行う。
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"token-issuer-service/internal/domain"
)

const segmentCount = 3

// ErrUnrepresentable は表現できない値をシリアライズしようとした場合のエラー。
var ErrUnrepresentable = errors.New("value is not representable")

var encoding = base64.RawURLEncoding

// EncodeSegment はバイト列を base64url（パディングなし）でエンコードする。
func EncodeSegment(b []byte) string {
	return encoding.EncodeToString(b)
}

// DecodeSegment は base64url（パディングなし）の文字列をデコードする。
func DecodeSegment(s string) ([]byte, error) {
	b, err := encoding.Strict().DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEncoding, err)
	}
	return b, nil
}

// SplitToken はトークンをヘッダー・ペイロード・署名の3セグメントに分割する。
func SplitToken(token string) (header, payload, signature string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != segmentCount {
		return "", "", "", fmt.Errorf("%w: expected %d segments, got %d", domain.ErrMalformedToken, segmentCount, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return "", "", "", fmt.Errorf("%w: segment %d is empty", domain.ErrMalformedToken, i)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// JoinToken はエンコード済みの3セグメントを連結する。
func JoinToken(header, payload, signature string) string {
	return header + "." + payload + "." + signature
}

// SerializeHeader はヘッダーを正規化されたバイト列に変換する。
func SerializeHeader(h domain.Header) ([]byte, error) {
	if !utf8.ValidString(h.Type) || !utf8.ValidString(h.Algorithm) {
		return nil, fmt.Errorf("%w: header contains invalid UTF-8", ErrUnrepresentable)
	}
	return marshal(h)
}

// SerializePayload はペイロードを正規化されたバイト列に変換する。
func SerializePayload(p domain.Payload) ([]byte, error) {
	// encoding/json は不正な UTF-8 を U+FFFD に置換してしまうため事前に弾く
	if !utf8.ValidString(p.Subject) {
		return nil, fmt.Errorf("%w: subject contains invalid UTF-8", ErrUnrepresentable)
	}
	return marshal(p)
}

func marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrepresentable, err)
	}
	return b, nil
}

// rawPayload は必須フィールドの欠落を検出するための中間表現。
type rawPayload struct {
	Subject   *string           `json:"address"`
	ExpiresAt *domain.Timestamp `json:"exp"`
}

// DeserializePayload はバイト列からペイロードを復元する。未知のフィールド・欠落・後続データは不正とする。
func DeserializePayload(b []byte) (domain.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()

	var raw rawPayload
	if err := dec.Decode(&raw); err != nil {
		return domain.Payload{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.Payload{}, fmt.Errorf("%w: trailing data after payload", domain.ErrMalformedPayload)
	}
	if raw.Subject == nil {
		return domain.Payload{}, fmt.Errorf("%w: missing field \"address\"", domain.ErrMalformedPayload)
	}
	if raw.ExpiresAt == nil {
		return domain.Payload{}, fmt.Errorf("%w: missing field \"exp\"", domain.ErrMalformedPayload)
	}

	return domain.Payload{
		Subject:   *raw.Subject,
		ExpiresAt: *raw.ExpiresAt,
	}, nil
}
