// Package signer は secp256k1 ECDSA による署名と検証を提供する。
//
// 署名は SHA-256 ハッシュに対して RFC 6979 の決定的ナンスで行い、r||s の64バイト（low-S）で表す。
package signer

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureSize は r||s 形式の署名のバイト長。
const SignatureSize = 64

const scalarSize = 32

var (
	// ErrInvalidPrivateKey は秘密スカラーが 0 または曲線位数以上、もしくは長さ不正の場合のエラー。
	ErrInvalidPrivateKey = errors.New("invalid secp256k1 private key")
	// ErrInvalidPublicKey は公開鍵が曲線上の点として解釈できない場合のエラー。
	ErrInvalidPublicKey = errors.New("invalid secp256k1 public key")
	// ErrInvalidSignature は署名が r||s 形式として解釈できない場合のエラー。
	ErrInvalidSignature = errors.New("invalid signature encoding")
)

// PrivateKey は secp256k1 の秘密鍵。
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// ParsePrivateKey は32バイトのスカラーを秘密鍵として解釈する。
// secp256k1.PrivKeyFromBytes は位数で剰余を取ってしまうため、範囲外の値はここで弾く。
func ParsePrivateKey(b []byte) (*PrivateKey, error) {
	if len(b) != scalarSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPrivateKey, scalarSize, len(b))
	}
	var k secp256k1.ModNScalar
	if overflow := k.SetByteSlice(b); overflow {
		return nil, fmt.Errorf("%w: scalar is not less than the curve order", ErrInvalidPrivateKey)
	}
	if k.IsZero() {
		return nil, fmt.Errorf("%w: scalar is zero", ErrInvalidPrivateKey)
	}
	return &PrivateKey{key: secp256k1.NewPrivateKey(&k)}, nil
}

// Bytes は秘密スカラーの32バイト表現を返す。永続化以外の用途で使ってはならない。
func (k *PrivateKey) Bytes() []byte {
	return k.key.Serialize()
}

// PublicKey は非圧縮形式（65バイト）の公開鍵を返す。
func (k *PrivateKey) PublicKey() []byte {
	return k.key.PubKey().SerializeUncompressed()
}

// Hash はメッセージの SHA-256 ハッシュを返す。
func Hash(message []byte) []byte {
	sum := sha256.Sum256(message)
	return sum[:]
}

// Sign はメッセージの SHA-256 ハッシュに署名し、r||s の64バイトを返す。
func Sign(k *PrivateKey, message []byte) ([]byte, error) {
	if k == nil || k.key == nil {
		return nil, ErrInvalidPrivateKey
	}
	// SignCompact は [recovery id || r || s] を返すので先頭1バイトを落とす
	compact := ecdsa.SignCompact(k.key, Hash(message), false)
	if len(compact) != SignatureSize+1 {
		return nil, fmt.Errorf("unexpected compact signature length %d", len(compact))
	}
	sig := make([]byte, SignatureSize)
	copy(sig, compact[1:])
	return sig, nil
}

// Verify はハッシュに対する r||s 署名を公開鍵で検証する。
// 署名の形式が不正な場合は ErrInvalidSignature、公開鍵が不正な場合は ErrInvalidPublicKey を返す。
func Verify(publicKey, hash, signature []byte) (bool, error) {
	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(signature) != SignatureSize {
		return false, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(signature))
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:scalarSize]); overflow || r.IsZero() {
		return false, fmt.Errorf("%w: r is out of range", ErrInvalidSignature)
	}
	if overflow := s.SetByteSlice(signature[scalarSize:]); overflow || s.IsZero() {
		return false, fmt.Errorf("%w: s is out of range", ErrInvalidSignature)
	}
	// 同一メッセージに対する署名の可鍛性を避けるため high-S は受け付けない
	if s.IsOverHalfOrder() {
		return false, nil
	}

	return ecdsa.NewSignature(&r, &s).Verify(hash, pub), nil
}
