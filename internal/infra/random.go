package infra

import (
	"crypto/rand"
	"fmt"
	"io"

	"token-issuer-service/internal/domain"
)

// RandomSource は鍵生成用のシードを読み出す。
type RandomSource struct {
	reader io.Reader
}

// NewRandomSource は crypto/rand を読むRandomSourceを生成する。
func NewRandomSource() *RandomSource {
	return &RandomSource{reader: rand.Reader}
}

// ReadSeed は秘密スカラー長のランダムなシードを返す。
func (r *RandomSource) ReadSeed() ([]byte, error) {
	seed := make([]byte, domain.PrivateKeySize)
	if _, err := io.ReadFull(r.reader, seed); err != nil {
		return nil, fmt.Errorf("%w: reading random seed: %v", domain.ErrKeygen, err)
	}
	return seed, nil
}
