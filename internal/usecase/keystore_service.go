// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"token-issuer-service/internal/domain"
	"token-issuer-service/internal/signer"
)

// SlotRepository はキーストアスロットの永続化のインターフェース。
type SlotRepository interface {
	ExistsAny(ctx context.Context, names ...string) (bool, error)
	CreateAll(ctx context.Context, slots []*domain.Slot) error
	FindByName(ctx context.Context, name string) (*domain.Slot, error)
}

// Sealer は秘密鍵を保存前に暗号化、読み出し後に復号するインターフェース。
type Sealer interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KeystoreService は署名用鍵ペアと有効期限ポリシーを管理する。
// Initialize は一度だけ成功し、以降のストアは読み取り専用として扱う。
type KeystoreService struct {
	repo   SlotRepository
	sealer Sealer

	mu          sync.Mutex
	initialized bool
}

// NewKeystoreService は新しいKeystoreServiceを生成する。
func NewKeystoreService(repo SlotRepository, sealer Sealer) *KeystoreService {
	return &KeystoreService{
		repo:   repo,
		sealer: sealer,
	}
}

// Initialize はシードから秘密鍵を生成し、有効期限ポリシーとともに保存する。
func (s *KeystoreService) Initialize(ctx context.Context, seed []byte, expirySeconds uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return domain.ErrAlreadyInitialized
	}

	// 別プロセスが初期化済みの場合もここで弾く
	exists, err := s.repo.ExistsAny(ctx, domain.SlotPrivateKey, domain.SlotExpiry)
	if err != nil {
		return fmt.Errorf("checking keystore: %w", err)
	}
	if exists {
		s.initialized = true
		return domain.ErrAlreadyInitialized
	}

	if seed == nil {
		return fmt.Errorf("%w: no random seed supplied", domain.ErrKeygen)
	}
	key, err := signer.ParsePrivateKey(seed)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrKeygen, err)
	}

	sealed, err := s.sealer.Encrypt(ctx, key.Bytes())
	if err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}

	expiry := make([]byte, domain.ExpirySize)
	binary.BigEndian.PutUint64(expiry, expirySeconds)

	slots := []*domain.Slot{
		{Name: domain.SlotPrivateKey, Value: sealed},
		{Name: domain.SlotExpiry, Value: expiry},
	}
	if err := s.repo.CreateAll(ctx, slots); err != nil {
		if errors.Is(err, domain.ErrSlotAlreadyExists) {
			s.initialized = true
			return domain.ErrAlreadyInitialized
		}
		return fmt.Errorf("saving keystore: %w", err)
	}

	s.initialized = true
	return nil
}

// Initialized はキーストアが初期化済みか返す。
func (s *KeystoreService) Initialized(ctx context.Context) (bool, error) {
	s.mu.Lock()
	done := s.initialized
	s.mu.Unlock()
	if done {
		return true, nil
	}

	exists, err := s.repo.ExistsAny(ctx, domain.SlotPrivateKey, domain.SlotExpiry)
	if err != nil {
		return false, fmt.Errorf("checking keystore: %w", err)
	}
	return exists, nil
}

// LoadKeyPair は保存済みの秘密鍵を読み出す。
func (s *KeystoreService) LoadKeyPair(ctx context.Context) (*signer.PrivateKey, error) {
	slot, err := s.repo.FindByName(ctx, domain.SlotPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("finding private key: %w", err)
	}
	if slot == nil {
		return nil, domain.ErrKeyNotFound
	}

	plain, err := s.sealer.Decrypt(ctx, slot.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: unsealing: %v", domain.ErrKeyNotFound, err)
	}
	key, err := signer.ParsePrivateKey(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyNotFound, err)
	}
	return key, nil
}

// LoadExpiry は保存済みの有効期限ポリシーを読み出す。
func (s *KeystoreService) LoadExpiry(ctx context.Context) (domain.ExpiryPolicy, error) {
	slot, err := s.repo.FindByName(ctx, domain.SlotExpiry)
	if err != nil {
		return domain.ExpiryPolicy{}, fmt.Errorf("finding expiry policy: %w", err)
	}
	if slot == nil {
		return domain.ExpiryPolicy{}, domain.ErrPolicyNotFound
	}
	if len(slot.Value) != domain.ExpirySize {
		return domain.ExpiryPolicy{}, fmt.Errorf("%w: want %d bytes, got %d", domain.ErrPolicyNotFound, domain.ExpirySize, len(slot.Value))
	}
	return domain.ExpiryPolicy{Seconds: binary.BigEndian.Uint64(slot.Value)}, nil
}

// PublicKey は保存済みの秘密鍵から非圧縮公開鍵（65バイト）を導出する。
func (s *KeystoreService) PublicKey(ctx context.Context) ([]byte, error) {
	key, err := s.LoadKeyPair(ctx)
	if err != nil {
		return nil, err
	}
	return key.PublicKey(), nil
}
