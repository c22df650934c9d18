// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"token-issuer-service/internal/domain"
)

// KeystoreSlotModel はgorm用のモデル定義。
type KeystoreSlotModel struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Name      string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_slot_name"`
	Value     []byte    `gorm:"type:blob;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (KeystoreSlotModel) TableName() string {
	return "keystore_slots"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *KeystoreSlotModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *KeystoreSlotModel) toDomain() *domain.Slot {
	return &domain.Slot{
		Name:      m.Name,
		Value:     m.Value,
		CreatedAt: m.CreatedAt,
	}
}

// SlotRepository はRDB上のキーストアスロットへのアクセスを提供する。
type SlotRepository struct {
	db *gorm.DB
}

// NewSlotRepository は新しいSlotRepositoryを生成する。
func NewSlotRepository(db *gorm.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// ExistsAny は指定されたスロットのいずれかが存在するか確認する。
func (r *SlotRepository) ExistsAny(ctx context.Context, names ...string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&KeystoreSlotModel{}).
		Where("name IN ?", names).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count slots",
			"operation", "exists_any",
			"names", names,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// CreateAll は全スロットを1トランザクションで作成する。いずれかが既に存在すれば何も書き込まない。
func (r *SlotRepository) CreateAll(ctx context.Context, slots []*domain.Slot) error {
	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = s.Name
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&KeystoreSlotModel{}).Where("name IN ?", names).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrSlotAlreadyExists
		}

		models := make([]*KeystoreSlotModel, len(slots))
		for i, s := range slots {
			models[i] = &KeystoreSlotModel{Name: s.Name, Value: s.Value}
		}
		if err := tx.Create(&models).Error; err != nil {
			// 並行して作成された場合は一意制約違反になる
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrSlotAlreadyExists
			}
			return err
		}

		for i, m := range models {
			slots[i].CreatedAt = m.CreatedAt
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrSlotAlreadyExists) {
			return err
		}
		slog.ErrorContext(ctx, "failed to create slots",
			"operation", "create_all",
			"names", names,
			"error", err,
		)
		return err
	}
	return nil
}

// FindByName は指定された名前のスロットを取得する。存在しない場合は nil を返す。
func (r *SlotRepository) FindByName(ctx context.Context, name string) (*domain.Slot, error) {
	var model KeystoreSlotModel
	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find slot",
			"operation", "find_by_name",
			"name", name,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}
