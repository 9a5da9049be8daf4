package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"voicematch/internal/models"
)

// CategoryStore exposes the eligibility data the queue layer reads before
// admitting a user.
type CategoryStore interface {
	ListActive(ctx context.Context) ([]models.Category, error)
	IsActive(ctx context.Context, id string) (bool, error)
}

type gormCategoryStore struct {
	db *gorm.DB
}

func NewCategoryStore(db *gorm.DB) CategoryStore {
	return &gormCategoryStore{db: db}
}

func (s *gormCategoryStore) ListActive(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("name").Find(&categories).Error
	if err != nil {
		return nil, fmt.Errorf("list active categories: %w", err)
	}
	return categories, nil
}

func (s *gormCategoryStore) IsActive(ctx context.Context, id string) (bool, error) {
	var category models.Category
	err := s.db.WithContext(ctx).Select("active").First(&category, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load category %s: %w", id, err)
	}
	return category.Active, nil
}
