// Package repository provides a thin generic data-access layer over gorm.
// Services use it for single-entity reads and writes; multi-row invariants
// (the slot acceptance transaction) go through raw *gorm.DB transactions and
// pass the tx back in with WithTrx.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kolmarket/pkg/db/option"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	BatchCreate(ctx context.Context, resources []*T) error
	BatchUpdate(ctx context.Context, resources []*T) error
	Count(ctx context.Context, query *T) (int64, error)
}

var schemaCache = &sync.Map{}

type store[T any] struct {
	db *gorm.DB
	pk string
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	var model T
	pk := "id"
	if s, err := schema.Parse(&model, schemaCache, db.NamingStrategy); err == nil && s.PrioritizedPrimaryField != nil {
		pk = s.PrioritizedPrimaryField.DBName
	}
	return &store[T]{db: db, pk: pk}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx, pk: s.pk}
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	tx := s.db.WithContext(ctx).Where(query)
	if err := option.Apply(tx, opts...).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var out T
	tx := s.db.WithContext(ctx).Where(query)
	if err := option.Apply(tx, opts...).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *store[T]) Update(ctx context.Context, resourceID string, resource any) error {
	var model T
	return s.db.WithContext(ctx).
		Model(&model).
		Where(fmt.Sprintf("%s = ?", s.pk), resourceID).
		Updates(resource).Error
}

func (s *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&resources).Error
}

func (s *store[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	for _, r := range resources {
		if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var model T
	var n int64
	err := s.db.WithContext(ctx).Model(&model).Where(query).Count(&n).Error
	return n, err
}
