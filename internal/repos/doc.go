package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/types"
)

type DocRepo interface {
	Create(ctx context.Context, tx *gorm.DB, doc *types.Doc) (*types.Doc, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int) (*types.Doc, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Doc, error)
}

type docRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocRepo(db *gorm.DB, baseLog *logger.Logger) DocRepo {
	return &docRepo{
		db:  db,
		log: baseLog.With("repo", "DocRepo"),
	}
}

func (r *docRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Doc) (*types.Doc, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if doc == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *docRepo) GetByID(ctx context.Context, tx *gorm.DB, id int) (*types.Doc, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var doc types.Doc
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *docRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Doc, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Doc
	if err := transaction.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
