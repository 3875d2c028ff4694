package repository

import (
	"context"

	"pointmarket/internal/model"

	"gorm.io/gorm"
)

// CatalogRepository 商品目录只读视图
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) get(ctx context.Context, projectID int64) (*model.ProjectRecord, error) {
	var project model.ProjectRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted = ?", projectID, false).
		First(&project).Error
	if err != nil {
		return nil, notFound(err, "项目不存在: %d", projectID)
	}
	return &project, nil
}

func (r *CatalogRepository) ProjectPrice(ctx context.Context, projectID int64) (int64, error) {
	project, err := r.get(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return project.Price, nil
}

func (r *CatalogRepository) ProjectOwner(ctx context.Context, projectID int64) (int64, error) {
	project, err := r.get(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return project.UserID, nil
}

func (r *CatalogRepository) ProjectTitle(ctx context.Context, projectID int64) (string, error) {
	project, err := r.get(ctx, projectID)
	if err != nil {
		return "", err
	}
	return project.Title, nil
}

func (r *CatalogRepository) IsPublished(ctx context.Context, projectID int64) (bool, error) {
	project, err := r.get(ctx, projectID)
	if err != nil {
		return false, err
	}
	return project.Status == model.ProjectStatusPublished, nil
}

// IdentityRepository 用户中心只读视图
type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.UserRecord{}).
		Where("id = ? AND deleted = ?", userID, false).
		Count(&count).Error
	return count > 0, err
}
