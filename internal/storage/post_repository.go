package storage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"friendfeed/internal/models"
)

// Keyset is a position in a (created_at DESC, id DESC) ordering.
type Keyset struct {
	CreatedAt time.Time
	ID        uint
}

// PostRepository defines the interface for post data operations.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	// GetByIDForUpdate is GetByID with a row lock, for use inside a transaction.
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Post, error)
	UpdateCaption(ctx context.Context, id uint, caption string) error
	Delete(ctx context.Context, id uint) (bool, error)
	CountByOwner(ctx context.Context, ownerID uint) (int64, error)
	// HasPostedSince reports whether ownerID created a post at or after since.
	HasPostedSince(ctx context.Context, ownerID uint, since time.Time) (bool, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]*models.Post, error)
	// ListByOwners returns up to limit posts of the given owners, newest first,
	// strictly after the keyset position when one is given.
	ListByOwners(ctx context.Context, ownerIDs []uint, after *Keyset, limit int) ([]*models.Post, error)
}

type gormPostRepository struct {
	db *gorm.DB
}

// NewGormPostRepository creates a new GORM-based PostRepository.
func NewGormPostRepository(db *gorm.DB) PostRepository {
	return &gormPostRepository{db: db}
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

func (r *gormPostRepository) Create(ctx context.Context, post *models.Post) error {
	return wrapErr(r.db.WithContext(ctx).Create(post).Error, "postRepo.Create")
}

func (r *gormPostRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, wrapErr(err, "postRepo.GetByID")
	}
	return &post, nil
}

func (r *gormPostRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, id).Error
	if err != nil {
		return nil, wrapErr(err, "postRepo.GetByIDForUpdate")
	}
	return &post, nil
}

func (r *gormPostRepository) UpdateCaption(ctx context.Context, id uint, caption string) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Update("caption", caption)
	if res.Error != nil {
		return wrapErr(res.Error, "postRepo.UpdateCaption")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormPostRepository) Delete(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return false, wrapErr(res.Error, "postRepo.Delete")
	}
	return res.RowsAffected == 1, nil
}

func (r *gormPostRepository) CountByOwner(ctx context.Context, ownerID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Post{}).Where("owner_id = ?", ownerID).Count(&count).Error
	if err != nil {
		return 0, wrapErr(err, "postRepo.CountByOwner")
	}
	return count, nil
}

func (r *gormPostRepository) HasPostedSince(ctx context.Context, ownerID uint, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("owner_id = ? AND created_at >= ?", ownerID, since).
		Count(&count).Error
	if err != nil {
		return false, wrapErr(err, "postRepo.HasPostedSince")
	}
	return count > 0, nil
}

func (r *gormPostRepository) ListByOwner(ctx context.Context, ownerID uint) ([]*models.Post, error) {
	posts := []*models.Post{}
	err := r.db.WithContext(ctx).Scopes(newestFirst).Where("owner_id = ?", ownerID).Find(&posts).Error
	if err != nil {
		return nil, wrapErr(err, "postRepo.ListByOwner")
	}
	return posts, nil
}

func (r *gormPostRepository) ListByOwners(ctx context.Context, ownerIDs []uint, after *Keyset, limit int) ([]*models.Post, error) {
	posts := []*models.Post{}
	if len(ownerIDs) == 0 || limit <= 0 {
		return posts, nil
	}
	q := r.db.WithContext(ctx).Where("owner_id IN ?", ownerIDs)
	if after != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	if err := q.Scopes(newestFirst).Limit(limit).Find(&posts).Error; err != nil {
		return nil, wrapErr(err, "postRepo.ListByOwners")
	}
	return posts, nil
}
