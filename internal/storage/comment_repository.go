package storage

import (
	"context"

	"gorm.io/gorm"

	"friendfeed/internal/models"
)

// CommentRepository defines the interface for comment data operations.
type CommentRepository interface {
	// Create returns ErrNotFound if the post does not exist (foreign key).
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	Delete(ctx context.Context, id uint) (bool, error)
	DeleteByPost(ctx context.Context, postID uint) (int64, error)
	// ListVisible returns the comments on postIDs that viewerID may see: all of
	// them on the viewer's own posts, only the viewer's own elsewhere.
	// Comments come back oldest first.
	ListVisible(ctx context.Context, viewerID uint, postIDs []uint) ([]*models.Comment, error)
}

type gormCommentRepository struct {
	db *gorm.DB
}

// NewGormCommentRepository creates a new GORM-based CommentRepository.
func NewGormCommentRepository(db *gorm.DB) CommentRepository {
	return &gormCommentRepository{db: db}
}

func (r *gormCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	err := r.db.WithContext(ctx).Create(comment).Error
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	return wrapErr(err, "commentRepo.Create")
}

func (r *gormCommentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var c models.Comment
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, wrapErr(err, "commentRepo.GetByID")
	}
	return &c, nil
}

func (r *gormCommentRepository) Delete(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.Comment{}, id)
	if res.Error != nil {
		return false, wrapErr(res.Error, "commentRepo.Delete")
	}
	return res.RowsAffected == 1, nil
}

func (r *gormCommentRepository) DeleteByPost(ctx context.Context, postID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&models.Comment{})
	if res.Error != nil {
		return 0, wrapErr(res.Error, "commentRepo.DeleteByPost")
	}
	return res.RowsAffected, nil
}

func (r *gormCommentRepository) ListVisible(ctx context.Context, viewerID uint, postIDs []uint) ([]*models.Comment, error) {
	comments := []*models.Comment{}
	if len(postIDs) == 0 {
		return comments, nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Select("comments.*").
		Joins("JOIN posts ON posts.id = comments.post_id").
		Where("comments.post_id IN ?", postIDs).
		Where("(comments.author_id = ? OR posts.owner_id = ?)", viewerID, viewerID).
		Order("comments.created_at ASC").
		Order("comments.id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, wrapErr(err, "commentRepo.ListVisible")
	}
	return comments, nil
}
