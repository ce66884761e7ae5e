package services

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"friendfeed/internal/apperrors"
	"friendfeed/internal/config"
	"friendfeed/internal/kafka"
	"friendfeed/internal/mediatypes"
	"friendfeed/internal/models"
	"friendfeed/internal/storage"
)

// NewPost is the input of CreatePost.
type NewPost struct {
	Image     io.Reader
	ImageSize int64
	FileName  string
	MimeType  string
	Caption   string
}

// PostService manages posts and their comments.
type PostService interface {
	CreatePost(ctx context.Context, ownerID uint, in NewPost) (*models.PostView, error)
	GetPost(ctx context.Context, viewerID, postID uint) (*models.PostView, error)
	UpdateCaption(ctx context.Context, callerID, postID uint, caption string) (*models.PostView, error)
	DeletePost(ctx context.Context, callerID, postID uint) error
	ListMyPosts(ctx context.Context, userID uint) ([]*models.PostView, error)
	ListUserPosts(ctx context.Context, viewerID uint, username string) ([]*models.PostView, error)

	CreateComment(ctx context.Context, authorID, postID uint, text string) (*models.CommentView, error)
	DeleteComment(ctx context.Context, callerID, commentID uint) error
	ListComments(ctx context.Context, viewerID, postID uint) ([]*models.CommentView, error)
}

type postService struct {
	db          *gorm.DB
	postRepo    storage.PostRepository
	commentRepo storage.CommentRepository
	identity    IdentityDirectory
	blobs       mediatypes.BlobStore
	activity    ActivityPublisher
	policy      config.PolicyConfig
	now         Clock
}

// NewPostService creates a new PostService. A nil clock means UTC wall time.
func NewPostService(
	db *gorm.DB,
	postRepo storage.PostRepository,
	commentRepo storage.CommentRepository,
	identity IdentityDirectory,
	blobs mediatypes.BlobStore,
	activity ActivityPublisher,
	policy config.PolicyConfig,
	now Clock,
) PostService {
	if now == nil {
		now = utcNow
	}
	if activity == nil {
		activity = noopPublisher{}
	}
	return &postService{
		db:          db,
		postRepo:    postRepo,
		commentRepo: commentRepo,
		identity:    identity,
		blobs:       blobs,
		activity:    activity,
		policy:      policy,
		now:         now,
	}
}

func (s *postService) views() contentViews {
	return contentViews{comments: s.commentRepo, identity: s.identity, blobs: s.blobs}
}

func (s *postService) validCaption(caption string) error {
	if utf8.RuneCountInString(caption) > s.policy.MaxCaptionLength {
		return apperrors.ErrCaptionTooLong
	}
	return nil
}

// checkPostingAllowed enforces the cooldown window and the per-user post quota.
func (s *postService) checkPostingAllowed(ctx context.Context, repo storage.PostRepository, ownerID uint, now time.Time) error {
	recent, err := repo.HasPostedSince(ctx, ownerID, now.Add(-s.policy.PostCooldown))
	if err != nil {
		return storeErr("checkPostingAllowed.HasPostedSince", err)
	}
	if recent {
		return apperrors.ErrPostRateLimited
	}
	count, err := repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return storeErr("checkPostingAllowed.CountByOwner", err)
	}
	if count >= s.policy.MaxPosts {
		return apperrors.ErrPostLimitReached
	}
	return nil
}

// CreatePost stores the image and inserts the post. The limits are checked once
// up front so a rejected post never reaches the blob store, and again under the
// owner's row lock so concurrent uploads cannot both slip through.
func (s *postService) CreatePost(ctx context.Context, ownerID uint, in NewPost) (*models.PostView, error) {
	if err := s.validCaption(in.Caption); err != nil {
		return nil, err
	}
	if in.Image == nil || in.ImageSize <= 0 {
		return nil, apperrors.ErrImageRequired
	}
	if in.ImageSize > s.policy.MaxPostImageBytes {
		return nil, apperrors.ErrImageTooLarge
	}
	if err := s.checkPostingAllowed(ctx, s.postRepo, ownerID, s.now()); err != nil {
		return nil, err
	}

	info, err := s.blobs.Store(ctx, in.Image, in.ImageSize, in.FileName, in.MimeType)
	if err != nil {
		return nil, storeErr("CreatePost.Store", err)
	}

	post := &models.Post{OwnerID: ownerID, ImageRef: info.Ref, Caption: in.Caption}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txPostRepo := storage.NewGormPostRepository(tx)
		if err := storage.NewGormUserRepository(tx).LockUsers(ctx, ownerID); err != nil {
			return notFoundAs("CreatePost.LockUsers", err, apperrors.ErrUserNotFound)
		}
		now := s.now()
		if err := s.checkPostingAllowed(ctx, txPostRepo, ownerID, now); err != nil {
			return err
		}
		post.CreatedAt = now
		post.UpdatedAt = now
		if err := txPostRepo.Create(ctx, post); err != nil {
			return storeErr("CreatePost.Create", err)
		}
		return nil
	})
	if txErr != nil {
		releaseBlob(ctx, s.blobs, info.Ref)
		return nil, txErr
	}

	log.Printf("Post %d created by user %d", post.ID, ownerID)
	s.activity.Publish(ctx, kafka.ActivityEvent{Type: kafka.PostCreated, ActorID: ownerID, ObjectID: post.ID})

	views, err := attachVisibleComments(ctx, s.views(), ownerID, []*models.Post{post})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// GetPost returns any post to any authenticated viewer, with the comments that viewer may see.
func (s *postService) GetPost(ctx context.Context, viewerID, postID uint) (*models.PostView, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, notFoundAs("GetPost", err, apperrors.ErrPostNotFound)
	}
	views, err := attachVisibleComments(ctx, s.views(), viewerID, []*models.Post{post})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func (s *postService) UpdateCaption(ctx context.Context, callerID, postID uint, caption string) (*models.PostView, error) {
	if err := s.validCaption(caption); err != nil {
		return nil, err
	}
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, notFoundAs("UpdateCaption", err, apperrors.ErrPostNotFound)
	}
	if post.OwnerID != callerID {
		return nil, apperrors.ErrNotPostOwner
	}
	if err := s.postRepo.UpdateCaption(ctx, postID, caption); err != nil {
		return nil, notFoundAs("UpdateCaption", err, apperrors.ErrPostNotFound)
	}
	return s.GetPost(ctx, callerID, postID)
}

// DeletePost removes the post and its comments in one transaction, then releases the image.
func (s *postService) DeletePost(ctx context.Context, callerID, postID uint) error {
	var imageRef string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txPostRepo := storage.NewGormPostRepository(tx)
		post, err := txPostRepo.GetByIDForUpdate(ctx, postID)
		if err != nil {
			return notFoundAs("DeletePost.Get", err, apperrors.ErrPostNotFound)
		}
		if post.OwnerID != callerID {
			return apperrors.ErrNotPostOwner
		}
		if _, err := storage.NewGormCommentRepository(tx).DeleteByPost(ctx, postID); err != nil {
			return storeErr("DeletePost.DeleteComments", err)
		}
		deleted, err := txPostRepo.Delete(ctx, postID)
		if err != nil {
			return storeErr("DeletePost.Delete", err)
		}
		if !deleted {
			return apperrors.ErrPostNotFound
		}
		imageRef = post.ImageRef
		return nil
	})
	if txErr != nil {
		return txErr
	}

	releaseBlob(ctx, s.blobs, imageRef)
	log.Printf("Post %d deleted by user %d", postID, callerID)
	s.activity.Publish(ctx, kafka.ActivityEvent{Type: kafka.PostDeleted, ActorID: callerID, ObjectID: postID})
	return nil
}

func (s *postService) ListMyPosts(ctx context.Context, userID uint) ([]*models.PostView, error) {
	posts, err := s.postRepo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, storeErr("ListMyPosts", err)
	}
	return attachVisibleComments(ctx, s.views(), userID, posts)
}

func (s *postService) ListUserPosts(ctx context.Context, viewerID uint, username string) ([]*models.PostView, error) {
	ownerID, err := s.identity.ResolveByHandle(ctx, username)
	if err != nil {
		return nil, err
	}
	posts, err := s.postRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeErr("ListUserPosts", err)
	}
	return attachVisibleComments(ctx, s.views(), viewerID, posts)
}

// CreateComment adds a comment to an existing post. The text is stored trimmed.
// The post row is locked for the insert, the same lock DeletePost takes, so a
// comment either lands before the cascade or sees the post gone.
func (s *postService) CreateComment(ctx context.Context, authorID, postID uint, text string) (*models.CommentView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.ErrEmptyComment
	}

	comment := &models.Comment{PostID: postID, AuthorID: authorID, Text: text}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := storage.NewGormPostRepository(tx).GetByIDForUpdate(ctx, postID); err != nil {
			return notFoundAs("CreateComment.GetPost", err, apperrors.ErrPostNotFound)
		}
		if err := storage.NewGormCommentRepository(tx).Create(ctx, comment); err != nil {
			return notFoundAs("CreateComment", err, apperrors.ErrPostNotFound)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	infos, err := s.identity.DisplayInfo(ctx, authorID)
	if err != nil {
		return nil, err
	}
	return &models.CommentView{Comment: *comment, Author: infos[authorID]}, nil
}

// DeleteComment lets the comment's author or the post's owner delete it.
func (s *postService) DeleteComment(ctx context.Context, callerID, commentID uint) error {
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return notFoundAs("DeleteComment.Get", err, apperrors.ErrCommentNotFound)
	}
	if comment.AuthorID != callerID {
		post, err := s.postRepo.GetByID(ctx, comment.PostID)
		if err != nil {
			return notFoundAs("DeleteComment.GetPost", err, apperrors.ErrCommentNotFound)
		}
		if post.OwnerID != callerID {
			return apperrors.ErrNotCommentDeleter
		}
	}

	deleted, err := s.commentRepo.Delete(ctx, commentID)
	if err != nil {
		return storeErr("DeleteComment", err)
	}
	if !deleted {
		return apperrors.ErrCommentNotFound
	}
	return nil
}

func (s *postService) ListComments(ctx context.Context, viewerID, postID uint) ([]*models.CommentView, error) {
	view, err := s.GetPost(ctx, viewerID, postID)
	if err != nil {
		return nil, err
	}
	return view.Comments, nil
}

// releaseBlob deletes a blob whose row is already gone or was never written.
// Failures only leak a file, so they are logged.
func releaseBlob(ctx context.Context, blobs mediatypes.BlobStore, ref string) {
	if ref == "" {
		return
	}
	if err := blobs.Delete(context.WithoutCancel(ctx), ref); err != nil && !errors.Is(err, mediatypes.ErrBlobNotFound) {
		log.Printf("Error releasing blob %s: %v", ref, err)
	}
}
