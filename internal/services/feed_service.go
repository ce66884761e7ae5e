package services

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"friendfeed/internal/apperrors"
	"friendfeed/internal/config"
	"friendfeed/internal/mediatypes"
	"friendfeed/internal/models"
	"friendfeed/internal/storage"
)

// FeedService builds a viewer's feed from the posts of their accepted friends.
type FeedService interface {
	// GetFeed returns one page, newest first. An empty cursor starts at the top;
	// pageSize <= 0 means the configured default and larger values are clamped.
	GetFeed(ctx context.Context, viewerID uint, cursor string, pageSize int) (*models.FeedPage, error)
}

type feedService struct {
	friendshipRepo storage.FriendshipRepository
	postRepo       storage.PostRepository
	views          contentViews
	policy         config.PolicyConfig
}

func NewFeedService(
	friendshipRepo storage.FriendshipRepository,
	postRepo storage.PostRepository,
	commentRepo storage.CommentRepository,
	identity IdentityDirectory,
	blobs mediatypes.BlobStore,
	policy config.PolicyConfig,
) FeedService {
	return &feedService{
		friendshipRepo: friendshipRepo,
		postRepo:       postRepo,
		views:          contentViews{comments: commentRepo, identity: identity, blobs: blobs},
		policy:         policy,
	}
}

func (s *feedService) pageSize(requested int) int {
	switch {
	case requested <= 0:
		return s.policy.FeedPageSize
	case requested > s.policy.FeedMaxPageSize:
		return s.policy.FeedMaxPageSize
	default:
		return requested
	}
}

func (s *feedService) GetFeed(ctx context.Context, viewerID uint, cursor string, pageSize int) (*models.FeedPage, error) {
	after, err := DecodeFeedCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit := s.pageSize(pageSize)

	friendIDs, err := s.friendshipRepo.FriendIDs(ctx, viewerID)
	if err != nil {
		return nil, storeErr("GetFeed.FriendIDs", err)
	}
	page := &models.FeedPage{Posts: []*models.PostView{}}
	if len(friendIDs) == 0 {
		return page, nil
	}

	// One extra row tells whether another page exists.
	posts, err := s.postRepo.ListByOwners(ctx, friendIDs, after, limit+1)
	if err != nil {
		return nil, storeErr("GetFeed.ListByOwners", err)
	}
	if len(posts) > limit {
		posts = posts[:limit]
		page.HasMore = true
		last := posts[len(posts)-1]
		page.NextCursor = EncodeFeedCursor(storage.Keyset{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	page.Posts, err = attachVisibleComments(ctx, s.views, viewerID, posts)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// EncodeFeedCursor renders a keyset position as an opaque token.
func EncodeFeedCursor(k storage.Keyset) string {
	raw := strconv.FormatInt(k.CreatedAt.UnixNano(), 10) + ":" + strconv.FormatUint(uint64(k.ID), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeFeedCursor parses a token made by EncodeFeedCursor. An empty token is the first page.
func DecodeFeedCursor(cursor string) (*storage.Keyset, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, apperrors.ErrInvalidCursor
	}
	nanosPart, idPart, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, apperrors.ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil {
		return nil, apperrors.ErrInvalidCursor
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == 0 {
		return nil, apperrors.ErrInvalidCursor
	}
	return &storage.Keyset{CreatedAt: time.Unix(0, nanos).UTC(), ID: uint(id)}, nil
}
