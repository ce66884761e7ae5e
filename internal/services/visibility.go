package services

import (
	"context"

	"friendfeed/internal/mediatypes"
	"friendfeed/internal/models"
	"friendfeed/internal/storage"
)

// contentViews holds what is needed to turn stored posts into PostViews.
type contentViews struct {
	comments storage.CommentRepository
	identity IdentityDirectory
	blobs    mediatypes.BlobStore
}

// attachVisibleComments builds the views of posts for viewerID. It is the only
// place comment visibility is decided: the owner of a post sees every comment
// on it, anyone else sees only the comments they wrote themselves.
// Owner and author info for the whole batch is loaded in one lookup.
func attachVisibleComments(ctx context.Context, v contentViews, viewerID uint, posts []*models.Post) ([]*models.PostView, error) {
	views := make([]*models.PostView, 0, len(posts))
	if len(posts) == 0 {
		return views, nil
	}

	postIDs := make([]uint, 0, len(posts))
	userIDs := make([]uint, 0, len(posts))
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		userIDs = append(userIDs, p.OwnerID)
	}

	comments, err := v.comments.ListVisible(ctx, viewerID, postIDs)
	if err != nil {
		return nil, storeErr("attachVisibleComments", err)
	}
	for _, c := range comments {
		userIDs = append(userIDs, c.AuthorID)
	}

	infos, err := v.identity.DisplayInfo(ctx, userIDs...)
	if err != nil {
		return nil, err
	}

	byPost := make(map[uint][]*models.CommentView, len(posts))
	for _, c := range comments {
		byPost[c.PostID] = append(byPost[c.PostID], &models.CommentView{Comment: *c, Author: infos[c.AuthorID]})
	}

	for _, p := range posts {
		cs := byPost[p.ID]
		if cs == nil {
			cs = []*models.CommentView{}
		}
		views = append(views, &models.PostView{
			Post:     *p,
			ImageURL: v.blobs.URL(p.ImageRef),
			Owner:    infos[p.OwnerID],
			Comments: cs,
		})
	}
	return views, nil
}
