package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"friendfeed/internal/models"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func createPost(t *testing.T, db *gorm.DB, ownerID uint, at time.Time) *models.Post {
	t.Helper()
	p := &models.Post{OwnerID: ownerID, ImageRef: "img.jpg", Caption: "c"}
	p.CreatedAt = at
	require.NoError(t, NewGormPostRepository(db).Create(t.Context(), p))
	return p
}

func postIDs(posts []*models.Post) []uint {
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestPostRepository_ListByOwnersKeyset(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormPostRepository(db)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	p1 := createPost(t, db, alice.ID, baseTime)
	p2 := createPost(t, db, bob.ID, baseTime.Add(time.Minute))
	// Same timestamp as p2: the id breaks the tie.
	p3 := createPost(t, db, alice.ID, baseTime.Add(time.Minute))
	createPost(t, db, carol.ID, baseTime.Add(2*time.Minute))

	owners := []uint{alice.ID, bob.ID}
	page, err := repo.ListByOwners(t.Context(), owners, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{p3.ID, p2.ID}, postIDs(page))

	last := page[len(page)-1]
	page, err = repo.ListByOwners(t.Context(), owners, &Keyset{CreatedAt: last.CreatedAt, ID: last.ID}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{p1.ID}, postIDs(page))

	page, err = repo.ListByOwners(t.Context(), nil, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPostRepository_CountsAndCooldown(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormPostRepository(db)
	alice := createUser(t, db, "alice")

	createPost(t, db, alice.ID, baseTime)
	createPost(t, db, alice.ID, baseTime.Add(10*time.Minute))

	count, err := repo.CountByOwner(t.Context(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	recent, err := repo.HasPostedSince(t.Context(), alice.ID, baseTime.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, recent)

	recent, err = repo.HasPostedSince(t.Context(), alice.ID, baseTime.Add(11*time.Minute))
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestPostRepository_UpdateAndDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormPostRepository(db)
	alice := createUser(t, db, "alice")
	p := createPost(t, db, alice.ID, baseTime)

	require.NoError(t, repo.UpdateCaption(t.Context(), p.ID, "new"))
	got, err := repo.GetByID(t.Context(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Caption)

	ok, err := repo.Delete(t.Context(), p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(t.Context(), p.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, repo.UpdateCaption(t.Context(), p.ID, "x"), ErrNotFound)
}

func TestPostRepository_FeedIndexCoversOwnerAndTime(t *testing.T) {
	db := newTestDB(t)

	var columns []string
	require.NoError(t, db.Raw("SELECT name FROM pragma_index_info('idx_post_owner_created') ORDER BY seqno").Scan(&columns).Error)
	assert.Equal(t, []string{"owner_id", "created_at"}, columns)
}
