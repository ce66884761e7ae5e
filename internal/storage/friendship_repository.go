package storage

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"friendfeed/internal/models"
)

// ErrDuplicatePair is returned when a record already exists for the pair.
var ErrDuplicatePair = errors.New("friendship already exists for this pair")

// FriendshipRepository defines the interface for friendship data operations.
// Every method that takes two users normalizes them with models.CanonicalPair.
type FriendshipRepository interface {
	// UpsertPending inserts a pending record if none exists for the pair.
	UpsertPending(ctx context.Context, pair models.Pair, requesterID uint) (*models.Friendship, error)
	Get(ctx context.Context, pair models.Pair) (*models.Friendship, error)
	GetByID(ctx context.Context, id uint) (*models.Friendship, error)
	// SetStatus moves the record f, as it was read, to status to. The update
	// matches only if the row still has f's id, pair, requester and status, and
	// reports false otherwise. On success f is updated in place.
	SetStatus(ctx context.Context, f *models.Friendship, to models.FriendshipStatus) (bool, error)
	// DeleteUnchanged removes f under the same match as SetStatus.
	DeleteUnchanged(ctx context.Context, f *models.Friendship) (bool, error)
	// Delete removes the row with f's id, pair and requester, whatever its status.
	Delete(ctx context.Context, f *models.Friendship) (bool, error)
	// ListForUser returns the records userID is a party of, newest first.
	// An empty status lists every record.
	ListForUser(ctx context.Context, userID uint, status models.FriendshipStatus) ([]*models.Friendship, error)
	FriendIDs(ctx context.Context, userID uint) ([]uint, error)
	CountAccepted(ctx context.Context, userID uint) (int64, error)
}

type gormFriendshipRepository struct {
	db *gorm.DB
}

// NewGormFriendshipRepository creates a new GormFriendshipRepository.
func NewGormFriendshipRepository(db *gorm.DB) FriendshipRepository {
	return &gormFriendshipRepository{db: db}
}

func pairScope(pair models.Pair) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("low_id = ? AND high_id = ?", pair.Low, pair.High)
	}
}

// recordScope matches the row f was read from. The requester is part of the
// match because SQLite can hand a deleted row's id to the next insert.
func recordScope(f *models.Friendship) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ? AND low_id = ? AND high_id = ? AND requester_id = ?", f.ID, f.LowID, f.HighID, f.RequesterID)
	}
}

// unchangedScope also requires the status the caller was checked against.
func unchangedScope(f *models.Friendship) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return recordScope(f)(db).Where("status = ?", f.Status)
	}
}

func partyScope(userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(low_id = ? OR high_id = ?)", userID, userID)
	}
}

func (r *gormFriendshipRepository) UpsertPending(ctx context.Context, pair models.Pair, requesterID uint) (*models.Friendship, error) {
	if pair.Low >= pair.High || !pair.Contains(requesterID) {
		return nil, errors.Errorf("friendshipRepo.UpsertPending: invalid pair %v for requester %d", pair, requesterID)
	}
	f := &models.Friendship{
		LowID:       pair.Low,
		HighID:      pair.High,
		Status:      models.FriendshipStatusPending,
		RequesterID: requesterID,
	}
	err := r.db.WithContext(ctx).Create(f).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrDuplicatePair
	}
	if err != nil {
		return nil, wrapErr(err, "friendshipRepo.UpsertPending")
	}
	return f, nil
}

func (r *gormFriendshipRepository) Get(ctx context.Context, pair models.Pair) (*models.Friendship, error) {
	var f models.Friendship
	if err := r.db.WithContext(ctx).Scopes(pairScope(pair)).First(&f).Error; err != nil {
		return nil, wrapErr(err, "friendshipRepo.Get")
	}
	return &f, nil
}

func (r *gormFriendshipRepository) GetByID(ctx context.Context, id uint) (*models.Friendship, error) {
	var f models.Friendship
	if err := r.db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, wrapErr(err, "friendshipRepo.GetByID")
	}
	return &f, nil
}

func (r *gormFriendshipRepository) SetStatus(ctx context.Context, f *models.Friendship, to models.FriendshipStatus) (bool, error) {
	now := r.db.NowFunc()
	updates := map[string]interface{}{"status": to, "updated_at": now}
	if to == models.FriendshipStatusAccepted {
		updates["accepted_at"] = now
	}
	res := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Scopes(unchangedScope(f)).
		Updates(updates)
	if res.Error != nil {
		return false, wrapErr(res.Error, "friendshipRepo.SetStatus")
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	f.Status = to
	f.UpdatedAt = now
	if to == models.FriendshipStatusAccepted {
		f.AcceptedAt = &now
	}
	return true, nil
}

func (r *gormFriendshipRepository) DeleteUnchanged(ctx context.Context, f *models.Friendship) (bool, error) {
	res := r.db.WithContext(ctx).Scopes(unchangedScope(f)).Delete(&models.Friendship{})
	if res.Error != nil {
		return false, wrapErr(res.Error, "friendshipRepo.DeleteUnchanged")
	}
	return res.RowsAffected == 1, nil
}

func (r *gormFriendshipRepository) Delete(ctx context.Context, f *models.Friendship) (bool, error) {
	res := r.db.WithContext(ctx).Scopes(recordScope(f)).Delete(&models.Friendship{})
	if res.Error != nil {
		return false, wrapErr(res.Error, "friendshipRepo.Delete")
	}
	return res.RowsAffected == 1, nil
}

func (r *gormFriendshipRepository) ListForUser(ctx context.Context, userID uint, status models.FriendshipStatus) ([]*models.Friendship, error) {
	list := []*models.Friendship{}
	q := r.db.WithContext(ctx).Scopes(partyScope(userID))
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, wrapErr(err, "friendshipRepo.ListForUser")
	}
	return list, nil
}

// FriendIDs retrieves the IDs of the accepted friends of userID in one query.
func (r *gormFriendshipRepository) FriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	friendIDs := []uint{}
	err := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Select("CASE WHEN low_id = ? THEN high_id ELSE low_id END", userID).
		Scopes(partyScope(userID)).
		Where("status = ?", models.FriendshipStatusAccepted).
		Scan(&friendIDs).Error
	if err != nil {
		return nil, wrapErr(err, "friendshipRepo.FriendIDs")
	}
	return friendIDs, nil
}

func (r *gormFriendshipRepository) CountAccepted(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Scopes(partyScope(userID)).
		Where("status = ?", models.FriendshipStatusAccepted).
		Count(&count).Error
	if err != nil {
		return 0, wrapErr(err, "friendshipRepo.CountAccepted")
	}
	return count, nil
}
