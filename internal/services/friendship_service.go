package services

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"

	"friendfeed/internal/apperrors"
	"friendfeed/internal/config"
	"friendfeed/internal/kafka"
	"friendfeed/internal/models"
	"friendfeed/internal/storage"
)

// FriendshipService defines the friendship request/accept protocol and its read side.
type FriendshipService interface {
	SendRequest(ctx context.Context, callerID, targetID uint) (*models.Friendship, error)
	SendRequestByUsername(ctx context.Context, callerID uint, username string) (*models.Friendship, error)
	Accept(ctx context.Context, callerID, friendshipID uint) (*models.Friendship, error)
	Decline(ctx context.Context, callerID, friendshipID uint) error
	Cancel(ctx context.Context, callerID, friendshipID uint) error
	Remove(ctx context.Context, callerID, friendshipID uint) error

	GetStatus(ctx context.Context, callerID, otherID uint) (*models.FriendshipStatusView, error)
	AreFriends(ctx context.Context, a, b uint) (bool, error)
	FriendCount(ctx context.Context, userID uint) (int64, error)
	ListFriends(ctx context.Context, userID uint) ([]*models.FriendshipView, error)
	ListIncomingRequests(ctx context.Context, userID uint) ([]*models.FriendshipView, error)
	ListSentRequests(ctx context.Context, userID uint) ([]*models.FriendshipView, error)
}

type friendshipService struct {
	db             *gorm.DB
	friendshipRepo storage.FriendshipRepository
	identity       IdentityDirectory
	activity       ActivityPublisher
	policy         config.PolicyConfig
}

// NewFriendshipService creates a new FriendshipService instance.
func NewFriendshipService(
	db *gorm.DB,
	friendshipRepo storage.FriendshipRepository,
	identity IdentityDirectory,
	activity ActivityPublisher,
	policy config.PolicyConfig,
) FriendshipService {
	if activity == nil {
		activity = noopPublisher{}
	}
	return &friendshipService{
		db:             db,
		friendshipRepo: friendshipRepo,
		identity:       identity,
		activity:       activity,
		policy:         policy,
	}
}

// SendRequest creates a pending friendship from callerID to targetID.
// Both users' rows are locked in ascending ID order first, so the quota and
// existence checks below see a stable state until the insert commits.
func (s *friendshipService) SendRequest(ctx context.Context, callerID, targetID uint) (*models.Friendship, error) {
	pair, err := models.CanonicalPair(callerID, targetID)
	if err != nil {
		return nil, apperrors.ErrSelfTarget
	}

	var created *models.Friendship
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txUserRepo := storage.NewGormUserRepository(tx)
		txFriendshipRepo := storage.NewGormFriendshipRepository(tx)

		if err := txUserRepo.LockUsers(ctx, pair.Low, pair.High); err != nil {
			return notFoundAs("SendRequest.LockUsers", err, apperrors.ErrUserNotFound)
		}

		existing, err := txFriendshipRepo.Get(ctx, pair)
		switch {
		case err == nil && existing.Status == models.FriendshipStatusAccepted:
			return apperrors.ErrAlreadyFriends
		case err == nil:
			return apperrors.ErrRequestPending
		case !errors.Is(err, storage.ErrNotFound):
			return storeErr("SendRequest.Get", err)
		}

		callerCount, err := txFriendshipRepo.CountAccepted(ctx, callerID)
		if err != nil {
			return storeErr("SendRequest.CountAccepted", err)
		}
		if callerCount >= s.policy.MaxFriends {
			return apperrors.ErrFriendLimitReached
		}
		targetCount, err := txFriendshipRepo.CountAccepted(ctx, targetID)
		if err != nil {
			return storeErr("SendRequest.CountAccepted", err)
		}
		if targetCount >= s.policy.MaxFriends {
			return apperrors.ErrTargetFriendLimit
		}

		created, err = txFriendshipRepo.UpsertPending(ctx, pair, callerID)
		if errors.Is(err, storage.ErrDuplicatePair) {
			// Lost a race the row locks did not cover (e.g. SQLite); never retried.
			return apperrors.ErrRequestPending
		}
		if err != nil {
			return storeErr("SendRequest.UpsertPending", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	log.Printf("Friend request %d created: %d -> %d", created.ID, callerID, targetID)
	s.activity.Publish(ctx, kafka.ActivityEvent{
		Type:      kafka.FriendshipRequested,
		ActorID:   callerID,
		SubjectID: targetID,
		ObjectID:  created.ID,
	})
	return created, nil
}

func (s *friendshipService) SendRequestByUsername(ctx context.Context, callerID uint, username string) (*models.Friendship, error) {
	targetID, err := s.identity.ResolveByHandle(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.SendRequest(ctx, callerID, targetID)
}

// loadForCaller fetches a friendship and checks that callerID is one of its parties.
func (s *friendshipService) loadForCaller(ctx context.Context, callerID, friendshipID uint) (*models.Friendship, error) {
	f, err := s.friendshipRepo.GetByID(ctx, friendshipID)
	if err != nil {
		return nil, notFoundAs("loadForCaller", err, apperrors.ErrFriendshipNotFound)
	}
	if !f.Pair().Contains(callerID) {
		return nil, apperrors.ErrNotAParty
	}
	return f, nil
}

// respondable checks the preconditions shared by Accept and Decline.
func respondable(f *models.Friendship, callerID uint) error {
	if f.RequesterID == callerID {
		return apperrors.ErrRequesterCannotRespond
	}
	if f.Status != models.FriendshipStatusPending {
		return apperrors.ErrFriendshipInvalidState
	}
	return nil
}

// lostTransition decides what a conditional write that touched no row means:
// the record that was checked is either gone or no longer pending.
func (s *friendshipService) lostTransition(ctx context.Context, checked *models.Friendship) error {
	current, err := s.friendshipRepo.GetByID(ctx, checked.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.ErrFriendshipNotFound
	}
	if err != nil {
		return storeErr("lostTransition", err)
	}
	if current.Pair() != checked.Pair() || current.RequesterID != checked.RequesterID {
		// 同一 ID 已经是另一条记录
		return apperrors.ErrFriendshipNotFound
	}
	return apperrors.ErrFriendshipInvalidState
}

// Accept checks the record and then updates exactly that record, so a request
// that was cancelled and re-sent in the meantime is never accepted by its own sender.
func (s *friendshipService) Accept(ctx context.Context, callerID, friendshipID uint) (*models.Friendship, error) {
	f, err := s.loadForCaller(ctx, callerID, friendshipID)
	if err != nil {
		return nil, err
	}
	if err := respondable(f, callerID); err != nil {
		return nil, err
	}

	ok, err := s.friendshipRepo.SetStatus(ctx, f, models.FriendshipStatusAccepted)
	if err != nil {
		return nil, storeErr("Accept.SetStatus", err)
	}
	if !ok {
		return nil, s.lostTransition(ctx, f)
	}

	log.Printf("Friend request %d accepted by user %d", friendshipID, callerID)
	s.activity.Publish(ctx, kafka.ActivityEvent{
		Type:      kafka.FriendshipAccepted,
		ActorID:   callerID,
		SubjectID: f.RequesterID,
		ObjectID:  friendshipID,
	})
	return f, nil
}

func (s *friendshipService) Decline(ctx context.Context, callerID, friendshipID uint) error {
	f, err := s.loadForCaller(ctx, callerID, friendshipID)
	if err != nil {
		return err
	}
	if err := respondable(f, callerID); err != nil {
		return err
	}
	return s.deletePending(ctx, f, callerID)
}

func (s *friendshipService) Cancel(ctx context.Context, callerID, friendshipID uint) error {
	f, err := s.loadForCaller(ctx, callerID, friendshipID)
	if err != nil {
		return err
	}
	if f.RequesterID != callerID {
		return apperrors.ErrNotRequester
	}
	if f.Status != models.FriendshipStatusPending {
		return apperrors.ErrFriendshipInvalidState
	}
	return s.deletePending(ctx, f, callerID)
}

func (s *friendshipService) deletePending(ctx context.Context, f *models.Friendship, callerID uint) error {
	ok, err := s.friendshipRepo.DeleteUnchanged(ctx, f)
	if err != nil {
		return storeErr("deletePending", err)
	}
	if !ok {
		return s.lostTransition(ctx, f)
	}
	log.Printf("Friend request %d removed by user %d", f.ID, callerID)
	s.publishRemoved(ctx, f, callerID)
	return nil
}

// Remove deletes the friendship in whatever state it is in.
func (s *friendshipService) Remove(ctx context.Context, callerID, friendshipID uint) error {
	f, err := s.loadForCaller(ctx, callerID, friendshipID)
	if err != nil {
		return err
	}
	ok, err := s.friendshipRepo.Delete(ctx, f)
	if err != nil {
		return storeErr("Remove", err)
	}
	if !ok {
		return apperrors.ErrFriendshipNotFound
	}
	log.Printf("Friendship %d removed by user %d", friendshipID, callerID)
	s.publishRemoved(ctx, f, callerID)
	return nil
}

// publishRemoved announces that the record is gone, whether it was declined,
// cancelled or unfriended.
func (s *friendshipService) publishRemoved(ctx context.Context, f *models.Friendship, callerID uint) {
	s.activity.Publish(ctx, kafka.ActivityEvent{
		Type:      kafka.FriendshipRemoved,
		ActorID:   callerID,
		SubjectID: f.Pair().Other(callerID),
		ObjectID:  f.ID,
	})
}

// GetStatus describes the relation between callerID and otherID from the caller's side.
func (s *friendshipService) GetStatus(ctx context.Context, callerID, otherID uint) (*models.FriendshipStatusView, error) {
	pair, err := models.CanonicalPair(callerID, otherID)
	if err != nil {
		return &models.FriendshipStatusView{Status: models.RelationshipSelf}, nil
	}
	f, err := s.friendshipRepo.Get(ctx, pair)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.FriendshipStatusView{Status: models.RelationshipNone}, nil
	}
	if err != nil {
		return nil, storeErr("GetStatus", err)
	}

	view := &models.FriendshipStatusView{FriendshipID: f.ID}
	switch {
	case f.Status == models.FriendshipStatusAccepted:
		view.Status = models.RelationshipFriends
	case f.RequesterID == callerID:
		view.Status = models.RelationshipRequestSent
	default:
		view.Status = models.RelationshipRequestReceived
	}
	return view, nil
}

func (s *friendshipService) AreFriends(ctx context.Context, a, b uint) (bool, error) {
	pair, err := models.CanonicalPair(a, b)
	if err != nil {
		return false, nil
	}
	f, err := s.friendshipRepo.Get(ctx, pair)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("AreFriends", err)
	}
	return f.Status == models.FriendshipStatusAccepted, nil
}

func (s *friendshipService) FriendCount(ctx context.Context, userID uint) (int64, error) {
	count, err := s.friendshipRepo.CountAccepted(ctx, userID)
	if err != nil {
		return 0, storeErr("FriendCount", err)
	}
	return count, nil
}

func (s *friendshipService) ListFriends(ctx context.Context, userID uint) ([]*models.FriendshipView, error) {
	return s.list(ctx, userID, models.FriendshipStatusAccepted, func(*models.Friendship) bool { return true })
}

func (s *friendshipService) ListIncomingRequests(ctx context.Context, userID uint) ([]*models.FriendshipView, error) {
	return s.list(ctx, userID, models.FriendshipStatusPending, func(f *models.Friendship) bool {
		return f.RequesterID != userID
	})
}

func (s *friendshipService) ListSentRequests(ctx context.Context, userID uint) ([]*models.FriendshipView, error) {
	return s.list(ctx, userID, models.FriendshipStatusPending, func(f *models.Friendship) bool {
		return f.RequesterID == userID
	})
}

func (s *friendshipService) list(ctx context.Context, userID uint, status models.FriendshipStatus, keep func(*models.Friendship) bool) ([]*models.FriendshipView, error) {
	records, err := s.friendshipRepo.ListForUser(ctx, userID, status)
	if err != nil {
		return nil, storeErr("ListFriendships", err)
	}

	kept := make([]*models.Friendship, 0, len(records))
	otherIDs := make([]uint, 0, len(records))
	for _, f := range records {
		if keep(f) {
			kept = append(kept, f)
			otherIDs = append(otherIDs, f.Pair().Other(userID))
		}
	}

	infos, err := s.identity.DisplayInfo(ctx, otherIDs...)
	if err != nil {
		return nil, err
	}

	views := make([]*models.FriendshipView, 0, len(kept))
	for _, f := range kept {
		views = append(views, &models.FriendshipView{
			ID:          f.ID,
			Status:      f.Status,
			RequesterID: f.RequesterID,
			Other:       infos[f.Pair().Other(userID)],
			CreatedAt:   f.CreatedAt,
			AcceptedAt:  f.AcceptedAt,
		})
	}
	return views, nil
}
