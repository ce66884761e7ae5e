package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendfeed/internal/apperrors"
	"friendfeed/internal/config"
	"friendfeed/internal/kafka"
	"friendfeed/internal/models"
	"friendfeed/internal/storage"
)

func TestSendRequest_Validation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	_, err := env.friendships.SendRequest(t.Context(), alice.ID, alice.ID)
	assert.ErrorIs(t, err, apperrors.ErrSelfTarget)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = env.friendships.SendRequest(t.Context(), alice.ID, 999)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	_, err = env.friendships.SendRequestByUsername(t.Context(), alice.ID, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestSendRequest_ByUsername(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	f, err := env.friendships.SendRequestByUsername(t.Context(), alice.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, f.RequesterID)
	assert.True(t, f.Pair().Contains(bob.ID))
	assert.Equal(t, []kafka.ActivityType{kafka.FriendshipRequested}, env.activity.types())
}

func TestSendRequest_DuplicateEitherDirection(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	_, err := env.friendships.SendRequest(t.Context(), alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = env.friendships.SendRequest(t.Context(), alice.ID, bob.ID)
	assert.ErrorIs(t, err, apperrors.ErrRequestPending)
	_, err = env.friendships.SendRequest(t.Context(), bob.ID, alice.ID)
	assert.ErrorIs(t, err, apperrors.ErrRequestPending)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	carol := env.user(t, "carol")
	env.befriend(t, carol, alice)
	_, err = env.friendships.SendRequest(t.Context(), alice.ID, carol.ID)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyFriends)
	_, err = env.friendships.SendRequest(t.Context(), carol.ID, alice.ID)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyFriends)
}

func TestStatusIsSymmetric(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	check := func(wantAlice, wantBob models.RelationshipStatus) {
		t.Helper()
		sa, err := env.friendships.GetStatus(t.Context(), alice.ID, bob.ID)
		require.NoError(t, err)
		sb, err := env.friendships.GetStatus(t.Context(), bob.ID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, wantAlice, sa.Status)
		assert.Equal(t, wantBob, sb.Status)
		assert.Equal(t, sa.FriendshipID, sb.FriendshipID)

		ab, err := env.friendships.AreFriends(t.Context(), alice.ID, bob.ID)
		require.NoError(t, err)
		ba, err := env.friendships.AreFriends(t.Context(), bob.ID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, ab, ba)
	}

	check(models.RelationshipNone, models.RelationshipNone)

	f, err := env.friendships.SendRequest(t.Context(), bob.ID, alice.ID)
	require.NoError(t, err)
	check(models.RelationshipRequestReceived, models.RelationshipRequestSent)

	_, err = env.friendships.Accept(t.Context(), alice.ID, f.ID)
	require.NoError(t, err)
	check(models.RelationshipFriends, models.RelationshipFriends)

	self, err := env.friendships.GetStatus(t.Context(), alice.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipSelf, self.Status)
}

func TestAccept_OnlyByNonRequester(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")

	f, err := env.friendships.SendRequest(t.Context(), alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = env.friendships.Accept(t.Context(), alice.ID, f.ID)
	assert.ErrorIs(t, err, apperrors.ErrRequesterCannotRespond)
	assert.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	_, err = env.friendships.Accept(t.Context(), carol.ID, f.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotAParty)

	_, err = env.friendships.Accept(t.Context(), bob.ID, 999)
	assert.ErrorIs(t, err, apperrors.ErrFriendshipNotFound)

	accepted, err := env.friendships.Accept(t.Context(), bob.ID, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStatusAccepted, accepted.Status)
	assert.NotNil(t, accepted.AcceptedAt)

	// Accepted never goes back.
	_, err = env.friendships.Accept(t.Context(), bob.ID, f.ID)
	assert.ErrorIs(t, err, apperrors.ErrFriendshipInvalidState)
	err = env.friendships.Decline(t.Context(), bob.ID, f.ID)
	assert.ErrorIs(t, err, apperrors.ErrFriendshipInvalidState)
	err = env.friendships.Cancel(t.Context(), alice.ID, f.ID)
	assert.ErrorIs(t, err, apperrors.ErrFriendshipInvalidState)
}

func TestAccept_IncrementsBothCounts(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	countOf := func(id uint) int64 {
		n, err := env.friendships.FriendCount(t.Context(), id)
		require.NoError(t, err)
		return n
	}

	f, err := env.friendships.SendRequest(t.Context(), alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, countOf(alice.ID))
	assert.Zero(t, countOf(bob.ID))

	_, err = env.friendships.Accept(t.Context(), bob.ID, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), countOf(alice.ID))
	assert.Equal(t, int64(1), countOf(bob.ID))
	assert.Equal(t, []kafka.ActivityType{kafka.FriendshipRequested, kafka.FriendshipAccepted}, env.activity.types())
}

func TestEndingAFriendshipAllowsANewRequest(t *testing.T) {
	cases := []struct {
		name string
		end  func(env *testEnv, requester, recipient *models.User, f *models.Friendship) error
	}{
		{"decline", func(env *testEnv, _, recipient *models.User, f *models.Friendship) error {
			return env.friendships.Decline(t.Context(), recipient.ID, f.ID)
		}},
		{"cancel", func(env *testEnv, requester, _ *models.User, f *models.Friendship) error {
			return env.friendships.Cancel(t.Context(), requester.ID, f.ID)
		}},
		{"remove pending", func(env *testEnv, _, recipient *models.User, f *models.Friendship) error {
			return env.friendships.Remove(t.Context(), recipient.ID, f.ID)
		}},
		{"unfriend", func(env *testEnv, requester, recipient *models.User, f *models.Friendship) error {
			if _, err := env.friendships.Accept(t.Context(), recipient.ID, f.ID); err != nil {
				return err
			}
			return env.friendships.Remove(t.Context(), requester.ID, f.ID)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			alice := env.user(t, "alice")
			bob := env.user(t, "bob")

			f, err := env.friendships.SendRequest(t.Context(), alice.ID, bob.ID)
			require.NoError(t, err)
			require.NoError(t, tc.end(env, alice, bob, f))
			events := env.activity.types()
			assert.Equal(t, kafka.FriendshipRemoved, events[len(events)-1])

			status, err := env.friendships.GetStatus(t.Context(), alice.ID, bob.ID)
			require.NoError(t, err)
			assert.Equal(t, models.RelationshipNone, status.Status)

			// A retry on the absent record is NotFound.
			err = env.friendships.Remove(t.Context(), alice.ID, f.ID)
			assert.ErrorIs(t, err, apperrors.ErrFriendshipNotFound)

			// Either side may ask again.
			_, err = env.friendships.SendRequest(t.Context(), bob.ID, alice.ID)
			assert.NoError(t, err)
		})
	}
}

// replacingRepo swaps the checked record for a request in the opposite
// direction right before the first conditional write, the way a cancel and
// re-send from another request would land in between.
type replacingRepo struct {
	storage.FriendshipRepository
	t        *testing.T
	replaced bool
}

func (r *replacingRepo) replace(ctx context.Context, f *models.Friendship) {
	if r.replaced {
		return
	}
	r.replaced = true
	ok, err := r.FriendshipRepository.Delete(ctx, f)
	require.NoError(r.t, err)
	require.True(r.t, ok)
	_, err = r.FriendshipRepository.UpsertPending(ctx, f.Pair(), f.RecipientID())
	require.NoError(r.t, err)
}

func (r *replacingRepo) SetStatus(ctx context.Context, f *models.Friendship, to models.FriendshipStatus) (bool, error) {
	r.replace(ctx, f)
	return r.FriendshipRepository.SetStatus(ctx, f, to)
}

func (r *replacingRepo) DeleteUnchanged(ctx context.Context, f *models.Friendship) (bool, error) {
	r.replace(ctx, f)
	return r.FriendshipRepository.DeleteUnchanged(ctx, f)
}

func TestTransitionsOnlyTouchTheCheckedRecord(t *testing.T) {
	cases := []struct {
		name string
		act  func(env *testEnv, alice, bob *models.User, id uint) error
	}{
		{"accept", func(env *testEnv, _, bob *models.User, id uint) error {
			_, err := env.friendships.Accept(t.Context(), bob.ID, id)
			return err
		}},
		{"decline", func(env *testEnv, _, bob *models.User, id uint) error {
			return env.friendships.Decline(t.Context(), bob.ID, id)
		}},
		{"cancel", func(env *testEnv, alice, _ *models.User, id uint) error {
			return env.friendships.Cancel(t.Context(), alice.ID, id)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			alice := env.user(t, "alice")
			bob := env.user(t, "bob")

			f, err := env.friendships.SendRequest(t.Context(), alice.ID, bob.ID)
			require.NoError(t, err)
			env.wrapFriendshipRepo(func(repo storage.FriendshipRepository) storage.FriendshipRepository {
				return &replacingRepo{FriendshipRepository: repo, t: t}
			})

			err = tc.act(env, alice, bob, f.ID)
			assert.ErrorIs(t, err, apperrors.ErrFriendshipNotFound)

			// bob's own request is untouched: still pending, still his.
			friends, err := env.friendships.AreFriends(t.Context(), alice.ID, bob.ID)
			require.NoError(t, err)
			assert.False(t, friends)
			sent, err := env.friendships.ListSentRequests(t.Context(), bob.ID)
			require.NoError(t, err)
			require.Len(t, sent, 1)
			assert.Equal(t, bob.ID, sent[0].RequesterID)
			assert.Equal(t, []kafka.ActivityType{kafka.FriendshipRequested}, env.activity.types())
		})
	}
}

func TestCancel_OnlyByRequester(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")

	f, err := env.friendships.SendRequest(t.Context(), alice.ID, bob.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, env.friendships.Cancel(t.Context(), bob.ID, f.ID), apperrors.ErrNotRequester)
	assert.ErrorIs(t, env.friendships.Cancel(t.Context(), carol.ID, f.ID), apperrors.ErrNotAParty)
	assert.ErrorIs(t, env.friendships.Decline(t.Context(), alice.ID, f.ID), apperrors.ErrRequesterCannotRespond)
	assert.ErrorIs(t, env.friendships.Remove(t.Context(), carol.ID, f.ID), apperrors.ErrNotAParty)
	assert.NoError(t, env.friendships.Cancel(t.Context(), alice.ID, f.ID))
}

func TestListings(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")
	dave := env.user(t, "dave")

	env.befriend(t, bob, alice)
	_, err := env.friendships.SendRequest(t.Context(), carol.ID, alice.ID)
	require.NoError(t, err)
	_, err = env.friendships.SendRequest(t.Context(), alice.ID, dave.ID)
	require.NoError(t, err)

	friends, err := env.friendships.ListFriends(t.Context(), alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "bob", friends[0].Other.Username)

	incoming, err := env.friendships.ListIncomingRequests(t.Context(), alice.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, "carol", incoming[0].Other.Username)
	assert.Equal(t, carol.ID, incoming[0].RequesterID)

	sent, err := env.friendships.ListSentRequests(t.Context(), alice.ID)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "dave", sent[0].Other.Username)
}

// seedFriends gives user n accepted friends with a couple of bulk inserts.
func seedFriends(t *testing.T, env *testEnv, user *models.User, prefix string, n int) {
	t.Helper()
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s%05d", prefix, i)
		users = append(users, &models.User{Username: name, PasswordHash: "x", Email: name + "@example.com", DisplayName: name})
	}
	require.NoError(t, env.db.CreateInBatches(users, 500).Error)

	friendships := make([]*models.Friendship, 0, n)
	for _, u := range users {
		pair, err := models.CanonicalPair(user.ID, u.ID)
		require.NoError(t, err)
		friendships = append(friendships, &models.Friendship{
			LowID: pair.Low, HighID: pair.High, RequesterID: u.ID, Status: models.FriendshipStatusAccepted,
		})
	}
	require.NoError(t, env.db.CreateInBatches(friendships, 500).Error)
}

func TestSendRequest_QuotaForBothRoles(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, int64(5000), env.policy.MaxFriends)

	full := env.user(t, "full")
	other := env.user(t, "other")
	seedFriends(t, env, full, "f", 5000)

	_, err := env.friendships.SendRequest(t.Context(), full.ID, other.ID)
	assert.ErrorIs(t, err, apperrors.ErrFriendLimitReached)
	assert.Equal(t, apperrors.KindQuota, apperrors.KindOf(err))

	_, err = env.friendships.SendRequest(t.Context(), other.ID, full.ID)
	assert.ErrorIs(t, err, apperrors.ErrTargetFriendLimit)

	// One below the limit is still fine.
	almost := env.user(t, "almost")
	seedFriends(t, env, almost, "a", 4999)
	_, err = env.friendships.SendRequest(t.Context(), almost.ID, other.ID)
	assert.NoError(t, err)
}

func TestSendRequest_ConcurrentCrossDirection(t *testing.T) {
	env := newTestEnv(t, func(p *config.PolicyConfig) { p.MaxFriends = 10 })
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		errs []error
	)
	for i := 0; i < workers; i++ {
		from, to := alice.ID, bob.ID
		if i%2 == 1 {
			from, to = to, from
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.friendships.SendRequest(t.Context(), from, to)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, oks)
	for _, err := range errs {
		assert.ErrorIs(t, err, apperrors.ErrRequestPending)
	}

	var count int64
	require.NoError(t, env.db.Model(&models.Friendship{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
