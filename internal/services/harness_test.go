package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"friendfeed/internal/config"
	"friendfeed/internal/kafka"
	"friendfeed/internal/mediatypes"
	"friendfeed/internal/models"
	"friendfeed/internal/storage"
)

// memBlobStore keeps blobs in a map.
type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	seq   int
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[string][]byte{}}
}

func (m *memBlobStore) Store(_ context.Context, r io.Reader, size int64, fileName, mimeType string) (*mediatypes.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ref := fmt.Sprintf("blob-%d-%s", m.seq, fileName)
	m.blobs[ref] = data
	return &mediatypes.FileInfo{Ref: ref, URL: m.URL(ref), Size: size, MimeType: mimeType, FileName: fileName}, nil
}

func (m *memBlobStore) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[ref]; !ok {
		return mediatypes.ErrBlobNotFound
	}
	delete(m.blobs, ref)
	return nil
}

func (m *memBlobStore) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return "/uploads/" + ref
}

func (m *memBlobStore) has(ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[ref]
	return ok
}

func (m *memBlobStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.ActivityEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.ActivityEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Wait() {}

func (p *recordingPublisher) types() []kafka.ActivityType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []kafka.ActivityType{}
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db          *gorm.DB
	blobs       *memBlobStore
	activity    *recordingPublisher
	clock       *testClock
	policy      config.PolicyConfig
	users       UserService
	friendships FriendshipService
	posts       PostService
	feed        FeedService
	auth        AuthService
}

func newTestEnv(t *testing.T, tweak ...func(*config.PolicyConfig)) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := storage.OpenDB(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)), logger.Silent)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, storage.AutoMigrateTables(db))

	policy := config.DefaultPolicy()
	for _, f := range tweak {
		f(&policy)
	}

	env := &testEnv{
		db:       db,
		blobs:    newMemBlobStore(),
		activity: &recordingPublisher{},
		clock:    &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		policy:   policy,
	}

	userRepo := storage.NewGormUserRepository(db)
	friendshipRepo := storage.NewGormFriendshipRepository(db)
	postRepo := storage.NewGormPostRepository(db)
	commentRepo := storage.NewGormCommentRepository(db)

	env.users = NewUserService(userRepo, env.blobs, policy)
	env.friendships = NewFriendshipService(db, friendshipRepo, env.users, env.activity, policy)
	env.posts = NewPostService(db, postRepo, commentRepo, env.users, env.blobs, env.activity, policy, env.clock.Now)
	env.feed = NewFeedService(friendshipRepo, postRepo, commentRepo, env.users, env.blobs, policy)
	env.auth = NewAuthService(userRepo, config.AuthConfig{JWTSecretKey: "test", JWTExpiry: time.Hour}, nil)
	return env
}

// wrapFriendshipRepo rebuilds the friendship service on top of wrap(repo).
func (e *testEnv) wrapFriendshipRepo(wrap func(storage.FriendshipRepository) storage.FriendshipRepository) {
	repo := wrap(storage.NewGormFriendshipRepository(e.db))
	e.friendships = NewFriendshipService(e.db, repo, e.users, e.activity, e.policy)
}

func (e *testEnv) user(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "x", Email: username + "@example.com", DisplayName: username}
	require.NoError(t, storage.NewGormUserRepository(e.db).Create(t.Context(), u))
	return u
}

func (e *testEnv) befriend(t *testing.T, a, b *models.User) *models.Friendship {
	t.Helper()
	f, err := e.friendships.SendRequest(t.Context(), a.ID, b.ID)
	require.NoError(t, err)
	f, err = e.friendships.Accept(t.Context(), b.ID, f.ID)
	require.NoError(t, err)
	return f
}

// post creates a post as owner at the current clock time and then moves the
// clock past the cooldown.
func (e *testEnv) post(t *testing.T, owner *models.User, caption string) *models.PostView {
	t.Helper()
	img := []byte("img")
	p, err := e.posts.CreatePost(t.Context(), owner.ID, NewPost{
		Image: bytes.NewReader(img), ImageSize: int64(len(img)), FileName: "p.jpg", MimeType: "image/jpeg", Caption: caption,
	})
	require.NoError(t, err)
	e.clock.Advance(e.policy.PostCooldown + time.Second)
	return p
}
