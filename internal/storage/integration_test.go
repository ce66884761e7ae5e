//go:build integration

package storage

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"friendfeed/internal/models"
)

var pgDB *gorm.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("friendfeed"),
		postgres.WithUsername("friendfeed"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("failed to start container: %s", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("failed to get connection string: %v", err)
	}
	pgDB, err = OpenDB(gormpostgres.Open(connStr), logger.Silent)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	if err := AutoMigrateTables(pgDB); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func truncate(t *testing.T) {
	t.Cleanup(func() {
		err := pgDB.Exec(`TRUNCATE TABLE comments, posts, friendships, users RESTART IDENTITY CASCADE`).Error
		require.NoError(t, err)
	})
}

// Requests racing from both sides of the same pair must leave exactly one record.
func TestIntegration_ConcurrentCrossRequests(t *testing.T) {
	truncate(t)
	alice := createUser(t, pgDB, "alice")
	bob := createUser(t, pgDB, "bob")

	pair, err := models.CanonicalPair(alice.ID, bob.ID)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		requester := alice.ID
		if i%2 == 1 {
			requester = bob.ID
		}
		wg.Add(1)
		go func(requester uint) {
			defer wg.Done()
			err := pgDB.Transaction(func(tx *gorm.DB) error {
				if err := NewGormUserRepository(tx).LockUsers(context.Background(), alice.ID, bob.ID); err != nil {
					return err
				}
				_, err := NewGormFriendshipRepository(tx).UpsertPending(context.Background(), pair, requester)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, ErrDuplicatePair):
				conflicts++
			}
		}(requester)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 19, conflicts)

	var count int64
	require.NoError(t, pgDB.Model(&models.Friendship{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIntegration_FriendIDsProjection(t *testing.T) {
	truncate(t)
	repo := NewGormFriendshipRepository(pgDB)
	alice := createUser(t, pgDB, "alice")
	bob := createUser(t, pgDB, "bob")
	carol := createUser(t, pgDB, "carol")

	for _, other := range []uint{bob.ID, carol.ID} {
		pair, err := models.CanonicalPair(alice.ID, other)
		require.NoError(t, err)
		f, err := repo.UpsertPending(t.Context(), pair, other)
		require.NoError(t, err)
		_, err = repo.SetStatus(t.Context(), f, models.FriendshipStatusAccepted)
		require.NoError(t, err)
	}

	ids, err := repo.FriendIDs(t.Context(), alice.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{bob.ID, carol.ID}, ids)
}
