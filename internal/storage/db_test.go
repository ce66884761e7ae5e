package storage

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"friendfeed/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := OpenDB(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)), logger.Silent)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, AutoMigrateTables(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "x", Email: username + "@example.com", DisplayName: username}
	require.NoError(t, NewGormUserRepository(db).Create(t.Context(), u))
	return u
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, logger.Silent, ParseLogLevel("silent"))
	require.Equal(t, logger.Error, ParseLogLevel("ERROR"))
	require.Equal(t, logger.Info, ParseLogLevel("info"))
	require.Equal(t, logger.Warn, ParseLogLevel(""))
	require.Equal(t, logger.Warn, ParseLogLevel("verbose"))
}

func TestStrToUint(t *testing.T) {
	v, err := StrToUint("42")
	require.NoError(t, err)
	require.Equal(t, uint(42), v)

	_, err = StrToUint("-1")
	require.Error(t, err)
	_, err = StrToUint("abc")
	require.Error(t, err)
}
