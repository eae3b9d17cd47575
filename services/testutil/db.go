package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dsnName = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// NewTestDB opens a private in-memory SQLite database named after the test,
// migrates models and closes it on cleanup. A single connection keeps every
// query on the same in-memory instance.
func NewTestDB(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	dsn := "file:" + dsnName.Replace(t.Name()) + "?mode=memory&cache=shared&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err, "open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		require.NoError(t, db.AutoMigrate(models...), "migrate test database")
	}

	return db
}
