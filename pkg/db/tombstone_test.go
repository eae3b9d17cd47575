package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gorm.io/driver/sqlite"
)

type tombstoned struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string
	DeletedAt Tombstone `gorm:"column:deleted_at;type:timestamptz;not null;default:'-infinity'"`
}

func TestTombstone_Value(t *testing.T) {
	v, err := Tombstone{}.Value()
	require.NoError(t, err)
	require.Equal(t, "-infinity", v)

	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	v, err = DeletedAt(now).Value()
	require.NoError(t, err)
	require.Equal(t, now, v)
}

func TestTombstone_Scan(t *testing.T) {
	var ts Tombstone
	require.NoError(t, ts.Scan("-infinity"))
	require.False(t, ts.IsDeleted())

	require.NoError(t, ts.Scan([]byte("2025-03-04 05:06:07+00:00")))
	require.True(t, ts.IsDeleted())
	require.Equal(t, 2025, ts.Time.Year())

	require.NoError(t, ts.Scan(time.Time{}))
	require.False(t, ts.IsDeleted())

	require.Error(t, ts.Scan(42))
	require.Error(t, ts.Scan("yesterday"))
}

func TestNotDeleted_FiltersSoftDeletedRows(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:tombstone?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&tombstoned{}))

	require.NoError(t, conn.Create(&tombstoned{Name: "alive"}).Error)
	require.NoError(t, conn.Create(&tombstoned{Name: "gone", DeletedAt: DeletedAt(time.Now())}).Error)

	var rows []tombstoned
	require.NoError(t, conn.Scopes(NotDeleted).Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, "alive", rows[0].Name)
	require.False(t, rows[0].DeletedAt.IsDeleted())

	var all []tombstoned
	require.NoError(t, conn.Order("id").Find(&all).Error)
	require.Len(t, all, 2)
	require.True(t, all[1].DeletedAt.IsDeleted())
}
