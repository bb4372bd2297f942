package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(DBConfig{Driver: DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestMigrateDB_SQLite(t *testing.T) {
	db := openSQLite(t)

	require.NoError(t, MigrateDB(db))

	for _, model := range []interface{}{&domain.Room{}, &domain.Seat{}, &domain.ActiveSeat{}, &domain.Settlement{}, &domain.SettlementEntry{}} {
		assert.True(t, db.Migrator().HasTable(model), "%T", model)
	}
	assert.True(t, db.Migrator().HasColumn(&domain.Room{}, "Version"))
}

// 表存在性检查失败时直接返回错误，不能继续尝试建表
func TestMigrateRoomsTable_CheckErrorIsReturned(t *testing.T) {
	db := openSQLite(t)

	// SQLite 没有 information_schema，检查查询必然失败
	err := migrateRoomsTable(db)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "check rooms table existence")
	assert.False(t, db.Migrator().HasTable("rooms"))
}
