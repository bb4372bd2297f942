package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
)

// MigrateDB 执行全部数据库迁移。
// MySQL 下 rooms 表使用自定义 SQL 创建 (固定字符集和索引长度)，其余表由 AutoMigrate 处理。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if db.Dialector.Name() == DriverMySQL {
		if err := migrateRoomsTable(db); err != nil {
			return fmt.Errorf("failed to migrate rooms table: %w", err)
		}
	}

	err := db.AutoMigrate(
		&domain.Room{},
		&domain.Seat{},
		&domain.ActiveSeat{},
		&domain.Settlement{},
		&domain.SettlementEntry{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// migrateRoomsTable 在 rooms 表不存在时用自定义 SQL 创建
func migrateRoomsTable(db *gorm.DB) error {
	var count int64
	err := db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'rooms'").Count(&count).Error
	if err != nil {
		logrus.Errorf("Failed to check rooms table existence: %v", err)
		return fmt.Errorf("failed to check rooms table existence: %w", err)
	}
	if count > 0 {
		return nil // 已存在，交给 AutoMigrate 补充列和索引
	}
	return createRoomsTable(db)
}

// createRoomsTable 创建 rooms 表
func createRoomsTable(db *gorm.DB) error {
	sql := `
	CREATE TABLE rooms (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		code VARCHAR(16) NOT NULL,
		creator_id BIGINT UNSIGNED NOT NULL,
		status VARCHAR(16) NOT NULL,
		board VARCHAR(9) NOT NULL,
		current_turn BIGINT UNSIGNED NULL,
		winner_id BIGINT UNSIGNED NULL,
		version BIGINT UNSIGNED NOT NULL DEFAULT 0,
		created_at DATETIME(3),
		started_at DATETIME(3) NULL,
		finished_at DATETIME(3) NULL,
		last_activity DATETIME(3) NOT NULL,
		UNIQUE INDEX idx_rooms_code (code),
		INDEX idx_rooms_creator_id (creator_id),
		INDEX idx_rooms_status (status),
		INDEX idx_rooms_current_turn (current_turn),
		INDEX idx_rooms_winner_id (winner_id),
		INDEX idx_rooms_created_at (created_at),
		INDEX idx_rooms_last_activity (last_activity)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
	`
	if err := db.Exec(sql).Error; err != nil {
		logrus.Errorf("Failed to create rooms table: %v", err)
		return fmt.Errorf("failed to create rooms table: %w", err)
	}
	logrus.Info("Rooms table created successfully")
	return nil
}
