package setup

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 支持的数据库驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// DBConfig 数据库连接配置
type DBConfig struct {
	Driver     string // mysql / sqlite
	User       string
	Password   string
	Host       string
	Port       string
	Name       string
	SQLitePath string // sqlite 文件路径，":memory:" 表示内存库
	LogSQL     bool   // 是否打印 SQL (开发环境)
}

// DSN 根据驱动构建数据库连接字符串
func (c DBConfig) DSN() (string, error) {
	switch c.Driver {
	case DriverMySQL, "":
		if c.User == "" {
			return "", fmt.Errorf("DB_USER environment variable not set")
		}
		if c.Password == "" {
			// 不允许空密码连接 MySQL，强制要求配置
			return "", fmt.Errorf("DB_PASSWORD environment variable not set")
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.Name), nil
	case DriverSQLite:
		if c.SQLitePath == "" {
			return "", fmt.Errorf("SQLITE_PATH environment variable not set")
		}
		return c.SQLitePath + "?_busy_timeout=5000&_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER '%s'", c.Driver)
	}
}

// InitDB 初始化数据库连接并配置连接池
func InitDB(cfg DBConfig) (*gorm.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, fmt.Errorf("failed to build DSN: %w", err)
	}

	gormCfg := &gorm.Config{
		TranslateError: true, // 唯一约束冲突翻译为 gorm.ErrDuplicatedKey
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	if cfg.LogSQL {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	if cfg.Driver == DriverSQLite {
		dialector = sqlite.Open(dsn)
	} else {
		dialector = mysql.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB() // 获取底层的 *sql.DB 对象
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// SQLite 不支持行锁，单连接使写事务串行执行
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	logrus.WithField("driver", dialector.Name()).Info("Database connected")
	return db, nil
}
