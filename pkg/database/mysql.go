// Package database 负责创建数据库与 Redis 的连接句柄。
// 句柄由调用方显式持有并注入，不使用包级全局变量。
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"dejny-gpt-go/internal/model"
	"dejny-gpt-go/pkg/log"
)

// NewMySQL 建立 MySQL 连接并完成表结构迁移，返回可注入的 *gorm.DB 句柄。
func NewMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("MySQL database connected successfully")
	return db, nil
}

// Migrate 迁移会话与消息两张表。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Conversation{}, &model.Message{}); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

// Close 关闭底层连接池。
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
