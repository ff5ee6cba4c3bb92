// Package database 提供 MySQL 与 Redis 连接的构造函数。
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"xiaowen-go/pkg/log"
)

// NewMySQL 建立 MySQL 连接并配置连接池，连接句柄由调用方注入各仓库。
func NewMySQL(dsn string) (*gorm.DB, error) {
	// TranslateError 让唯一索引冲突映射为 gorm.ErrDuplicatedKey，
	// 受理侧的指纹去重依赖这个判断
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)           // 空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 连接可复用的最大时间

	log.Info("MySQL database connected successfully")
	return db, nil
}
