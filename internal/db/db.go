package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/investocrafy/internal/chat"
	"github.com/suPer8Hu/investocrafy/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the MySQL store and migrates every table the service owns.
// It exits the process on failure.
func Connect(dsn string) *gorm.DB {
	gdb, err := Open(mysql.Open(dsn))
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	return gdb
}

// Open opens a store through the given dialector and runs migrations.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&models.Investor{}); err != nil {
		return fmt.Errorf("auto migrate investors: %w", err)
	}
	if err := chat.AutoMigrate(gdb); err != nil {
		return fmt.Errorf("auto migrate chat: %w", err)
	}
	return nil
}
