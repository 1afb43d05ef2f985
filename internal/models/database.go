package models

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the gorm store for video records
type Database struct {
	db *gorm.DB
}

// NewDatabase opens the record store. Driver is "mysql" or "sqlite".
func NewDatabase(driver, dsn string) (*Database, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Video{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the underlying connection pool
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// VideoExists reports whether a record with the given external id is already persisted
func (d *Database) VideoExists(externalID string) (bool, error) {
	var count int64
	err := d.db.Model(&Video{}).Where("external_id = ?", externalID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check video existence: %w", err)
	}
	return count > 0, nil
}

// InsertVideo persists a new video record
func (d *Database) InsertVideo(video *Video) error {
	if err := d.db.Create(video).Error; err != nil {
		return fmt.Errorf("failed to insert video %s: %w", video.ExternalID, err)
	}
	return nil
}

// GetVideosByExternalIDs fetches the canonical persisted form of the given records
func (d *Database) GetVideosByExternalIDs(externalIDs []string) ([]Video, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}

	var videos []Video
	err := d.db.Where("external_id IN ?", externalIDs).Find(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch videos: %w", err)
	}
	return videos, nil
}
