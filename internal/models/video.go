package models

import (
	"strings"
	"time"
)

// Video is one ingested catalog entry. ExternalID is the stable identity
// from the remote catalog and the sole dedup key; a record is never
// re-persisted or mutated by the pipeline once inserted.
type Video struct {
	ID         uint64 `gorm:"primaryKey"`
	ExternalID string `gorm:"uniqueIndex;size:64"`

	Title       string
	Cover       string
	PlayURL     string `gorm:"type:text"` // episode locators joined by "#"
	DownloadURL string
	Description string `gorm:"type:text"`

	TotalEpisodes int
	FreeEpisodes  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Episodes returns the per-episode source locators in order.
func (v *Video) Episodes() []string {
	if v.PlayURL == "" {
		return nil
	}
	return strings.Split(v.PlayURL, "#")
}

// SetEpisodes stores the per-episode source locators.
func (v *Video) SetEpisodes(urls []string) {
	v.PlayURL = strings.Join(urls, "#")
}
