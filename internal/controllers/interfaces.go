package controllers

import (
	"context"

	"github.com/qadrim/vodsync/internal/checkpoint"
	"github.com/qadrim/vodsync/internal/models"
	"github.com/qadrim/vodsync/internal/services/catalog"
)

// CatalogAPI is the contract the orchestrator needs from the remote
// catalog: authentication plus paged listing and per-record detail.
type CatalogAPI interface {
	Login(ctx context.Context) (string, error)
	SetToken(token string)
	ListPage(ctx context.Context, page int) ([]catalog.VideoSummary, error)
	FetchDetail(ctx context.Context, externalID string) (*catalog.VideoDetail, error)
}

// RecordStore is the contract against the relational record store.
type RecordStore interface {
	VideoExists(externalID string) (bool, error)
	InsertVideo(video *models.Video) error
	GetVideosByExternalIDs(externalIDs []string) ([]models.Video, error)
}

// VideoMirror copies a record's media assets into object storage.
type VideoMirror interface {
	SyncVideo(ctx context.Context, externalID, title string, episodes []string, coverURL string) error
}

// SitePublisher pushes record batches to downstream mirrors. Push returns
// the ids the domain rejected; a transport error means the caller must
// treat the whole batch as failed for that domain.
type SitePublisher interface {
	Domains() []string
	Push(ctx context.Context, videos []models.Video, domain string) ([]string, error)
	Cleanup(ctx context.Context, domain string) error
}

// CheckpointStore loads and durably saves pipeline progress.
type CheckpointStore interface {
	Load() (*checkpoint.Checkpoint, error)
	Save(cp *checkpoint.Checkpoint) error
}
