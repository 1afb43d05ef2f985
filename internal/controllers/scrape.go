package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"

	"github.com/qadrim/vodsync/internal/checkpoint"
	"github.com/qadrim/vodsync/internal/models"
	"github.com/qadrim/vodsync/internal/services/catalog"
)

// ScrapeController drives the page-by-page ingestion loop: fetch a page,
// dedupe against the record store, enrich, persist, mirror media to object
// storage, distribute to the downstream sites, checkpoint, advance.
type ScrapeController struct {
	api         CatalogAPI
	store       RecordStore
	mirror      VideoMirror
	sites       SitePublisher
	checkpoints CheckpointStore
	itemDelay   time.Duration
	pageDelay   time.Duration
	logger      *logrus.Logger
}

// NewScrapeController creates a new scrape controller
func NewScrapeController(api CatalogAPI, store RecordStore, mirror VideoMirror, sites SitePublisher,
	checkpoints CheckpointStore, itemDelay, pageDelay time.Duration, logger *logrus.Logger) *ScrapeController {
	return &ScrapeController{
		api:         api,
		store:       store,
		mirror:      mirror,
		sites:       sites,
		checkpoints: checkpoints,
		itemDelay:   itemDelay,
		pageDelay:   pageDelay,
		logger:      logger,
	}
}

// Run executes the ingestion loop until the catalog is exhausted or an
// unrecoverable failure aborts it. Progress already checkpointed survives
// either way.
func (c *ScrapeController) Run(ctx context.Context) error {
	cp, err := c.checkpoints.Load()
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	// Resume at the last fully processed page, not the one after it. The
	// repeat costs nothing: every item on it dedups against the store.
	page := cp.LastPage
	if page == 0 {
		page = 1
		c.logger.Info("Starting from the first page")
	} else {
		c.logger.WithField("page", page).Info("Resuming from checkpoint")
	}

	if cp.CredentialToken != "" {
		c.api.SetToken(cp.CredentialToken)
		c.logger.Info("Using cached catalog token")
	}

	for {
		items, err := c.api.ListPage(ctx, page)
		if errors.Is(err, catalog.ErrTokenExpired) {
			if err := c.refreshToken(ctx, cp); err != nil {
				return fmt.Errorf("credential refresh failed: %w", err)
			}
			continue // retry the same page with the fresh token
		}
		if err != nil {
			return fmt.Errorf("aborting at page %d: %w", page, err)
		}

		if len(items) == 0 {
			c.logger.WithField("page", page).Info("Empty page, catalog exhausted")
			return nil
		}
		c.logger.WithFields(logrus.Fields{
			"page":  page,
			"count": len(items),
		}).Info("Processing page")

		processed, err := c.processItems(ctx, cp, items)
		if err != nil {
			// Abort without advancing the page. Items already persisted on
			// this partial page dedup away on the next run, so they must be
			// recorded as distribution failures now or they never reach any
			// domain.
			for _, domain := range c.sites.Domains() {
				cp.MergeDistributionFailures(domain, processed)
			}
			if saveErr := c.checkpoints.Save(cp); saveErr != nil {
				c.logger.WithError(saveErr).Error("Failed to save checkpoint during abort")
			}
			return err
		}

		if len(processed) > 0 {
			c.distribute(ctx, cp, processed)
		} else {
			c.logger.WithField("page", page).Info("No new records on this page")
		}

		cp.LastPage = page
		if err := c.checkpoints.Save(cp); err != nil {
			return fmt.Errorf("failed to save checkpoint after page %d: %w", page, err)
		}

		page++
		c.sleep(ctx, c.pageDelay)
	}
}

// processItems runs dedupe → enrich → persist → mirror for every item of a
// page and returns the ids that were newly persisted. Only a failed
// credential refresh is fatal; every other per-item failure drops the item
// or queues it for remediation.
func (c *ScrapeController) processItems(ctx context.Context, cp *checkpoint.Checkpoint, items []catalog.VideoSummary) ([]string, error) {
	var processed []string

	for _, item := range items {
		if item.ID == "" {
			c.logger.WithField("title", item.Title).Warn("Item without external id, skipping")
			continue
		}

		exists, err := c.store.VideoExists(item.ID)
		if err != nil {
			c.logger.WithError(err).WithField("external_id", item.ID).Error("Existence check failed, dropping item")
			continue
		}
		if exists {
			c.logger.WithFields(logrus.Fields{
				"external_id": item.ID,
				"title":       item.Title,
			}).Debug("Already persisted, skipping")
			continue
		}

		detail, err := c.enrich(ctx, cp, item)
		if err != nil {
			var fatal *fatalError
			if errors.As(err, &fatal) {
				return processed, fatal.err
			}
			continue // already logged, item dropped
		}

		video := buildVideo(item, detail)
		if err := c.store.InsertVideo(video); err != nil {
			// A failed write is never assumed to have partially succeeded;
			// dropping beats risking a duplicate.
			c.logger.WithError(err).WithField("external_id", item.ID).Error("Persist failed, dropping item")
			continue
		}

		if err := c.mirror.SyncVideo(ctx, item.ID, video.Title, detail.VideoList, video.Cover); err != nil {
			c.logger.WithError(err).WithField("external_id", item.ID).Error("Mirroring failed, queued for remediation")
			cp.AddFailedUpload(item.ID)
		}

		processed = append(processed, item.ID)
		c.sleep(ctx, c.itemDelay)
	}

	return processed, nil
}

// enrich fetches the detail payload for one item, refreshing the session
// credential in place when it expires. A refresh failure is fatal; an empty
// or unreadable detail drops the item.
func (c *ScrapeController) enrich(ctx context.Context, cp *checkpoint.Checkpoint, item catalog.VideoSummary) (*catalog.VideoDetail, error) {
	for {
		detail, err := c.api.FetchDetail(ctx, item.ID)
		switch {
		case err == nil:
			c.warnOnTitleDrift(item, detail)
			return detail, nil
		case errors.Is(err, catalog.ErrTokenExpired):
			if rerr := c.refreshToken(ctx, cp); rerr != nil {
				return nil, &fatalError{err: fmt.Errorf("credential refresh failed: %w", rerr)}
			}
		case errors.Is(err, catalog.ErrEmptyDetail):
			c.logger.WithFields(logrus.Fields{
				"external_id": item.ID,
				"title":       item.Title,
			}).Warn("Empty detail payload, dropping item")
			return nil, err
		default:
			c.logger.WithError(err).WithField("external_id", item.ID).Error("Detail fetch failed, dropping item")
			return nil, err
		}
	}
}

// distribute re-reads the canonical records from the store and pushes the
// batch to every configured domain. Failures union into the checkpoint; a
// transport failure conservatively fails the whole batch for that domain.
func (c *ScrapeController) distribute(ctx context.Context, cp *checkpoint.Checkpoint, processed []string) {
	c.logger.WithField("count", len(processed)).Info("Distributing batch to sites")

	videos, err := c.store.GetVideosByExternalIDs(processed)
	if err != nil || len(videos) == 0 {
		if err != nil {
			c.logger.WithError(err).Error("Failed to read batch back from store")
		} else {
			c.logger.Error("Store returned no records for the batch")
		}
		for _, domain := range c.sites.Domains() {
			cp.MergeDistributionFailures(domain, processed)
		}
		return
	}

	for _, domain := range c.sites.Domains() {
		failed, err := c.sites.Push(ctx, videos, domain)
		if err != nil {
			c.logger.WithError(err).WithField("domain", domain).Error("Push failed, recording whole batch")
			cp.MergeDistributionFailures(domain, processed)
			continue
		}
		cp.MergeDistributionFailures(domain, failed)
	}
}

// refreshToken logs in again and persists the fresh token immediately so a
// crash right after refresh does not burn another login.
func (c *ScrapeController) refreshToken(ctx context.Context, cp *checkpoint.Checkpoint) error {
	c.logger.Warn("Catalog token expired, re-authenticating")

	token, err := c.api.Login(ctx)
	if err != nil {
		return err
	}

	cp.CredentialToken = token
	if err := c.checkpoints.Save(cp); err != nil {
		return fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	return nil
}

func (c *ScrapeController) warnOnTitleDrift(item catalog.VideoSummary, detail *catalog.VideoDetail) {
	if item.Title == "" || detail.Title == "" {
		return
	}
	if dist := levenshtein.ComputeDistance(item.Title, detail.Title); dist > len(item.Title)/2 {
		c.logger.WithFields(logrus.Fields{
			"external_id":  item.ID,
			"list_title":   item.Title,
			"detail_title": detail.Title,
			"distance":     dist,
		}).Warn("Detail title drifts from listing title")
	}
}

func (c *ScrapeController) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// buildVideo assembles the persistent record from the listing entry and
// its detail payload. The listing title wins when both are present.
func buildVideo(item catalog.VideoSummary, detail *catalog.VideoDetail) *models.Video {
	title := item.Title
	if title == "" {
		title = detail.Title
	}
	cover := detail.Cover
	if cover == "" {
		cover = item.Cover
	}

	video := &models.Video{
		ExternalID:    item.ID,
		Title:         title,
		Cover:         cover,
		DownloadURL:   detail.DownloadURL,
		Description:   detail.Description(),
		TotalEpisodes: detail.TotalEpisodes,
		FreeEpisodes:  detail.FreeWatchEpisodes,
	}
	video.SetEpisodes(detail.VideoList)
	return video
}

// fatalError marks a per-item failure that must abort the whole run.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
