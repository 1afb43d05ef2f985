package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qadrim/vodsync/internal/checkpoint"
	"github.com/qadrim/vodsync/internal/services/catalog"
)

// tokenRefreshAttempts bounds how often a single remediation item may
// trigger re-authentication before it is counted as failed again.
const tokenRefreshAttempts = 2

// UploadFixController retries the storage mirroring for records whose
// upload failed during ingestion. The surviving failure set replaces the
// old one wholesale: this run is the authority on what is still broken.
type UploadFixController struct {
	api         CatalogAPI
	mirror      VideoMirror
	checkpoints CheckpointStore
	itemDelay   time.Duration
	logger      *logrus.Logger
}

// NewUploadFixController creates a new upload remediation controller
func NewUploadFixController(api CatalogAPI, mirror VideoMirror, checkpoints CheckpointStore,
	itemDelay time.Duration, logger *logrus.Logger) *UploadFixController {
	return &UploadFixController{
		api:         api,
		mirror:      mirror,
		checkpoints: checkpoints,
		itemDelay:   itemDelay,
		logger:      logger,
	}
}

// Run retries every queued upload failure once and rewrites the queue with
// whatever still fails.
func (c *UploadFixController) Run(ctx context.Context) error {
	cp, err := c.checkpoints.Load()
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	queued := len(cp.FailedUploadIDs)
	if queued == 0 {
		c.logger.Info("No failed uploads to remediate")
		return nil
	}
	c.logger.WithField("count", queued).Info("Remediating failed uploads")

	if cp.CredentialToken != "" {
		c.api.SetToken(cp.CredentialToken)
	}

	var still []string
	for _, id := range cp.FailedUploadIDs {
		if err := c.fixOne(ctx, cp, id); err != nil {
			if errors.Is(err, catalog.ErrEmptyDetail) {
				// Nothing to upload for this record anymore; keeping it
				// queued would retry forever.
				c.logger.WithField("external_id", id).Warn("Empty detail payload, removing from queue")
				continue
			}
			c.logger.WithError(err).WithField("external_id", id).Error("Remediation failed, keeping in queue")
			still = append(still, id)
			continue
		}
		c.logger.WithField("external_id", id).Info("Upload remediated")
		c.sleep(ctx, c.itemDelay)
	}

	cp.SetFailedUploads(still)
	if err := c.checkpoints.Save(cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"remediated": queued - len(still),
		"remaining":  len(still),
	}).Info("Upload remediation finished")
	return nil
}

// fixOne re-fetches the record detail and replays the mirror sync. An
// expired credential is refreshed in place with a bounded number of
// attempts; a transport failure on the detail fetch keeps the id queued
// rather than dropping it.
func (c *UploadFixController) fixOne(ctx context.Context, cp *checkpoint.Checkpoint, id string) error {
	for attempt := 0; attempt < tokenRefreshAttempts; attempt++ {
		detail, err := c.api.FetchDetail(ctx, id)
		if errors.Is(err, catalog.ErrTokenExpired) {
			token, lerr := c.api.Login(ctx)
			if lerr != nil {
				return fmt.Errorf("login failed: %w", lerr)
			}
			cp.CredentialToken = token
			if serr := c.checkpoints.Save(cp); serr != nil {
				c.logger.WithError(serr).Error("Failed to persist refreshed token")
			}
			continue
		}
		if err != nil {
			return err
		}
		return c.mirror.SyncVideo(ctx, id, detail.Title, detail.VideoList, detail.Cover)
	}
	return fmt.Errorf("token refresh attempts exhausted for %s", id)
}

func (c *UploadFixController) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// SiteFixController re-pushes previously failed batches to their domains.
// Each domain's entry is replaced by the outcome of this run.
type SiteFixController struct {
	store       RecordStore
	sites       SitePublisher
	checkpoints CheckpointStore
	logger      *logrus.Logger
}

// NewSiteFixController creates a new distribution remediation controller
func NewSiteFixController(store RecordStore, sites SitePublisher, checkpoints CheckpointStore,
	logger *logrus.Logger) *SiteFixController {
	return &SiteFixController{
		store:       store,
		sites:       sites,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Run re-reads the queued records from the store per domain and pushes
// them again. Domains that fully succeed disappear from the checkpoint.
func (c *SiteFixController) Run(ctx context.Context) error {
	cp, err := c.checkpoints.Load()
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if len(cp.FailedDistribution) == 0 {
		c.logger.Info("No failed distributions to remediate")
		return nil
	}

	result := make(map[string][]string)
	for domain, ids := range cp.FailedDistribution {
		if len(ids) == 0 {
			continue
		}
		c.logger.WithFields(logrus.Fields{
			"domain": domain,
			"count":  len(ids),
		}).Info("Re-pushing failed batch")

		videos, err := c.store.GetVideosByExternalIDs(ids)
		if err != nil || len(videos) == 0 {
			if err != nil {
				c.logger.WithError(err).WithField("domain", domain).Error("Failed to read records, keeping batch queued")
			} else {
				c.logger.WithField("domain", domain).Warn("No records found for queued ids, keeping batch queued")
			}
			result[domain] = ids
			continue
		}

		failed, err := c.sites.Push(ctx, videos, domain)
		if err != nil {
			c.logger.WithError(err).WithField("domain", domain).Error("Re-push failed, keeping batch queued")
			result[domain] = ids
			continue
		}
		if len(failed) > 0 {
			result[domain] = failed
		}
	}

	cp.SetDistributionFailures(result)
	if err := c.checkpoints.Save(cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	c.logger.WithField("remaining_domains", len(result)).Info("Distribution remediation finished")
	return nil
}

// SiteCleanController triggers the cleanup endpoint on every configured
// domain. Failures are reported per domain, not propagated: cleanup is
// advisory.
type SiteCleanController struct {
	sites  SitePublisher
	logger *logrus.Logger
}

// NewSiteCleanController creates a new site cleanup controller
func NewSiteCleanController(sites SitePublisher, logger *logrus.Logger) *SiteCleanController {
	return &SiteCleanController{
		sites:  sites,
		logger: logger,
	}
}

// Run asks every configured domain to clear its mirrored data.
func (c *SiteCleanController) Run(ctx context.Context) error {
	domains := c.sites.Domains()
	if len(domains) == 0 {
		c.logger.Warn("No site domains configured, nothing to clean")
		return nil
	}

	for _, domain := range domains {
		if err := c.sites.Cleanup(ctx, domain); err != nil {
			c.logger.WithError(err).WithField("domain", domain).Error("Cleanup failed")
			continue
		}
		c.logger.WithField("domain", domain).Info("Cleanup succeeded")
	}
	return nil
}
