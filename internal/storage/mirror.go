package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/qadrim/vodsync/internal/utils"
)

const (
	userAgent       = "Mozilla/5.0"
	maxDownloadSize = 32 * 1024 * 1024 // playlists and covers only
	maxFetchRetries = 3

	playlistContentType = "application/vnd.apple.mpegurl"
	coverContentType    = "image/jpeg"
)

// ObjectStore is the contract the mirror needs from a blob store.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	PutBlob(ctx context.Context, key string, data []byte, contentType string) error
}

// Mirror copies a record's media assets into content-addressed object
// storage. Keys are deterministic, so a re-run skips objects that already
// exist; failure granularity is the whole record, never a single episode.
type Mirror struct {
	store       ObjectStore
	keys        *KeyDeriver
	httpClient  *http.Client
	seen        *gocache.Cache
	maxDownload int64
	logger      *logrus.Logger
}

// NewMirror creates a mirror over the given object store
func NewMirror(store ObjectStore, keys *KeyDeriver, logger *logrus.Logger) *Mirror {
	return &Mirror{
		store:       store,
		keys:        keys,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		seen:        gocache.New(30*time.Minute, 10*time.Minute),
		maxDownload: maxDownloadSize,
		logger:      logger,
	}
}

// SyncVideo mirrors every episode playlist and then the cover. Any failure
// fails the whole record; the caller queues it for upload remediation.
func (m *Mirror) SyncVideo(ctx context.Context, externalID, title string, episodes []string, coverURL string) error {
	m.logger.WithFields(logrus.Fields{
		"external_id": externalID,
		"title":       title,
		"episodes":    len(episodes),
	}).Info("Mirroring video assets")

	for i, episodeURL := range episodes {
		episode := i + 1
		if episodeURL == "" {
			m.logger.WithFields(logrus.Fields{
				"external_id": externalID,
				"episode":     episode,
			}).Warn("Skipping empty episode locator")
			continue
		}

		baseKey, err := m.keys.Derive(title, externalID, KindMediaSegment, episode)
		if err != nil {
			return fmt.Errorf("failed to derive key for episode %d: %w", episode, err)
		}
		playlistKey := baseKey + "/origin.m3u8"

		if m.alreadyStored(ctx, playlistKey) {
			m.logger.WithField("key", playlistKey).Debug("Playlist already stored, skipping")
			continue
		}

		body, err := m.fetch(ctx, episodeURL)
		if err != nil {
			return fmt.Errorf("failed to download episode %d playlist: %w", episode, err)
		}
		if len(body) == 0 {
			return fmt.Errorf("episode %d playlist is empty", episode)
		}

		rewritten := RewritePlaylist(string(body), episodeURL)
		if err := m.store.PutBlob(ctx, playlistKey, []byte(rewritten), playlistContentType); err != nil {
			return fmt.Errorf("failed to upload episode %d playlist: %w", episode, err)
		}
		m.seen.SetDefault(playlistKey, true)
	}

	coverKey, err := m.keys.Derive(title, externalID, KindCover, 0)
	if err != nil {
		return fmt.Errorf("failed to derive cover key: %w", err)
	}

	if m.alreadyStored(ctx, coverKey) {
		m.logger.WithField("key", coverKey).Debug("Cover already stored, skipping")
		return nil
	}

	if coverURL == "" {
		return fmt.Errorf("record %s has no cover url", externalID)
	}

	body, err := m.fetch(ctx, coverURL)
	if err != nil {
		return fmt.Errorf("failed to download cover: %w", err)
	}
	if err := m.store.PutBlob(ctx, coverKey, body, coverContentType); err != nil {
		return fmt.Errorf("failed to upload cover: %w", err)
	}
	m.seen.SetDefault(coverKey, true)

	return nil
}

// alreadyStored checks the per-run cache, then the store. A failed
// existence check counts as not stored; the subsequent put is idempotent.
func (m *Mirror) alreadyStored(ctx context.Context, key string) bool {
	if _, ok := m.seen.Get(key); ok {
		return true
	}

	exists, err := m.store.Exists(ctx, key)
	if err != nil {
		m.logger.WithError(err).WithField("key", key).Debug("Existence check failed")
		return false
	}
	if exists {
		m.seen.SetDefault(key, true)
	}
	return exists
}

// fetch downloads a URL with bounded retries on transient failures.
func (m *Mirror) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("download returned status %d", resp.StatusCode)
			if utils.TransientStatus(resp.StatusCode) {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		// Read one byte past the limit so an oversized body is an error,
		// never a silently truncated upload.
		data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxDownload+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > m.maxDownload {
			return backoff.Permanent(fmt.Errorf("download exceeds %d byte limit", m.maxDownload))
		}
		body = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxFetchRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}
