package site

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/qadrim/vodsync/internal/config"
	"github.com/qadrim/vodsync/internal/models"
	"github.com/qadrim/vodsync/internal/utils"
)

const (
	maxRequestRetries = 3
	maxResponseSize   = 4 * 1024 * 1024
)

// Client pushes record batches to the downstream site mirrors
type Client struct {
	domains       []string
	apiToken      string
	syncEndpoint  string
	cleanEndpoint string

	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new site distribution client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if len(cfg.SiteDomains) == 0 {
		logger.Warn("No site domains configured, distribution will be a no-op")
	}

	return &Client{
		domains:       cfg.SiteDomains,
		apiToken:      cfg.SiteAPIToken,
		syncEndpoint:  cfg.SiteSyncEndpoint,
		cleanEndpoint: cfg.SiteCleanEndpoint,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
	}, nil
}

// Domains returns the configured downstream domains
func (c *Client) Domains() []string {
	return c.domains
}

// Push sends a batch of records to one domain and returns the external ids
// that domain rejected. An empty slice means full success. A returned error
// is a transport failure: the caller must treat the entire batch as failed
// for this domain.
func (c *Client) Push(ctx context.Context, videos []models.Video, domain string) ([]string, error) {
	syncURL, err := url.JoinPath(domain, c.syncEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid domain %s: %w", domain, err)
	}

	videosJSON, err := json.Marshal(videos)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}
	payload, err := json.Marshal(map[string]string{"videos_data": string(videosJSON)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"domain": domain,
		"count":  len(videos),
	}).Info("Pushing batch to site")

	body, err := c.post(ctx, syncURL, payload)
	if err != nil {
		return nil, fmt.Errorf("push to %s failed: %w", domain, err)
	}

	failedIDs, err := parseFailedIDs(body)
	if err != nil {
		return nil, fmt.Errorf("unreadable response from %s: %w", domain, err)
	}

	if len(failedIDs) > 0 {
		c.logger.WithFields(logrus.Fields{
			"domain": domain,
			"failed": len(failedIDs),
		}).Warn("Site rejected part of the batch")
	}
	return failedIDs, nil
}

// Cleanup asks one domain to clear its mirrored data
func (c *Client) Cleanup(ctx context.Context, domain string) error {
	cleanURL, err := url.JoinPath(domain, c.cleanEndpoint)
	if err != nil {
		return fmt.Errorf("invalid domain %s: %w", domain, err)
	}

	c.logger.WithField("domain", domain).Info("Cleaning site data")

	if _, err := c.post(ctx, cleanURL, []byte("{}")); err != nil {
		return fmt.Errorf("cleanup of %s failed: %w", domain, err)
	}
	return nil
}

// post sends a JSON body with bounded retries on transient failures.
func (c *Client) post(ctx context.Context, fullURL string, payload []byte) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "vodsync/1.0")
		req.Header.Set("Authorization", "Bearer "+c.apiToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := fmt.Errorf("site returned status %d", resp.StatusCode)
			if utils.TransientStatus(resp.StatusCode) {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRequestRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

// parseFailedIDs decodes the site's rejected-id list, which some mirrors
// return as strings and others as numbers.
func parseFailedIDs(body []byte) ([]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var raw []interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		switch id := v.(type) {
		case string:
			ids = append(ids, id)
		case json.Number:
			ids = append(ids, id.String())
		default:
			ids = append(ids, fmt.Sprintf("%v", v))
		}
	}
	return ids, nil
}
