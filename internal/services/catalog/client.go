package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/qadrim/vodsync/internal/config"
	"github.com/qadrim/vodsync/internal/utils"
)

const (
	tokenHeader = "X-Api-Token"

	codeOK           = 0
	codeTokenExpired = 402

	maxRequestRetries = 3
	maxResponseSize   = 16 * 1024 * 1024
)

var (
	// ErrTokenExpired signals a recoverable credential expiry: the caller
	// should refresh via Login and retry the same call.
	ErrTokenExpired = errors.New("catalog token expired")
	// ErrEmptyDetail signals a successful response with no payload — a
	// data-quality gap, not a transient failure.
	ErrEmptyDetail = errors.New("catalog detail payload is empty")
)

// Client handles communication with the remote catalog API
type Client struct {
	baseURL        string
	loginEndpoint  string
	listEndpoint   string
	detailEndpoint string

	username string
	password string
	domain   string
	pageSize int

	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// envelope is the common wrapper every catalog response uses.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// NewClient creates a new catalog API client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}

	return &Client{
		baseURL:        cfg.APIBaseURL,
		loginEndpoint:  cfg.APILoginEndpoint,
		listEndpoint:   cfg.APIListEndpoint,
		detailEndpoint: cfg.APIDetailEndpoint,
		username:       cfg.APIUsername,
		password:       cfg.APIPassword,
		domain:         cfg.APIDomain,
		pageSize:       cfg.APIPageSize,
		httpClient:     &http.Client{Timeout: 5 * time.Minute},
		logger:         logger,
	}, nil
}

// SetToken installs a cached session token
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login authenticates with the configured credentials and returns the new
// session token. The token is also installed on the client.
func (c *Client) Login(ctx context.Context) (string, error) {
	c.logger.Info("Logging in to catalog API")

	payload := map[string]string{
		"user_name": c.username,
		"password":  c.password,
		"domain":    c.domain,
	}

	env, err := c.doRequest(ctx, c.loginEndpoint, payload, false)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	if env.Code != codeOK {
		return "", fmt.Errorf("login rejected (code %d): %s", env.Code, env.Msg)
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		return "", fmt.Errorf("login response has no token")
	}

	c.token = data.Token
	c.logger.Info("Login successful, token updated")
	return data.Token, nil
}

// ListPage fetches one page of the catalog listing. Returns ErrTokenExpired
// when the session credential is missing or rejected.
func (c *Client) ListPage(ctx context.Context, page int) ([]VideoSummary, error) {
	if c.token == "" {
		return nil, ErrTokenExpired
	}

	payload := map[string]int{
		"page":      page,
		"page_size": c.pageSize,
	}

	c.logger.WithField("page", page).Info("Requesting catalog page")

	env, err := c.doRequest(ctx, c.listEndpoint, payload, true)
	if err != nil {
		return nil, fmt.Errorf("list request failed (page %d): %w", page, err)
	}

	switch env.Code {
	case codeOK:
		var data struct {
			Total int            `json:"total"`
			List  []VideoSummary `json:"list"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to parse list payload: %w", err)
		}
		c.logger.WithFields(logrus.Fields{
			"page":  page,
			"count": len(data.List),
			"total": data.Total,
		}).Debug("Catalog page received")
		return data.List, nil
	case codeTokenExpired:
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("catalog API error (code %d): %s", env.Code, env.Msg)
	}
}

// FetchDetail fetches the enriched record for one external id. Returns
// ErrTokenExpired on credential expiry and ErrEmptyDetail when the API
// answers successfully but carries no record.
func (c *Client) FetchDetail(ctx context.Context, externalID string) (*VideoDetail, error) {
	if c.token == "" {
		return nil, ErrTokenExpired
	}

	payload := map[string]string{
		"id":        externalID,
		"lang_code": "en",
	}

	env, err := c.doRequest(ctx, c.detailEndpoint, payload, true)
	if err != nil {
		return nil, fmt.Errorf("detail request failed (id %s): %w", externalID, err)
	}

	switch env.Code {
	case codeOK:
		var data struct {
			List []VideoDetail `json:"list"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to parse detail payload: %w", err)
		}
		if len(data.List) == 0 {
			return nil, ErrEmptyDetail
		}
		detail := data.List[0]
		if detail.Title == "" && len(detail.VideoList) == 0 {
			return nil, ErrEmptyDetail
		}
		return &detail, nil
	case codeTokenExpired:
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("catalog API error (code %d): %s", env.Code, env.Msg)
	}
}

// doRequest posts a JSON payload and decodes the response envelope,
// retrying transient transport failures with bounded backoff.
func (c *Client) doRequest(ctx context.Context, endpoint string, payload interface{}, withToken bool) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	fullURL := c.baseURL + endpoint

	var env envelope
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "vodsync/1.0")
		if withToken && c.token != "" {
			req.Header.Set(tokenHeader, c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := fmt.Errorf("catalog API returned status %d", resp.StatusCode)
			if utils.TransientStatus(resp.StatusCode) {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRequestRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return &env, nil
}
