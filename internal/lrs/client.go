// Package lrs implements the statement-store protocol client: paginated
// statement queries, bounded retries with exponential backoff, and the
// /about health probe.
package lrs

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
	"github.com/noah-isme/lrs-metrics-api/pkg/config"
	appErrors "github.com/noah-isme/lrs-metrics-api/pkg/errors"
	"github.com/noah-isme/lrs-metrics-api/pkg/middleware/requestid"
)

const (
	versionHeader     = "X-Experience-API-Version"
	protocolVersion   = "1.0.3"
	correlationHeader = "X-Correlation-ID"

	backoffBase = 100 * time.Millisecond
	backoffCap  = 500 * time.Millisecond

	// Advisory instance hint some stores embed in statement context
	// extensions. Configuration always wins over it.
	instanceHintExtension = "http://id.tincanapi.com/extension/lrs-instance"
)

// Observer receives instrumentation callbacks from the client. Implemented
// by the metrics service; a nil Observer disables instrumentation.
type Observer interface {
	ObserveLRSRequest(instanceID, operation string, duration time.Duration, failed bool)
	RecordLRSRetry(instanceID string)
}

// Client talks to one configured statement-store instance.
type Client struct {
	cfg    config.LRSInstanceConfig
	http   *resty.Client
	logger *zap.Logger
	obs    Observer

	// sleep is swapped out in tests for deterministic backoff timing.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a client for the given instance configuration.
func NewClient(cfg config.LRSInstanceConfig, logger *zap.Logger, obs Observer) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
		obs:    obs,
		sleep:  sleepWithContext,
	}
}

// InstanceID returns the configured identity of this store.
func (c *Client) InstanceID() string {
	return c.cfg.ID
}

type statementsPage struct {
	Statements []models.Statement `json:"statements"`
	More       string             `json:"more"`
}

type aboutBody struct {
	Version []string `json:"version"`
}

// QueryStatements fetches statements matching the filters, following the
// store's "more" pagination link until the cursor is exhausted or the
// result reaches maxStatements (results are truncated to exactly that cap).
// Every returned statement is tagged with the configured instance id.
func (c *Client) QueryStatements(ctx context.Context, filters models.QueryFilters, maxStatements int) ([]models.Statement, error) {
	if maxStatements <= 0 {
		maxStatements = 1000
	}

	var collected []models.Statement
	nextURL := ""
	first := true

	for first || nextURL != "" {
		var page *statementsPage
		var err error
		if first {
			page, err = c.fetchPage(ctx, "/statements", queryParams(filters))
		} else {
			page, err = c.fetchPage(ctx, nextURL, nil)
		}
		if err != nil {
			return nil, err
		}
		first = false

		for i := range page.Statements {
			stmt := page.Statements[i]
			c.tagStatement(&stmt)
			collected = append(collected, stmt)
			if len(collected) >= maxStatements {
				return collected[:maxStatements], nil
			}
		}

		nextURL, err = c.resolveMore(page.More)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrLRSClient.Code, appErrors.ErrLRSClient.Status, "invalid pagination link")
		}
	}

	return collected, nil
}

// Aggregate returns a best-effort approximate count from a single bounded
// page. The protocol has no count operation; callers needing exact totals
// must query and count themselves.
func (c *Client) Aggregate(ctx context.Context, filters models.QueryFilters) (int, error) {
	if filters.Limit <= 0 {
		filters.Limit = 500
	}
	page, err := c.fetchPage(ctx, "/statements", queryParams(filters))
	if err != nil {
		return 0, err
	}
	return len(page.Statements), nil
}

// GetInstanceHealth probes the store's /about endpoint. Authentication
// failures (401/403) report Healthy=true: the transport is reachable, only
// the credentials are wrong.
func (c *Client) GetInstanceHealth(ctx context.Context) models.InstanceHealth {
	health := models.InstanceHealth{InstanceID: c.cfg.ID}

	start := time.Now()
	resp, err := c.newRequest(ctx).SetResult(&aboutBody{}).Get("/about")
	health.ResponseTimeMs = time.Since(start).Milliseconds()

	if c.obs != nil {
		c.obs.ObserveLRSRequest(c.cfg.ID, "about", time.Since(start), err != nil)
	}

	if err != nil {
		health.Healthy = false
		health.Error = classifyTransportError(err).Message
		return health
	}

	switch {
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		health.Healthy = true
		health.Error = appErrors.ErrLRSAuth.Message
	case resp.IsError():
		health.Healthy = false
		health.Error = statusError(resp.StatusCode()).Message
	default:
		health.Healthy = true
		if about, ok := resp.Result().(*aboutBody); ok && len(about.Version) > 0 {
			health.Version = about.Version[len(about.Version)-1]
		}
	}
	return health
}

// fetchPage performs one GET with bounded retries. Only retriable failures
// (timeouts, connection errors, 5xx, 429) are retried; delays follow an
// exponential schedule from backoffBase capped at backoffCap.
func (c *Client) fetchPage(ctx context.Context, path string, params map[string]string) (*statementsPage, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = backoffBase
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = backoffCap
	policy.MaxElapsedTime = 0
	policy.Reset()

	var lastErr error
	for attempt := 0; ; attempt++ {
		start := time.Now()
		req := c.newRequest(ctx).SetResult(&statementsPage{})
		if params != nil {
			req.SetQueryParams(params)
		}
		resp, err := req.Get(path)

		if c.obs != nil {
			c.obs.ObserveLRSRequest(c.cfg.ID, "statements", time.Since(start), err != nil || (resp != nil && resp.IsError()))
		}

		switch {
		case err != nil:
			lastErr = classifyTransportError(err)
		case resp.IsError():
			lastErr = statusError(resp.StatusCode())
		default:
			page, ok := resp.Result().(*statementsPage)
			if !ok || page == nil {
				page = &statementsPage{}
			}
			return page, nil
		}

		if !appErrors.IsRetriable(lastErr) || attempt >= c.cfg.MaxRetries {
			return nil, lastErr
		}

		delay := policy.NextBackOff()
		if delay > backoffCap {
			delay = backoffCap
		}
		if c.obs != nil {
			c.obs.RecordLRSRetry(c.cfg.ID)
		}
		if c.logger != nil {
			c.logger.Warn("lrs request retry",
				zap.String("instance_id", c.cfg.ID),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrLRSTimeout.Code, appErrors.ErrLRSTimeout.Status, appErrors.ErrLRSTimeout.Message)
		}
	}
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	correlationID := requestid.FromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader(versionHeader, protocolVersion).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader(correlationHeader, correlationID)

	switch c.cfg.Auth.Type {
	case "basic":
		req.SetBasicAuth(c.cfg.Auth.Username, c.cfg.Auth.Password)
	case "bearer":
		req.SetAuthToken(c.cfg.Auth.Token)
	case "custom":
		for k, v := range c.cfg.Auth.Headers {
			req.SetHeader(k, v)
		}
	}

	return req
}

// tagStatement stamps the configured instance id. Identity hints embedded
// in the statement context are advisory: a mismatch is logged, never obeyed.
func (c *Client) tagStatement(stmt *models.Statement) {
	hint := ""
	if stmt.Context != nil {
		if v, ok := stmt.Context.Extensions[instanceHintExtension].(string); ok {
			hint = v
		} else if stmt.Context.Platform != "" {
			hint = stmt.Context.Platform
		}
	}
	if hint != "" && hint != c.cfg.ID && hint != c.cfg.Name && c.logger != nil {
		c.logger.Warn("statement instance hint disagrees with configured identity",
			zap.String("statement_id", stmt.ID),
			zap.String("hint", hint),
			zap.String("configured", c.cfg.ID))
	}
	stmt.InstanceID = c.cfg.ID
}

// resolveMore resolves the store's continuation path against the endpoint.
// An empty more link ends the pagination.
func (c *Client) resolveMore(more string) (string, error) {
	if more == "" {
		return "", nil
	}
	base, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(more)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func queryParams(filters models.QueryFilters) map[string]string {
	params := make(map[string]string)
	if filters.Agent != "" {
		params["agent"] = filters.Agent
	}
	if filters.Verb != "" {
		params["verb"] = filters.Verb
	}
	if filters.Activity != "" {
		params["activity"] = filters.Activity
	}
	if filters.Since != nil {
		params["since"] = filters.Since.UTC().Format(time.RFC3339)
	}
	if filters.Until != nil {
		params["until"] = filters.Until.UTC().Format(time.RFC3339)
	}
	if filters.Limit > 0 {
		params["limit"] = strconv.Itoa(filters.Limit)
	}
	if filters.RelatedActivities {
		params["related_activities"] = "true"
	}
	return params
}

func classifyTransportError(err error) *appErrors.Error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout(), errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrLRSTimeout.Code, appErrors.ErrLRSTimeout.Status, appErrors.ErrLRSTimeout.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrLRSConnection.Code, appErrors.ErrLRSConnection.Status, appErrors.ErrLRSConnection.Message)
	}
}

func statusError(status int) *appErrors.Error {
	switch {
	case status == 401 || status == 403:
		return appErrors.ErrLRSAuth
	case status == 429:
		return appErrors.ErrLRSRateLimited
	case status >= 500:
		return appErrors.ErrLRSServer
	default:
		return appErrors.ErrLRSClient
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
