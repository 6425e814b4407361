package lrs

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
	"github.com/noah-isme/lrs-metrics-api/pkg/config"
	appErrors "github.com/noah-isme/lrs-metrics-api/pkg/errors"
)

const testEndpoint = "http://lrs.test/xapi"

type timeoutError struct{}

func (timeoutError) Error() string   { return "request timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func newTestClient(t *testing.T, maxRetries int) (*Client, *[]time.Duration) {
	t.Helper()
	cfg := config.LRSInstanceConfig{
		ID:         "lrs-1",
		Name:       "Test LRS",
		Endpoint:   testEndpoint,
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		Auth:       config.LRSAuthConfig{Type: "basic", Username: "key", Password: "secret"},
	}
	client := NewClient(cfg, zap.NewNop(), nil)

	delays := &[]time.Duration{}
	client.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}

	httpmock.ActivateNonDefault(client.http.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return client, delays
}

func statementJSON(id, actor, object string, ts time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":        id,
		"actor":     map[string]interface{}{"mbox": actor},
		"verb":      map[string]interface{}{"id": "http://adlnet.gov/expapi/verbs/completed"},
		"object":    map[string]interface{}{"id": object},
		"timestamp": ts.UTC().Format(time.RFC3339),
	}
}

func TestQueryStatementsRetriesTimeoutsThenSucceeds(t *testing.T) {
	client, delays := newTestClient(t, 4)

	now := time.Now()
	calls := 0
	httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/statements",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls <= 4 {
				return nil, timeoutError{}
			}
			return httpmock.NewJsonResponse(200, map[string]interface{}{
				"statements": []interface{}{statementJSON("s-1", "mailto:a@example.com", "http://courses/c1", now)},
			})
		})

	statements, err := client.QueryStatements(context.Background(), models.QueryFilters{}, 100)
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.Equal(t, "lrs-1", statements[0].InstanceID)
	assert.Equal(t, 5, calls)

	require.Len(t, *delays, 4)
	prev := time.Duration(0)
	for _, d := range *delays {
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 500*time.Millisecond)
		prev = d
	}
	assert.Equal(t, 100*time.Millisecond, (*delays)[0])
}

func TestQueryStatementsAbortsOnClientError(t *testing.T) {
	client, delays := newTestClient(t, 3)

	calls := 0
	httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/statements",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(404, "not found"), nil
		})

	_, err := client.QueryStatements(context.Background(), models.QueryFilters{}, 100)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrLRSClient.Code, appErr.Code)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestQueryStatementsFollowsMoreLink(t *testing.T) {
	client, _ := newTestClient(t, 3)

	now := time.Now()
	calls := 0
	httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/statements",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewJsonResponse(200, map[string]interface{}{
					"statements": []interface{}{
						statementJSON("s-1", "mailto:a@example.com", "http://courses/c1", now),
						statementJSON("s-2", "mailto:a@example.com", "http://courses/c1", now),
					},
					"more": "/xapi/statements?cursor=abc",
				})
			}
			assert.Equal(t, "abc", req.URL.Query().Get("cursor"))
			return httpmock.NewJsonResponse(200, map[string]interface{}{
				"statements": []interface{}{statementJSON("s-3", "mailto:a@example.com", "http://courses/c1", now)},
			})
		})

	statements, err := client.QueryStatements(context.Background(), models.QueryFilters{}, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, statements, 3)
	for _, s := range statements {
		assert.Equal(t, "lrs-1", s.InstanceID)
	}
}

func TestQueryStatementsTruncatesAtCap(t *testing.T) {
	client, _ := newTestClient(t, 3)

	now := time.Now()
	var page []interface{}
	for i := 0; i < 5; i++ {
		page = append(page, statementJSON(fmt.Sprintf("s-%d", i), "mailto:a@example.com", "http://courses/c1", now))
	}
	httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/statements",
		httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{
			"statements": page,
			"more":       "/xapi/statements?cursor=next",
		}))

	statements, err := client.QueryStatements(context.Background(), models.QueryFilters{}, 3)
	require.NoError(t, err)
	assert.Len(t, statements, 3)
	// The cap was reached on the first page, so the more link is never followed.
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestQueryStatementsKeepsConfiguredIdentityOverHints(t *testing.T) {
	client, _ := newTestClient(t, 3)

	now := time.Now()
	stmt := statementJSON("s-1", "mailto:a@example.com", "http://courses/c1", now)
	stmt["context"] = map[string]interface{}{"platform": "some-other-lrs"}
	httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/statements",
		httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{
			"statements": []interface{}{stmt},
		}))

	statements, err := client.QueryStatements(context.Background(), models.QueryFilters{}, 10)
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.Equal(t, "lrs-1", statements[0].InstanceID)
}

func TestQueryStatementsSendsProtocolHeaders(t *testing.T) {
	client, _ := newTestClient(t, 3)

	httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/statements",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "1.0.3", req.Header.Get("X-Experience-API-Version"))
			assert.Equal(t, "application/json", req.Header.Get("Accept"))
			assert.NotEmpty(t, req.Header.Get("X-Correlation-ID"))
			user, pass, ok := req.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "key", user)
			assert.Equal(t, "secret", pass)
			return httpmock.NewJsonResponse(200, map[string]interface{}{"statements": []interface{}{}})
		})

	_, err := client.QueryStatements(context.Background(), models.QueryFilters{}, 10)
	require.NoError(t, err)
}

func TestAggregateCountsSinglePage(t *testing.T) {
	client, _ := newTestClient(t, 3)

	now := time.Now()
	httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/statements",
		httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{
			"statements": []interface{}{
				statementJSON("s-1", "mailto:a@example.com", "http://courses/c1", now),
				statementJSON("s-2", "mailto:a@example.com", "http://courses/c1", now),
			},
			"more": "/xapi/statements?cursor=ignored",
		}))

	count, err := client.Aggregate(context.Background(), models.QueryFilters{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestGetInstanceHealth(t *testing.T) {
	t.Run("healthy with version", func(t *testing.T) {
		client, _ := newTestClient(t, 3)
		httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/about",
			httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{"version": []string{"1.0.3"}}))

		health := client.GetInstanceHealth(context.Background())
		assert.True(t, health.Healthy)
		assert.Equal(t, "1.0.3", health.Version)
		assert.Empty(t, health.Error)
	})

	t.Run("auth failure still counts as reachable", func(t *testing.T) {
		client, _ := newTestClient(t, 3)
		httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/about",
			httpmock.NewStringResponder(401, "unauthorized"))

		health := client.GetInstanceHealth(context.Background())
		assert.True(t, health.Healthy)
		assert.NotEmpty(t, health.Error)
	})

	t.Run("connection failure is unhealthy", func(t *testing.T) {
		client, _ := newTestClient(t, 3)
		httpmock.RegisterResponder(http.MethodGet, testEndpoint+"/about",
			httpmock.NewErrorResponder(fmt.Errorf("connection refused")))

		health := client.GetInstanceHealth(context.Background())
		assert.False(t, health.Healthy)
		assert.NotEmpty(t, health.Error)
	})
}
