package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
	appErrors "github.com/noah-isme/lrs-metrics-api/pkg/errors"
)

func TestRegistryLookup(t *testing.T) {
	registry := DefaultRegistry()

	p, err := registry.Get("element-score")
	require.NoError(t, err)
	assert.Equal(t, "element-score", p.ID())

	_, err = registry.Get("no-such-metric")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRegistryListSorted(t *testing.T) {
	infos := DefaultRegistry().List()
	require.NotEmpty(t, infos)
	for i := 1; i < len(infos); i++ {
		assert.Less(t, infos[i-1].ID, infos[i].ID)
	}
}

func TestValidateParamsRequiredFields(t *testing.T) {
	p := NewElementScore()

	err := p.ValidateParams(models.MetricParams{"userId": "u-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elementId")

	err = p.ValidateParams(models.MetricParams{"userId": "u-1", "elementId": "e-1"})
	assert.NoError(t, err)
}

func TestValidateParamsRejectsInvertedWindow(t *testing.T) {
	p := NewElementScore()
	err := p.ValidateParams(models.MetricParams{
		"userId":    "u-1",
		"elementId": "e-1",
		"since":     "2026-02-01T00:00:00Z",
		"until":     "2026-01-01T00:00:00Z",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestValidateParamsRejectsMalformedTimestamp(t *testing.T) {
	p := NewElementScore()
	err := p.ValidateParams(models.MetricParams{
		"userId":    "u-1",
		"elementId": "e-1",
		"since":     "yesterday",
	})
	require.Error(t, err)
}

func TestComputeDoesNotMutateArguments(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	params := models.MetricParams{"userId": "u-1", "courseId": "c-1"}
	statements := []models.Statement{
		scored("s-1", 70, ts),
		completed("s-2", boolPtr(true), "http://adlnet.gov/expapi/verbs/completed", ts),
	}

	paramsBefore := models.MetricParams{"userId": "u-1", "courseId": "c-1"}
	statementsBefore := make([]models.Statement, len(statements))
	copy(statementsBefore, statements)

	for _, p := range []Provider{NewCourseProgress(), NewLearningTime(), NewAttemptCount()} {
		_, err := p.Compute(params, statements)
		require.NoError(t, err)
		assert.Equal(t, paramsBefore, params, "provider %s mutated params", p.ID())
		assert.Equal(t, statementsBefore, statements, "provider %s mutated statements", p.ID())
	}
}

func TestCourseProgress(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	done := completed("s-1", boolPtr(true), "http://adlnet.gov/expapi/verbs/completed", ts)
	done.Object.ID = "http://courses/c1/e1"
	open := completed("s-2", nil, "http://adlnet.gov/expapi/verbs/attempted", ts)
	open.Object.ID = "http://courses/c1/e2"

	result, err := NewCourseProgress().Compute(
		models.MetricParams{"userId": "u-1", "courseId": "c-1"},
		[]models.Statement{done, open},
	)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, result.Value, 0.001)
}

func TestCourseProgressEmptyInput(t *testing.T) {
	result, err := NewCourseProgress().Compute(models.MetricParams{"userId": "u-1", "courseId": "c-1"}, nil)
	require.NoError(t, err)
	assert.Nil(t, result.Value)
}

func TestTopicAverageScoreSkipsUnscoredElements(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	a := scored("s-1", 80, ts)
	a.Object.ID = "http://courses/c1/e1"
	b := scored("s-2", 60, ts)
	b.Object.ID = "http://courses/c1/e2"
	c := completed("s-3", nil, "http://adlnet.gov/expapi/verbs/attempted", ts)
	c.Object.ID = "http://courses/c1/e3"

	result, err := NewTopicAverageScore().Compute(
		models.MetricParams{"userId": "u-1", "topicId": "t-1"},
		[]models.Statement{a, b, c},
	)
	require.NoError(t, err)
	assert.InDelta(t, 70.0, result.Value, 0.001)
	assert.Equal(t, 2, result.Metadata["elements"])
}

func TestLearningTimeSumsISODurations(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	statements := []models.Statement{
		{ID: "s-1", Object: models.Object{ID: "e1"}, Result: &models.Result{Duration: "PT1H30M"}, Timestamp: &ts},
		{ID: "s-2", Object: models.Object{ID: "e2"}, Result: &models.Result{Duration: "PT45S"}, Timestamp: &ts},
		{ID: "s-3", Object: models.Object{ID: "e3"}, Result: &models.Result{Duration: "garbage"}, Timestamp: &ts},
	}

	result, err := NewLearningTime().Compute(models.MetricParams{"userId": "u-1", "courseId": "c-1"}, statements)
	require.NoError(t, err)
	assert.InDelta(t, 5445.0, result.Value, 0.001)
	assert.Equal(t, 2, result.Metadata["dataPoints"])
}

func TestParseISODuration(t *testing.T) {
	cases := map[string]time.Duration{
		"PT30S":    30 * time.Second,
		"PT2M":     2 * time.Minute,
		"PT1H15M":  75 * time.Minute,
		"P1DT1H":   25 * time.Hour,
		"PT0.5S":   500 * time.Millisecond,
		"P1W":      7 * 24 * time.Hour,
	}
	for raw, want := range cases {
		got, ok := parseISODuration(raw)
		require.True(t, ok, "duration %q should parse", raw)
		assert.Equal(t, want, got, "duration %q", raw)
	}

	for _, raw := range []string{"", "1H", "P", "PT", "PTxS", "P1M"} {
		_, ok := parseISODuration(raw)
		assert.False(t, ok, "duration %q should not parse", raw)
	}
}
