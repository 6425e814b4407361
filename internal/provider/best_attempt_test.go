package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
)

func scored(id string, raw float64, ts time.Time) models.Statement {
	return models.Statement{
		ID:        id,
		Verb:      models.Verb{ID: "http://adlnet.gov/expapi/verbs/scored"},
		Object:    models.Object{ID: "http://courses/c1/e1"},
		Result:    &models.Result{Score: &models.Score{Raw: &raw}},
		Timestamp: &ts,
	}
}

func completed(id string, flag *bool, verb string, ts time.Time) models.Statement {
	stmt := models.Statement{
		ID:        id,
		Verb:      models.Verb{ID: verb},
		Object:    models.Object{ID: "http://courses/c1/e1"},
		Timestamp: &ts,
	}
	if flag != nil {
		stmt.Result = &models.Result{Completion: flag}
	}
	return stmt
}

func boolPtr(b bool) *bool { return &b }

func TestSelectBestAttemptHighestScoreWins(t *testing.T) {
	t1 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)

	best := SelectBestAttempt([]models.Statement{
		scored("s-70", 70, t1),
		scored("s-85", 85, t2),
		scored("s-60", 60, t3),
	})
	require.NotNil(t, best)
	assert.Equal(t, "s-85", best.ID)
}

func TestSelectBestAttemptScoreTieBreaksByRecency(t *testing.T) {
	t1 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	best := SelectBestAttempt([]models.Statement{
		scored("s-old", 85, t1),
		scored("s-new", 85, t2),
	})
	require.NotNil(t, best)
	assert.Equal(t, "s-new", best.ID)
}

func TestSelectBestAttemptFallsBackToScaled(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	scaledHigh := 0.9
	scaledLow := 0.4
	statements := []models.Statement{
		{ID: "s-low", Result: &models.Result{Score: &models.Score{Scaled: &scaledLow}}, Timestamp: &ts},
		{ID: "s-high", Result: &models.Result{Score: &models.Score{Scaled: &scaledHigh}}, Timestamp: &ts},
	}
	best := SelectBestAttempt(statements)
	require.NotNil(t, best)
	assert.Equal(t, "s-high", best.ID)
}

func TestSelectBestAttemptMostRecentCompletionWithoutScores(t *testing.T) {
	t1 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)

	best := SelectBestAttempt([]models.Statement{
		completed("s-1", boolPtr(true), "http://adlnet.gov/expapi/verbs/attempted", t1),
		completed("s-2", nil, "http://adlnet.gov/expapi/verbs/completed", t2),
		completed("s-3", boolPtr(false), "http://adlnet.gov/expapi/verbs/completed", t3),
	})
	require.NotNil(t, best)
	// s-3 carries an explicit completion=false which overrides its verb.
	assert.Equal(t, "s-2", best.ID)
}

func TestSelectBestAttemptMostRecentOverall(t *testing.T) {
	t1 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	best := SelectBestAttempt([]models.Statement{
		completed("s-1", nil, "http://adlnet.gov/expapi/verbs/attempted", t1),
		completed("s-2", nil, "http://adlnet.gov/expapi/verbs/attempted", t2),
	})
	require.NotNil(t, best)
	assert.Equal(t, "s-2", best.ID)
}

func TestSelectBestAttemptMissingTimestampSortsOldest(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	noTime := models.Statement{ID: "s-no-time", Verb: models.Verb{ID: "http://adlnet.gov/expapi/verbs/attempted"}}
	timed := completed("s-timed", nil, "http://adlnet.gov/expapi/verbs/attempted", ts)

	best := SelectBestAttempt([]models.Statement{noTime, timed})
	require.NotNil(t, best)
	assert.Equal(t, "s-timed", best.ID)
}

func TestSelectBestAttemptEmptyInput(t *testing.T) {
	assert.Nil(t, SelectBestAttempt(nil))
	assert.Nil(t, SelectBestAttempt([]models.Statement{}))
}
