package provider

import (
	"time"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
)

// Verbs treated as completions when the explicit completion flag is absent.
var completionVerbs = map[string]struct{}{
	"http://adlnet.gov/expapi/verbs/completed": {},
	"http://adlnet.gov/expapi/verbs/passed":    {},
	"http://adlnet.gov/expapi/verbs/mastered":  {},
}

// SelectBestAttempt picks the single representative statement among all
// attempts for one learner+element:
//
//  1. any scored attempt: highest score wins, ties broken by recency;
//  2. else any completed attempt: most recent completion wins;
//  3. else: most recent statement.
//
// Empty input yields nil; the caller skips the element entirely. A missing
// timestamp sorts as the oldest possible time, never as an error.
func SelectBestAttempt(statements []models.Statement) *models.Statement {
	if len(statements) == 0 {
		return nil
	}

	var bestScored *models.Statement
	var bestScore float64
	for i := range statements {
		score, ok := attemptScore(&statements[i])
		if !ok {
			continue
		}
		if bestScored == nil || score > bestScore ||
			(score == bestScore && statementTime(&statements[i]).After(statementTime(bestScored))) {
			bestScored = &statements[i]
			bestScore = score
		}
	}
	if bestScored != nil {
		return bestScored
	}

	var bestCompleted *models.Statement
	for i := range statements {
		if !isCompletion(&statements[i]) {
			continue
		}
		if bestCompleted == nil || statementTime(&statements[i]).After(statementTime(bestCompleted)) {
			bestCompleted = &statements[i]
		}
	}
	if bestCompleted != nil {
		return bestCompleted
	}

	best := &statements[0]
	for i := 1; i < len(statements); i++ {
		if statementTime(&statements[i]).After(statementTime(best)) {
			best = &statements[i]
		}
	}
	return best
}

// attemptScore returns the numeric score of a statement: raw score when
// present, falling back to scaled.
func attemptScore(stmt *models.Statement) (float64, bool) {
	if stmt.Result == nil || stmt.Result.Score == nil {
		return 0, false
	}
	if stmt.Result.Score.Raw != nil {
		return *stmt.Result.Score.Raw, true
	}
	if stmt.Result.Score.Scaled != nil {
		return *stmt.Result.Score.Scaled, true
	}
	return 0, false
}

// isCompletion honors the explicit completion flag; when the flag is
// absent, a recognized completion verb counts.
func isCompletion(stmt *models.Statement) bool {
	if stmt.Result != nil && stmt.Result.Completion != nil {
		return *stmt.Result.Completion
	}
	_, ok := completionVerbs[stmt.Verb.ID]
	return ok
}

func statementTime(stmt *models.Statement) time.Time {
	if stmt.Timestamp == nil {
		return time.Time{}
	}
	return *stmt.Timestamp
}
