package provider

import (
	"strconv"
	"time"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
)

// metricBase carries the static metadata shared by all providers.
type metricBase struct {
	id       string
	level    string
	required []string
	optional []string
	output   string
}

func (m metricBase) ID() string               { return m.id }
func (m metricBase) DashboardLevel() string   { return m.level }
func (m metricBase) RequiredParams() []string { return m.required }
func (m metricBase) OptionalParams() []string { return m.optional }
func (m metricBase) OutputType() string       { return m.output }

func (m metricBase) ValidateParams(params models.MetricParams) error {
	return validateParams(params, m.required)
}

func (m metricBase) result(value interface{}, metadata map[string]interface{}) models.MetricResult {
	return models.MetricResult{
		MetricID: m.id,
		Value:    value,
		Computed: time.Now().UTC(),
		Metadata: metadata,
	}
}

// DefaultRegistry returns a registry with all built-in metrics.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewElementScore(),
		NewTopicAverageScore(),
		NewCourseProgress(),
		NewAttemptCount(),
		NewLearningTime(),
	)
}

// ElementScore reports the best-attempt score for one learner+element.
type ElementScore struct{ metricBase }

func NewElementScore() *ElementScore {
	return &ElementScore{metricBase{
		id:       "element-score",
		level:    LevelElement,
		required: []string{"userId", "elementId"},
		optional: []string{"since", "until"},
		output:   OutputScalar,
	}}
}

func (p *ElementScore) Compute(params models.MetricParams, statements []models.Statement) (models.MetricResult, error) {
	best := SelectBestAttempt(statements)
	if best == nil {
		return p.result(nil, map[string]interface{}{"dataPoints": 0}), nil
	}
	metadata := map[string]interface{}{"dataPoints": len(statements), "statementId": best.ID}
	if score, ok := attemptScore(best); ok {
		return p.result(score, metadata), nil
	}
	return p.result(nil, metadata), nil
}

// TopicAverageScore averages the best-attempt scores across the elements
// of a topic. Elements without a scored attempt contribute neither to the
// sum nor the count.
type TopicAverageScore struct{ metricBase }

func NewTopicAverageScore() *TopicAverageScore {
	return &TopicAverageScore{metricBase{
		id:       "topic-average-score",
		level:    LevelTopic,
		required: []string{"userId", "topicId"},
		optional: []string{"since", "until"},
		output:   OutputScalar,
	}}
}

func (p *TopicAverageScore) Compute(params models.MetricParams, statements []models.Statement) (models.MetricResult, error) {
	var sum float64
	var count int
	for _, group := range groupByElement(statements) {
		best := SelectBestAttempt(group)
		if best == nil {
			continue
		}
		if score, ok := attemptScore(best); ok {
			sum += score
			count++
		}
	}
	metadata := map[string]interface{}{"elements": count, "dataPoints": len(statements)}
	if count == 0 {
		return p.result(nil, metadata), nil
	}
	return p.result(sum/float64(count), metadata), nil
}

// CourseProgress reports the percentage of distinct elements whose best
// attempt counts as completed.
type CourseProgress struct{ metricBase }

func NewCourseProgress() *CourseProgress {
	return &CourseProgress{metricBase{
		id:       "course-progress",
		level:    LevelCourse,
		required: []string{"userId", "courseId"},
		optional: []string{"since", "until"},
		output:   OutputScalar,
	}}
}

func (p *CourseProgress) Compute(params models.MetricParams, statements []models.Statement) (models.MetricResult, error) {
	groups := groupByElement(statements)
	completed := 0
	for _, group := range groups {
		best := SelectBestAttempt(group)
		if best != nil && isCompletion(best) {
			completed++
		}
	}
	metadata := map[string]interface{}{"elements": len(groups), "completed": completed}
	if len(groups) == 0 {
		return p.result(nil, metadata), nil
	}
	return p.result(float64(completed)/float64(len(groups))*100, metadata), nil
}

// AttemptCount counts the attempts recorded for one learner+element.
type AttemptCount struct{ metricBase }

func NewAttemptCount() *AttemptCount {
	return &AttemptCount{metricBase{
		id:       "attempt-count",
		level:    LevelElement,
		required: []string{"userId", "elementId"},
		optional: []string{"since", "until"},
		output:   OutputScalar,
	}}
}

func (p *AttemptCount) Compute(params models.MetricParams, statements []models.Statement) (models.MetricResult, error) {
	return p.result(len(statements), map[string]interface{}{"dataPoints": len(statements)}), nil
}

// LearningTime sums the reported attempt durations across a course, in
// seconds.
type LearningTime struct{ metricBase }

func NewLearningTime() *LearningTime {
	return &LearningTime{metricBase{
		id:       "learning-time",
		level:    LevelCourse,
		required: []string{"userId", "courseId"},
		optional: []string{"since", "until"},
		output:   OutputScalar,
	}}
}

func (p *LearningTime) Compute(params models.MetricParams, statements []models.Statement) (models.MetricResult, error) {
	var total time.Duration
	counted := 0
	for i := range statements {
		if statements[i].Result == nil || statements[i].Result.Duration == "" {
			continue
		}
		d, ok := parseISODuration(statements[i].Result.Duration)
		if !ok {
			continue
		}
		total += d
		counted++
	}
	return p.result(total.Seconds(), map[string]interface{}{"dataPoints": counted}), nil
}

// groupByElement buckets statements by their object id without mutating
// the input slice.
func groupByElement(statements []models.Statement) map[string][]models.Statement {
	groups := make(map[string][]models.Statement)
	for _, stmt := range statements {
		groups[stmt.Object.ID] = append(groups[stmt.Object.ID], stmt)
	}
	return groups
}

// parseISODuration parses the ISO-8601 duration subset xAPI results use
// (PnDTnHnMnS, fractional seconds allowed). Malformed durations are
// skipped, not errors.
func parseISODuration(raw string) (time.Duration, bool) {
	if len(raw) < 2 || raw[0] != 'P' {
		return 0, false
	}
	rest := raw[1:]
	inTime := false
	components := 0
	var total time.Duration

	for len(rest) > 0 {
		if rest[0] == 'T' {
			inTime = true
			rest = rest[1:]
			continue
		}
		i := 0
		for i < len(rest) && (rest[i] == '.' || (rest[i] >= '0' && rest[i] <= '9')) {
			i++
		}
		if i == 0 || i >= len(rest) {
			return 0, false
		}
		value, err := strconv.ParseFloat(rest[:i], 64)
		if err != nil {
			return 0, false
		}
		unit := rest[i]
		rest = rest[i+1:]

		switch {
		case !inTime && unit == 'D':
			total += time.Duration(value * 24 * float64(time.Hour))
		case !inTime && unit == 'W':
			total += time.Duration(value * 7 * 24 * float64(time.Hour))
		case inTime && unit == 'H':
			total += time.Duration(value * float64(time.Hour))
		case inTime && unit == 'M':
			total += time.Duration(value * float64(time.Minute))
		case inTime && unit == 'S':
			total += time.Duration(value * float64(time.Second))
		case !inTime && (unit == 'Y' || unit == 'M'):
			// Calendar years/months are ambiguous; xAPI durations in
			// practice stay within days. Reject rather than guess.
			return 0, false
		default:
			return 0, false
		}
		components++
	}

	return total, components > 0
}
