package models

import "time"

// Statement is a single xAPI activity record as returned by a Learning
// Record Store. InstanceID is stamped by the client on ingestion and is
// authoritative regardless of identity hints inside the statement itself.
// Statements are never mutated after tagging.
type Statement struct {
	ID         string            `json:"id,omitempty"`
	Actor      Actor             `json:"actor"`
	Verb       Verb              `json:"verb"`
	Object     Object            `json:"object"`
	Result     *Result           `json:"result,omitempty"`
	Context    *StatementContext `json:"context,omitempty"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	InstanceID string            `json:"instanceId,omitempty"`
}

// Actor identifies the learner the statement is about.
type Actor struct {
	Name       string   `json:"name,omitempty"`
	Mbox       string   `json:"mbox,omitempty"`
	Account    *Account `json:"account,omitempty"`
	ObjectType string   `json:"objectType,omitempty"`
}

// Account is an actor identity scoped to a home page.
type Account struct {
	HomePage string `json:"homePage,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Verb describes the action performed.
type Verb struct {
	ID      string            `json:"id"`
	Display map[string]string `json:"display,omitempty"`
}

// Object is the activity the statement refers to.
type Object struct {
	ID         string             `json:"id"`
	ObjectType string             `json:"objectType,omitempty"`
	Definition *ActivityDefinition `json:"definition,omitempty"`
}

// ActivityDefinition carries activity metadata.
type ActivityDefinition struct {
	Name        map[string]string `json:"name,omitempty"`
	Description map[string]string `json:"description,omitempty"`
	Type        string            `json:"type,omitempty"`
}

// Result captures the outcome of an attempt.
type Result struct {
	Score      *Score `json:"score,omitempty"`
	Completion *bool  `json:"completion,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	Duration   string `json:"duration,omitempty"`
}

// Score holds raw and normalised score values.
type Score struct {
	Raw    *float64 `json:"raw,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Scaled *float64 `json:"scaled,omitempty"`
}

// StatementContext carries grouping and platform hints. Platform may name
// the store the statement claims to come from; it is advisory only.
type StatementContext struct {
	ContextActivities *ContextActivities     `json:"contextActivities,omitempty"`
	Extensions        map[string]interface{} `json:"extensions,omitempty"`
	Platform          string                 `json:"platform,omitempty"`
}

// ContextActivities links a statement to parent and grouping activities.
type ContextActivities struct {
	Parent   []Object `json:"parent,omitempty"`
	Grouping []Object `json:"grouping,omitempty"`
}

// QueryFilters are the parameters of one statement-store query. Immutable
// per request.
type QueryFilters struct {
	Agent             string     `json:"agent,omitempty"`
	Verb              string     `json:"verb,omitempty"`
	Activity          string     `json:"activity,omitempty"`
	Since             *time.Time `json:"since,omitempty"`
	Until             *time.Time `json:"until,omitempty"`
	Limit             int        `json:"limit,omitempty"`
	RelatedActivities bool       `json:"related_activities,omitempty"`
}
