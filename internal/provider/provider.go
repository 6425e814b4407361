// Package provider defines the metric computation contract: each metric is
// a stateless provider with static metadata, parameter validation, and a
// pure Compute over statements already filtered by the caller.
package provider

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
	appErrors "github.com/noah-isme/lrs-metrics-api/pkg/errors"
)

// Dashboard levels a metric can serve.
const (
	LevelCourse  = "course"
	LevelTopic   = "topic"
	LevelElement = "element"
)

// Output types.
const (
	OutputScalar = "scalar"
	OutputArray  = "array"
)

// Provider is implemented by every metric. Compute must be pure: no I/O,
// no mutation of params or statements. Scope and time-window filtering of
// the supplied statements is the caller's responsibility.
type Provider interface {
	ID() string
	DashboardLevel() string
	RequiredParams() []string
	OptionalParams() []string
	OutputType() string
	ValidateParams(params models.MetricParams) error
	Compute(params models.MetricParams, statements []models.Statement) (models.MetricResult, error)
}

// Registry maps metric ids to providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.ID()] = p
	}
	return r
}

// Register adds a provider, replacing any previous one with the same id.
func (r *Registry) Register(p Provider) {
	r.providers[p.ID()] = p
}

// Get looks up a provider by id.
func (r *Registry) Get(id string) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown metric %q", id))
	}
	return p, nil
}

// List returns catalog entries for all registered providers, sorted by id.
func (r *Registry) List() []models.ProviderInfo {
	infos := make([]models.ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		infos = append(infos, models.ProviderInfo{
			ID:             p.ID(),
			DashboardLevel: p.DashboardLevel(),
			RequiredParams: p.RequiredParams(),
			OptionalParams: p.OptionalParams(),
			OutputType:     p.OutputType(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// validateParams enforces presence of required keys and the shared
// since/until window rule. Metric providers call it from ValidateParams.
func validateParams(params models.MetricParams, required []string) error {
	for _, key := range required {
		v, ok := params[key]
		if !ok || v == nil || v == "" {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("missing required parameter %q", key))
		}
	}

	since, sinceErr := paramTime(params, "since")
	until, untilErr := paramTime(params, "until")
	if sinceErr != nil {
		return sinceErr
	}
	if untilErr != nil {
		return untilErr
	}
	if since != nil && until != nil && since.After(*until) {
		return appErrors.Clone(appErrors.ErrValidation, "since must not be after until")
	}

	return nil
}

// paramString extracts a string parameter, empty when absent.
func paramString(params models.MetricParams, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// paramTime parses an RFC 3339 time parameter.
func paramTime(params models.MetricParams, key string) (*time.Time, error) {
	raw := paramString(params, key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("parameter %q must be an RFC 3339 timestamp", key))
	}
	return &t, nil
}
