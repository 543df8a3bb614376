// Package policy holds the read-only table of endpoint limits.
package policy

import (
	"maps"
	"slices"

	"boxoffice/internal/ratelimit/models"
	dErrors "boxoffice/pkg/domain-errors"
)

// Registry maps endpoint types to policies. It is immutable after construction
// and safe for concurrent use.
type Registry struct {
	policies map[models.EndpointType]models.EndpointPolicy
	general  models.EndpointPolicy
	types    []models.EndpointType
}

// NewRegistry copies policies into a registry. A general policy is required
// because it is the fallback for unknown endpoint types.
func NewRegistry(policies map[models.EndpointType]models.EndpointPolicy) (*Registry, error) {
	general, ok := policies[models.EndpointGeneral]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "policy registry requires a general policy")
	}
	copied := maps.Clone(policies)
	return &Registry{
		policies: copied,
		general:  general,
		types:    slices.Sorted(maps.Keys(copied)),
	}, nil
}

// GetPolicy returns the policy for endpointType, or the general policy when
// the type is unknown. Misconfigured call sites are limited, never crashed.
func (r *Registry) GetPolicy(endpointType models.EndpointType) models.EndpointPolicy {
	if p, ok := r.policies[endpointType]; ok {
		return p
	}
	return r.general
}

// Lookup returns the policy for endpointType and whether it is registered.
func (r *Registry) Lookup(endpointType models.EndpointType) (models.EndpointPolicy, bool) {
	p, ok := r.policies[endpointType]
	return p, ok
}

// ListEndpointTypes returns the registered endpoint types in sorted order.
func (r *Registry) ListEndpointTypes() []models.EndpointType {
	return slices.Clone(r.types)
}

// Policies returns every registered policy ordered by endpoint type.
func (r *Registry) Policies() []models.EndpointPolicy {
	out := make([]models.EndpointPolicy, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, r.policies[t])
	}
	return out
}
