package models

import "time"

// StatusResponse is the body of the diagnostics endpoint. ID inside Client,
// per-endpoint usage, Analytics and Fleet are only populated in permissive
// environments.
type StatusResponse struct {
	Timestamp time.Time          `json:"timestamp"`
	Client    ClientSummary      `json:"client"`
	Endpoints []EndpointSummary  `json:"endpoints"`
	Analytics *AnalyticsSnapshot `json:"analytics,omitempty"`
	// Fleet holds the shared per-minute decision counts, keyed
	// "<endpoint>:<outcome>".
	Fleet map[string]int64 `json:"fleet,omitempty"`
}

// ClientSummary describes the caller without identifying it.
type ClientSummary struct {
	ID       string `json:"id,omitempty"`
	IPPrefix string `json:"ipPrefix"`
	Browser  string `json:"browser,omitempty"`
	OS       string `json:"os,omitempty"`
	Mobile   bool   `json:"mobile"`
	Bot      bool   `json:"bot"`
}

// EndpointSummary is the public view of one EndpointPolicy.
type EndpointSummary struct {
	EndpointType     EndpointType     `json:"endpointType"`
	IdentityStrategy IdentityStrategy `json:"identityStrategy"`
	Limit            int              `json:"limit"`
	WindowMs         int64            `json:"windowMs"`
	// Used is the caller's count in its live window; nil when unknown.
	Used *int64 `json:"used,omitempty"`
}

// NewEndpointSummary converts a policy for display.
func NewEndpointSummary(p EndpointPolicy) EndpointSummary {
	return EndpointSummary{
		EndpointType:     p.EndpointType,
		IdentityStrategy: p.Strategy,
		Limit:            p.Limit,
		WindowMs:         p.WindowMs(),
	}
}
