package testutil

import (
	"net/http"
	"net/http/httptest"
	"time"
)

// BaseTime is the fixed instant tests anchor their request clocks on.
var BaseTime = time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)

// At returns BaseTime shifted by d.
func At(d time.Duration) time.Time {
	return BaseTime.Add(d)
}

// NewRequest builds a request whose transport peer is ip. Extra headers are
// given as key/value pairs.
func NewRequest(method, target, ip string, headers ...string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if ip != "" {
		req.RemoteAddr = ip + ":41234"
	} else {
		req.RemoteAddr = ""
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return req
}
