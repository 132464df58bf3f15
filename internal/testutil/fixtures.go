// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"strconv"
	"time"

	"github.com/HerbHall/loginwatch/pkg/models"
)

// NewOutcome returns a successful ProbeOutcome with sensible defaults,
// suitable for test fixtures. Override fields with the With* options.
func NewOutcome(opts ...func(*models.ProbeOutcome)) models.ProbeOutcome {
	code := 200
	o := models.ProbeOutcome{
		Status:     models.StatusSuccess,
		Detail:     "Login OK",
		Latency:    120 * time.Millisecond,
		HTTPStatus: &code,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Failed returns a login_failed outcome with the given HTTP status.
func Failed(code int, opts ...func(*models.ProbeOutcome)) models.ProbeOutcome {
	base := []func(*models.ProbeOutcome){
		WithStatus(models.StatusLoginFailed), WithHTTPStatus(code), WithDetail("Status " + strconv.Itoa(code)),
	}
	return NewOutcome(append(base, opts...)...)
}

// Unreachable returns an unreachable outcome with no HTTP status.
func Unreachable(detail string, opts ...func(*models.ProbeOutcome)) models.ProbeOutcome {
	base := []func(*models.ProbeOutcome){
		WithStatus(models.StatusUnreachable), WithDetail(detail), func(o *models.ProbeOutcome) { o.HTTPStatus = nil },
	}
	return NewOutcome(append(base, opts...)...)
}

// WithStatus sets the outcome status.
func WithStatus(s models.Status) func(*models.ProbeOutcome) {
	return func(o *models.ProbeOutcome) { o.Status = s }
}

// WithHTTPStatus sets the HTTP status code.
func WithHTTPStatus(code int) func(*models.ProbeOutcome) {
	return func(o *models.ProbeOutcome) { o.HTTPStatus = &code }
}

// WithDetail sets the detail text.
func WithDetail(detail string) func(*models.ProbeOutcome) {
	return func(o *models.ProbeOutcome) { o.Detail = detail }
}

// WithLatency sets the measured latency.
func WithLatency(d time.Duration) func(*models.ProbeOutcome) {
	return func(o *models.ProbeOutcome) { o.Latency = d }
}
