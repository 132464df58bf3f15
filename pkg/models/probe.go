package models

import (
	"fmt"
	"time"
)

// Status is the classification of a single login probe.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusLoginFailed Status = "login_failed"
	StatusUnreachable Status = "unreachable"
)

// Statuses lists every valid status in a stable order.
var Statuses = []Status{StatusSuccess, StatusLoginFailed, StatusUnreachable}

// ParseStatus converts a persisted token into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Failing reports whether the status should raise an alert on transition.
func (s Status) Failing() bool {
	return s == StatusLoginFailed || s == StatusUnreachable
}

// ProbeOutcome is the result of one end-to-end login probe.
type ProbeOutcome struct {
	Status     Status        `json:"status" example:"login_failed"`
	Detail     string        `json:"detail" example:"Status 403"`
	Latency    time.Duration `json:"latency"`
	HTTPStatus *int          `json:"http_status,omitempty" example:"403"`
}

// Code returns the HTTP status code, or 0 when the probe never got a response.
func (o ProbeOutcome) Code() int {
	if o.HTTPStatus == nil {
		return 0
	}
	return *o.HTTPStatus
}

// TokenSource records where an anti-forgery token was found.
type TokenSource string

const (
	TokenSourceCookie TokenSource = "cookie"
	TokenSourceHTML   TokenSource = "html"
)

// CSRFToken is an anti-forgery token scoped to a single login attempt.
type CSRFToken struct {
	Value  string
	Source TokenSource
	// Name is the cookie or form field the value came from.
	Name string
}
