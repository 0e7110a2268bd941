// Package health aggregates component health for the gateway /health route.
package health

import (
	"regexp"
	"time"
)

// State is the health state of one component.
type State string

// Health states, ordered from best to worst.
const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

var (
	urlPattern        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	ipPattern         = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d{2,5})?\b`)
	pathPattern       = regexp.MustCompile(`(?:^|\s)/[a-zA-Z0-9/_.-]+`)
	credentialPattern = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the reported health of a component or of the whole system.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	State       State     `json:"status"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// New builds a status stamped with the current time. Messages are sanitized.
func New(component string, state State, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		State:     state,
		Message:   Sanitize(message),
		Timestamp: time.Now(),
	}
}

// Healthy is shorthand for New(component, StateHealthy, message).
func Healthy(component, message string) Status {
	return New(component, StateHealthy, message)
}

// Unhealthy is shorthand for New(component, StateUnhealthy, message).
func Unhealthy(component, message string) Status {
	return New(component, StateUnhealthy, message)
}

// Degraded is shorthand for New(component, StateDegraded, message).
func Degraded(component, message string) Status {
	return New(component, StateDegraded, message)
}

// FromError reports err as unhealthy, or healthy when err is nil.
func FromError(component string, err error) Status {
	if err == nil {
		return Healthy(component, "")
	}
	return Unhealthy(component, err.Error())
}

// Sanitize strips URLs, addresses, absolute paths and credentials from a
// message before it leaves the process.
func Sanitize(message string) string {
	if message == "" {
		return ""
	}
	out := urlPattern.ReplaceAllString(message, "[URL]")
	out = ipPattern.ReplaceAllString(out, "[IP]")
	out = pathPattern.ReplaceAllStringFunc(out, func(m string) string {
		if m[0] == '/' {
			return "[PATH]"
		}
		return m[:1] + "[PATH]"
	})
	return credentialPattern.ReplaceAllString(out, "${1}=[REDACTED]")
}

// Aggregate combines sub-statuses: any unhealthy makes the whole unhealthy,
// otherwise any degraded makes it degraded.
func Aggregate(component string, subs []Status) Status {
	worst := StateHealthy
	for _, s := range subs {
		switch s.State {
		case StateUnhealthy:
			worst = StateUnhealthy
		case StateDegraded:
			if worst == StateHealthy {
				worst = StateDegraded
			}
		}
	}

	var message string
	switch worst {
	case StateUnhealthy:
		message = "one or more components are unhealthy"
	case StateDegraded:
		message = "one or more components are degraded"
	default:
		message = "all components healthy"
	}

	status := New(component, worst, message)
	if len(subs) > 0 {
		status.SubStatuses = append([]Status(nil), subs...)
	}
	return status
}
