package models

import (
	"fmt"
	"strings"
)

// Check is one named validation outcome.
type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Report collects the checks of a validation gate.
type Report struct {
	Checks []Check `json:"checks"`
}

// Add records a check.
func (r *Report) Add(name string, passed bool, message string, value any) {
	r.Checks = append(r.Checks, Check{Name: name, Passed: passed, Message: message, Value: fmt.Sprint(value)})
}

// Passed reports whether every check passed.
func (r Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failures lists "name: message (value)" for every failed check.
func (r Report) Failures() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, fmt.Sprintf("%s: %s (%s)", c.Name, c.Message, c.Value))
		}
	}
	return out
}

// Summary is a one-line pass count.
func (r Report) Summary() string {
	n := 0
	for _, c := range r.Checks {
		if c.Passed {
			n++
		}
	}
	status := "PASSED"
	if n != len(r.Checks) {
		status = "FAILED"
	}
	return fmt.Sprintf("%s: %d/%d checks", status, n, len(r.Checks))
}

// Error joins the failures, or returns "" when everything passed.
func (r Report) Error() string {
	return strings.Join(r.Failures(), "; ")
}
