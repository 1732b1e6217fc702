// Package validate implements the pre-load and post-load data checks. Each
// check lands in a Result with a severity: errors fail the run, warnings
// are advisories reported in the summary.
package validate

import "fmt"

// Status classifies one check outcome.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// Check is one named check outcome.
type Check struct {
	Name   string
	Status Status
	Detail string
}

// Result accumulates check outcomes for one target.
type Result struct {
	Target string
	Checks []Check
}

// NewResult starts an empty result for a target (a file or a table).
func NewResult(target string) *Result {
	return &Result{Target: target}
}

func (r *Result) Pass(name, format string, args ...interface{}) {
	r.Checks = append(r.Checks, Check{Name: name, Status: StatusPass, Detail: fmt.Sprintf(format, args...)})
}

func (r *Result) Warn(name, format string, args ...interface{}) {
	r.Checks = append(r.Checks, Check{Name: name, Status: StatusWarn, Detail: fmt.Sprintf(format, args...)})
}

func (r *Result) Fail(name, format string, args ...interface{}) {
	r.Checks = append(r.Checks, Check{Name: name, Status: StatusFail, Detail: fmt.Sprintf(format, args...)})
}

// Failed reports whether any check is a hard failure.
func (r *Result) Failed() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return true
		}
	}
	return false
}

// Warned reports whether any check produced a warning.
func (r *Result) Warned() bool {
	for _, c := range r.Checks {
		if c.Status == StatusWarn {
			return true
		}
	}
	return false
}

// Rows renders the checks as summary table rows.
func (r *Result) Rows() [][]string {
	rows := make([][]string, 0, len(r.Checks))
	for _, c := range r.Checks {
		rows = append(rows, []string{r.Target, c.Name, string(c.Status), c.Detail})
	}
	return rows
}
