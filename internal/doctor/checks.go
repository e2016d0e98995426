// Package doctor diagnoses the local environment: the helper binaries okssh
// shells out to and the YAML server list.
package doctor

import (
	"fmt"
	"sync"

	"github.com/okssh/okssh/internal/util"
)

// CheckStatus represents the result status of a check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns a human-readable status string.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// CheckResult contains the outcome of running a check.
type CheckResult struct {
	Name       string
	Status     CheckStatus
	Message    string
	Suggestion string
}

// Check is one diagnostic.
type Check interface {
	// Name returns the check's identifier.
	Name() string

	// Category groups checks in the report, e.g. "TOOLS" or "CONFIG".
	Category() string

	// Run executes the check.
	Run() CheckResult
}

// RunAll executes checks in order.
func RunAll(checks []Check) []CheckResult {
	results := make([]CheckResult, len(checks))
	for i, check := range checks {
		results[i] = check.Run()
	}
	return results
}

// RunAllParallel executes all checks concurrently. Results keep the order of
// checks.
func RunAllParallel(checks []Check) []CheckResult {
	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup

	for i, check := range checks {
		wg.Add(1)
		go func(idx int, c Check) {
			defer wg.Done()
			results[idx] = c.Run()
		}(i, check)
	}

	wg.Wait()
	return results
}

// Categories returns the distinct categories of checks in first-seen order.
func Categories(checks []Check) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range checks {
		if !seen[c.Category()] {
			seen[c.Category()] = true
			out = append(out, c.Category())
		}
	}
	return out
}

// CountByStatus counts results by status.
func CountByStatus(results []CheckResult) map[CheckStatus]int {
	counts := make(map[CheckStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}

// HasFailures returns true if any result has a fail status.
func HasFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

// Summary returns a one-line summary of the results.
func Summary(results []CheckResult) string {
	counts := CountByStatus(results)
	total := counts[StatusWarn] + counts[StatusFail]
	if total == 0 {
		return "Everything looks good"
	}
	return fmt.Sprintf("%d %s found", total, util.Pluralize(total, "issue", "issues"))
}
