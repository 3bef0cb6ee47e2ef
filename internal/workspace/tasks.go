package workspace

import (
	"fmt"
	"regexp"
	"strings"
)

var taskLineRE = regexp.MustCompile(`^([-*] \[)([ xX])(\] .*)$`)

// ToggleTask flips exactly the n-th line (1-indexed, counting only lines
// matching ^[-*] \[[ xX]\] .*$) of a tasks.md-shaped document to checked or
// unchecked, preserving every other byte. Rewrites exactly one matched
// line at a time, leaving the rest of the file untouched.
func ToggleTask(content string, n int, checked bool) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("task index must be >= 1, got %d", n)
	}

	lines := strings.Split(content, "\n")
	matched := 0
	for i, line := range lines {
		if !taskLineRE.MatchString(line) {
			continue
		}
		matched++
		if matched != n {
			continue
		}
		mark := " "
		if checked {
			mark = "x"
		}
		lines[i] = taskLineRE.ReplaceAllString(line, "${1}"+mark+"${3}")
		return strings.Join(lines, "\n"), nil
	}
	return "", fmt.Errorf("task index %d out of range (found %d task lines)", n, matched)
}

// TaskProgress summarizes checkbox completion in a tasks.md-shaped document.
type TaskProgress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// CountTaskProgress reports {total,completed} over every line matching the
// task checkbox pattern. An empty document yields {0,0}.
func CountTaskProgress(content string) TaskProgress {
	var progress TaskProgress
	for _, line := range strings.Split(content, "\n") {
		m := taskLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		progress.Total++
		if m[2] == "x" || m[2] == "X" {
			progress.Completed++
		}
	}
	return progress
}
