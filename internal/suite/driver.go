package suite

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const diagnosticTail = 4096

// Driver turns a finished case process into a verdict.
type Driver interface {
	Evaluate(exitCode int, stdout, stderr []byte) (pass bool, diagnostic string)
}

// DriverFor returns the driver registered under name.
func DriverFor(name string) Driver {
	if name == DriverGoTest {
		return goTestDriver{}
	}
	return execDriver{}
}

// execDriver passes a case iff it exits 0.
type execDriver struct{}

func (execDriver) Evaluate(exitCode int, stdout, stderr []byte) (bool, string) {
	if exitCode == 0 {
		return true, ""
	}
	output := stderr
	if len(bytes.TrimSpace(output)) == 0 {
		output = stdout
	}
	return false, withTail(fmt.Sprintf("exit status %d", exitCode), output)
}

// TestEvent is one line of `go test -json` output.
type TestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// goTestDriver reads a `go test -json` stream. A case passes iff no test and
// no package failed and the process exited 0.
type goTestDriver struct{}

func (goTestDriver) Evaluate(exitCode int, stdout, stderr []byte) (bool, string) {
	summary := ParseTestEvents(stdout)
	if exitCode == 0 && len(summary.FailedTests) == 0 && len(summary.FailedPackages) == 0 {
		return true, ""
	}

	var parts []string
	if len(summary.FailedTests) > 0 {
		parts = append(parts, "failed tests: "+strings.Join(summary.FailedTests, ", "))
	}
	if len(summary.FailedPackages) > 0 {
		parts = append(parts, "failed packages: "+strings.Join(summary.FailedPackages, ", "))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("exit status %d", exitCode))
		return false, withTail(strings.Join(parts, "; "), append(summary.Output, stderr...))
	}
	return false, strings.Join(parts, "; ")
}

// TestSummary aggregates a `go test -json` stream.
type TestSummary struct {
	Passed, Failed, Skipped int
	FailedTests             []string
	FailedPackages          []string
	// Output collects non-JSON lines, typically build errors.
	Output []byte
}

// ParseTestEvents aggregates test events. Malformed lines are kept as plain
// output.
func ParseTestEvents(data []byte) TestSummary {
	var s TestSummary
	var plain bytes.Buffer

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event TestEvent
		if err := json.Unmarshal(line, &event); err != nil || event.Action == "" {
			plain.Write(line)
			plain.WriteByte('\n')
			continue
		}

		switch event.Action {
		case "pass":
			if event.Test != "" {
				s.Passed++
			}
		case "fail":
			if event.Test != "" {
				s.Failed++
				s.FailedTests = append(s.FailedTests, qualified(event))
			} else {
				s.FailedPackages = append(s.FailedPackages, event.Package)
			}
		case "skip":
			if event.Test != "" {
				s.Skipped++
			}
		}
	}

	sort.Strings(s.FailedTests)
	sort.Strings(s.FailedPackages)
	s.Output = plain.Bytes()
	return s
}

func qualified(e TestEvent) string {
	if e.Package == "" {
		return e.Test
	}
	return e.Package + "." + e.Test
}

func withTail(msg string, output []byte) string {
	output = bytes.TrimSpace(output)
	if len(output) == 0 {
		return msg
	}
	if len(output) > diagnosticTail {
		output = output[len(output)-diagnosticTail:]
	}
	return msg + "\n" + string(output)
}
