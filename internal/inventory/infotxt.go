package inventory

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
)

// ipPattern matches IPv4 dotted-quad addresses anywhere on a line, used
// to locate and replace the IP recorded for a node in INFO.txt's free-form
// "n11: 203.0.113.4" style summary lines.
var ipPattern = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)

// InfoFile is the line-oriented content of a deployment's INFO.txt, kept
// as raw lines since it is a human-facing summary rather than a
// machine grammar.
type InfoFile struct {
	lines []string
}

// ParseInfoFile reads an INFO.txt document.
func ParseInfoFile(r io.Reader) (*InfoFile, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, orcherrors.Internal("failed to read INFO.txt", err)
	}
	return &InfoFile{lines: lines}, nil
}

// LoadInfoFile parses the INFO.txt file at path.
func LoadInfoFile(path string) (*InfoFile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherrors.Fatal("INFO.txt is missing")
		}
		return nil, orcherrors.Internal("failed to read INFO.txt", err)
	}
	defer f.Close()
	return ParseInfoFile(f)
}

// ReplaceNodeIP rewrites the first IPv4 address found on any line
// mentioning nodeName with ip. Returns true if a line was changed.
func (info *InfoFile) ReplaceNodeIP(nodeName, ip string) bool {
	changed := false
	for i, line := range info.lines {
		if !strings.Contains(line, nodeName) {
			continue
		}
		if ipPattern.MatchString(line) {
			info.lines[i] = ipPattern.ReplaceAllString(line, ip)
			changed = true
		}
	}
	return changed
}

// Render returns the full INFO.txt text.
func (info *InfoFile) Render() string {
	return strings.Join(info.lines, "\n") + "\n"
}

// Save writes the file back to path with mode 0640.
func (info *InfoFile) Save(path string) error {
	if err := os.WriteFile(path, []byte(info.Render()), 0o640); err != nil {
		return orcherrors.Internal("failed to write INFO.txt", err)
	}
	return nil
}
