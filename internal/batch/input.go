package batch

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadJobs reads one domain per line. Blank lines and lines starting with #
// are skipped; trailing comments are stripped.
func ReadJobs(r io.Reader) ([]Job, error) {
	var jobs []Job
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		jobs = append(jobs, Job{Domain: text, Line: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read domains: %w", err)
	}
	return jobs, nil
}
