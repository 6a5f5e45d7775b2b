package jobs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	fleeterrors "github.com/vislab/fleet/common/errors"
)

// ParamsSource builds one job per line of a params file: "<Prefix> <line>".
// An optional expects file lists, on the matching line, the space-separated
// outputs of that job. Lines are matched by position: a blank params line
// yields no job, a blank expects line yields a job without outputs.
type ParamsSource struct {
	Prefix      string
	ParamsFile  string
	ExpectsFile string
	// Relative expected paths are resolved against this directory.
	Dir string
}

func (s *ParamsSource) Jobs() ([]Job, error) {
	params, err := readLines(s.ParamsFile)
	if err != nil {
		return nil, err
	}
	var expects []string
	if s.ExpectsFile != "" {
		if expects, err = readLines(s.ExpectsFile); err != nil {
			return nil, err
		}
		// Trailing blank lines on either side carry nothing.
		if n := contentLen(params); len(expects) < n || contentLen(expects) > n {
			return nil, fleeterrors.NewConfigError("%s has %d lines but %s has %d; they must correspond",
				s.ExpectsFile, contentLen(expects), s.ParamsFile, n)
		}
	}

	jobs := make([]Job, 0, len(params))
	for i, p := range params {
		cmd := strings.TrimSpace(p)
		if cmd == "" {
			continue
		}
		if s.Prefix != "" {
			cmd = strings.TrimSpace(s.Prefix + " " + cmd)
		}
		job := Job{Name: fmt.Sprintf("%s:%d", filepath.Base(s.ParamsFile), i+1), Command: cmd}
		if expects != nil {
			for _, f := range strings.Fields(expects[i]) {
				if s.Dir != "" && !filepath.IsAbs(f) {
					f = filepath.Join(s.Dir, f)
				}
				job.Expects = append(job.Expects, f)
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// readLines returns the lines of a file in order, blank ones included.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return lines, nil
}

// contentLen is the number of lines up to the last non-blank one.
func contentLen(lines []string) int {
	n := len(lines)
	for n > 0 && strings.TrimSpace(lines[n-1]) == "" {
		n--
	}
	return n
}
