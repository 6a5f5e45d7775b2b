package jobs

import (
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DirSource turns a tree of scripts into jobs: every regular file under
// <Root>/<category>/ becomes "<Runner> <path>". Categories and scripts are
// taken in lexical order.
type DirSource struct {
	Root   string
	Runner string
	// Only files with this extension (e.g. ".m", ".py") are taken when set.
	Ext string
	// Output paths for a (category, script) pair, for the idempotency check.
	// Optional.
	Expects func(category, script string) []string
}

func (s *DirSource) Jobs() ([]Job, error) {
	categories, err := ioutil.ReadDir(s.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", s.Root)
	}
	var jobs []Job
	for _, c := range categories {
		if !c.IsDir() || strings.HasPrefix(c.Name(), ".") {
			continue
		}
		dir := filepath.Join(s.Root, c.Name())
		scripts, err := ioutil.ReadDir(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", dir)
		}
		for _, sc := range scripts {
			if !sc.Mode().IsRegular() || strings.HasPrefix(sc.Name(), ".") {
				continue
			}
			if s.Ext != "" && filepath.Ext(sc.Name()) != s.Ext {
				continue
			}
			path := filepath.Join(dir, sc.Name())
			job := Job{Name: c.Name() + "/" + sc.Name(), Command: strings.TrimSpace(s.Runner + " " + path)}
			if s.Expects != nil {
				job.Expects = s.Expects(c.Name(), sc.Name())
			}
			jobs = append(jobs, job)
		}
	}
	log.Debugf("found %d scripts under %s", len(jobs), s.Root)
	return jobs, nil
}
