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

// Written in place of an empty expects line so that lines keep
// corresponding; it never exists, so the job always runs.
const NoExpectsPlaceholder = "a-nonexistent-placeholder-file"

// Shard is the part of a batch meant for one machine slot.
type Shard struct {
	Index       int
	Jobs        []Job
	CmdsFile    string
	ExpectsFile string
}

// Split deals jobs round-robin into n shards: job i goes to shard i mod n.
func Split(jobs []Job, n int) [][]Job {
	if n <= 0 {
		return nil
	}
	shards := make([][]Job, n)
	for i, j := range jobs {
		shards[i%n] = append(shards[i%n], j)
	}
	return shards
}

// ResetDir removes dir and recreates it empty.
func ResetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "removing %s", dir)
	}
	return errors.Wrapf(os.MkdirAll(dir, 0755), "creating %s", dir)
}

// ShardPaths names the files of shard i.
func ShardPaths(dir, prefix string, i int) (cmds, expects string) {
	base := filepath.Join(dir, fmt.Sprintf("%s_%09d", prefix, i))
	return base + ".cmds", base + ".expects"
}

// WriteShards splits jobs into n shards and writes each one as a pair of
// line-aligned files, <prefix>_NNNNNNNNN.cmds and .expects, in dir. Every
// shard gets its files, even an empty one.
func WriteShards(dir, prefix string, jobs []Job, n int) ([]Shard, error) {
	if n <= 0 {
		return nil, fleeterrors.NewConfigError("cannot split a batch over %d machines", n)
	}
	var shards []Shard
	for i, part := range Split(jobs, n) {
		cmds, expects := ShardPaths(dir, prefix, i)
		var cmdLines, expectLines []string
		for _, j := range part {
			cmdLines = append(cmdLines, j.Command)
			if len(j.Expects) == 0 {
				expectLines = append(expectLines, NoExpectsPlaceholder)
			} else {
				expectLines = append(expectLines, strings.Join(j.Expects, " "))
			}
		}
		if err := writeLines(cmds, cmdLines); err != nil {
			return nil, err
		}
		if err := writeLines(expects, expectLines); err != nil {
			return nil, err
		}
		shards = append(shards, Shard{Index: i, Jobs: part, CmdsFile: cmds, ExpectsFile: expects})
	}
	return shards, nil
}

// ReadShard reads back a pair of files written by WriteShards.
func ReadShard(cmdsFile, expectsFile string) ([]Job, error) {
	cmds, err := readLines(cmdsFile)
	if err != nil {
		return nil, err
	}
	expects, err := readLines(expectsFile)
	if err != nil {
		return nil, err
	}
	if len(cmds) != len(expects) {
		return nil, fleeterrors.NewConfigError("%s has %d commands but %s has %d lines",
			cmdsFile, len(cmds), expectsFile, len(expects))
	}
	jobs := make([]Job, 0, len(cmds))
	for i := range cmds {
		cmd := strings.TrimSpace(cmds[i])
		if cmd == "" {
			continue
		}
		job := Job{Name: fmt.Sprintf("%s:%d", filepath.Base(cmdsFile), i+1), Command: cmd}
		for _, f := range strings.Fields(expects[i]) {
			if f != NoExpectsPlaceholder {
				job.Expects = append(job.Expects, f)
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// WriteLines writes one line per element to path.
func WriteLines(path string, lines []string) error {
	return writeLines(path, lines)
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		w.WriteString(l)
		w.WriteString("\n")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}
