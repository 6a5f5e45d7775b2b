package execclient

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vislab/fleet/common/stats"
	"github.com/vislab/fleet/jobs"
	"github.com/vislab/fleet/runner/execer"
	"github.com/vislab/fleet/runner/execer/fake"
	osexecer "github.com/vislab/fleet/runner/execer/os"
)

// writeShard writes a one-shard batch and returns its file names.
func writeShard(t *testing.T, dir string, js []jobs.Job) (string, string) {
	shards, err := jobs.WriteShards(dir, "batch", js, 1)
	require.NoError(t, err)
	return shards[0].CmdsFile, shards[0].ExpectsFile
}

func readLog(t *testing.T, cmds string) string {
	b, err := ioutil.ReadFile(LogPath(cmds))
	require.NoError(t, err)
	return string(b)
}

func TestRunSkipsDoneAndLogsFailures(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a"), filepath.Join(dir, "b")
	require.NoError(t, ioutil.WriteFile(b, nil, 0644))
	cmds, expects := writeShard(t, dir, []jobs.Job{
		{Command: "touch " + a, Expects: []string{a}},
		{Command: "exit 3"},
		{Command: "touch " + b, Expects: []string{b}},
	})

	stat := stats.DefaultStatsReceiver()
	progress := &bytes.Buffer{}
	c := New(Options{Threads: 2, Hostname: "vision07", Progress: progress}, osexecer.NewExecer(), stat)
	res, err := c.Run(context.Background(), cmds, expects)
	require.NoError(t, err)

	assert.Equal(t, &Result{Total: 3, Skipped: 1, Ran: 2, Failed: 1}, res)
	_, err = os.Stat(a)
	assert.NoError(t, err)
	assert.Equal(t, "Host: vision07\n\nexit 3: 3\n", readLog(t, cmds))
	assert.Contains(t, progress.String(), "vision07: 2/2")
	assert.EqualValues(t, 1, stat.Counter("exec", stats.ExecFailedCounter).Count())
	assert.EqualValues(t, 1, stat.Counter("exec", stats.ExecDoneCounter).Count())
}

func TestDryRunExecutesNothing(t *testing.T) {
	dir := t.TempDir()
	cmds, expects := writeShard(t, dir, []jobs.Job{{Command: "false"}, {Command: "true"}})
	ex := fake.NewRecordingExecer(nil)
	c := New(Options{DryRun: true, Hostname: "h"}, ex, nil)

	res, err := c.Run(context.Background(), cmds, expects)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ran)
	assert.Empty(t, ex.Commands())
	assert.Equal(t, "Host: h\n\n", readLog(t, cmds))
}

func TestCapLimitsCommands(t *testing.T) {
	dir := t.TempDir()
	cmds, expects := writeShard(t, dir, []jobs.Job{{Command: "one"}, {Command: "two"}, {Command: "three"}})
	ex := fake.NewRecordingExecer(nil)
	c := New(Options{Cap: 2, Threads: 1, Hostname: "h", Progress: ioutil.Discard}, ex, nil)

	res, err := c.Run(context.Background(), cmds, expects)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"sh -c one", "sh -c two"}, ex.Argvs())
}

func TestProgressEvery(t *testing.T) {
	dir := t.TempDir()
	var js []jobs.Job
	for i := 0; i < 7; i++ {
		js = append(js, jobs.Job{Command: "true"})
	}
	cmds, expects := writeShard(t, dir, js)
	progress := &bytes.Buffer{}
	c := New(Options{Every: 3, Hostname: "h", Progress: progress}, fake.NewRecordingExecer(nil), nil)

	_, err := c.Run(context.Background(), cmds, expects)
	require.NoError(t, err)
	assert.Equal(t, []string{"h: 3/7", "h: 6/7", "h: 7/7"}, strings.Split(strings.TrimSpace(progress.String()), "\n"))
}

func TestUnstartableCommandIsLogged(t *testing.T) {
	dir := t.TempDir()
	cmds, expects := writeShard(t, dir, []jobs.Job{{Command: "boom"}})
	ex := fake.NewRecordingExecer(func(argv []string) (string, execer.ProcessStatus) {
		return "", execer.ProcessStatus{State: execer.FAILED, Error: "no sh"}
	})
	c := New(Options{Hostname: "h", Progress: ioutil.Discard}, ex, nil)

	res, err := c.Run(context.Background(), cmds, expects)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "Host: h\n\nboom: -1\n", readLog(t, cmds))
}

func TestMismatchedShardFiles(t *testing.T) {
	dir := t.TempDir()
	cmds, expects := filepath.Join(dir, "x.cmds"), filepath.Join(dir, "x.expects")
	require.NoError(t, jobs.WriteLines(cmds, []string{"a", "b"}))
	require.NoError(t, jobs.WriteLines(expects, []string{"a.out"}))
	_, err := New(Options{}, fake.NewRecordingExecer(nil), nil).Run(context.Background(), cmds, expects)
	assert.Error(t, err)
}

func TestLogPath(t *testing.T) {
	assert.Equal(t, "/p/b_000000001.cmds.log", LogPath("/p/b_000000001.cmds"))
	assert.Equal(t, "/p/list.cmds.log", LogPath("/p/list"))
}
