package cli

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vislab/fleet/cloud/cluster"
	fleeterrors "github.com/vislab/fleet/common/errors"
	"github.com/vislab/fleet/jobs"
	"github.com/vislab/fleet/remote"
)

// fakeTransport answers probes from a down list and records everything else.
type fakeTransport struct {
	mu   sync.Mutex
	down map[string]bool
	runs []string
}

func (f *fakeTransport) Run(ctx context.Context, m cluster.Machine, command string, background bool) (int, error) {
	if command == remote.NoOp && !background {
		if f.down[m.Name] {
			return 255, nil
		}
		return 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, m.Name+" "+command)
	return 0, nil
}

func (f *fakeTransport) Output(ctx context.Context, m cluster.Machine, command string) ([]byte, int, error) {
	return nil, 0, nil
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := append([]string(nil), f.runs...)
	sort.Strings(r)
	return r
}

const baseConfig = `
machines:
  general: [1, 2, 3, 4, 5]
  accelerator: [4]
environment:
  user: lab
`

func run(t *testing.T, tr *fakeTransport, in string, args ...string) (string, error) {
	out, _, err := runWithUsage(t, tr, in, args...)
	return out, err
}

// runWithUsage also returns what cobra printed: errors and usage.
func runWithUsage(t *testing.T, tr *fakeTransport, in string, args ...string) (string, string, error) {
	cl := NewCliClient(tr).(*FleetCLIClient)
	out, usage := &bytes.Buffer{}, &bytes.Buffer{}
	cl.Out = out
	cl.In = strings.NewReader(in)
	cl.RootCmd.SetOutput(usage)
	cl.RootCmd.SetArgs(args)
	err := cl.Exec()
	return out.String(), usage.String(), err
}

func TestKillArity(t *testing.T) {
	tr := &fakeTransport{}
	_, usage, err := runWithUsage(t, tr, "", "--config", baseConfig, "kill", "4")
	assert.Equal(t, fleeterrors.UsageExitCode, fleeterrors.ExitCodeOf(err))
	assert.Contains(t, usage, "Arguments:")
	assert.Contains(t, usage, "exclude-ids    space-separated identifiers of machines to spare")
	assert.Contains(t, usage, "1 if it names an accelerator machine")
	_, usage, err = runWithUsage(t, tr, "", "--config", baseConfig, "killpattern")
	assert.Equal(t, fleeterrors.UsageExitCode, fleeterrors.ExitCodeOf(err))
	assert.Contains(t, usage, "pattern  matched against full command lines")
	_, err = run(t, tr, "", "--config", baseConfig, "bogus")
	assert.Equal(t, fleeterrors.UsageExitCode, fleeterrors.ExitCodeOf(err))
	_, err = run(t, tr, "", "--config", baseConfig, "machines", "--nope")
	assert.Equal(t, fleeterrors.UsageExitCode, fleeterrors.ExitCodeOf(err))
	assert.Empty(t, tr.sent())
}

func TestKillSparesExcludedKey(t *testing.T) {
	tr := &fakeTransport{}
	out, err := run(t, tr, "", "--config", baseConfig, "kill", "4", "0")
	require.NoError(t, err)
	sent := tr.sent()
	assert.Len(t, sent, 5)
	assert.NotContains(t, sent, "vision04 pkill -9 -u 'lab'")
	assert.Contains(t, sent, "visiongpu04 pkill -9 -u 'lab'")
	assert.Contains(t, out, "kill sent to visiongpu04")
}

func TestKillExclusionFlags(t *testing.T) {
	tr := &fakeTransport{}
	_, err := run(t, tr, "", "--config", baseConfig, "kill", "--exclude", "1:general,4:accelerator")
	require.NoError(t, err)
	assert.Len(t, tr.sent(), 4)

	_, err = run(t, tr, "", "--config", baseConfig, "kill", "--exclude-ids", "4 2", "--exclude-accel", "0")
	assert.Equal(t, fleeterrors.ConfigErrorExitCode, fleeterrors.ExitCodeOf(err))
	_, err = run(t, tr, "", "--config", baseConfig, "kill", "9", "0")
	assert.Equal(t, fleeterrors.ConfigErrorExitCode, fleeterrors.ExitCodeOf(err))
	assert.Len(t, tr.sent(), 4)
}

func TestKillPattern(t *testing.T) {
	tr := &fakeTransport{}
	out, err := run(t, tr, "", "--config", baseConfig, "killpattern", "blender -b")
	require.NoError(t, err)
	assert.Len(t, tr.sent(), 6)
	assert.Contains(t, tr.sent(), "vision01 pkill -9 -u 'lab' -f 'blender -b'")
	assert.Contains(t, out, "sent to 6 machines")
}

func labConfig(t *testing.T, dir string) string {
	require.NoError(t, jobs.WriteLines(filepath.Join(dir, "params.txt"), []string{"a", "b", "c"}))
	require.NoError(t, jobs.WriteLines(filepath.Join(dir, "expects.txt"), []string{"a.out", "b.out", "c.out"}))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "b.out"), nil, 0644))
	return fmt.Sprintf(`
environment: {curr_dir: %s}
machines: {general: [1, 2, 3], accelerator: []}
job:
  bin: python
  job_file: render.py
  params_file: params.txt
  expect_file: expects.txt
`, dir)
}

func TestDispatch(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTransport{down: map[string]bool{"vision01": true}}
	out, err := run(t, tr, "", "--config", labConfig(t, dir), "dispatch")
	require.NoError(t, err)

	script := filepath.Join(dir, "render.py")
	assert.Equal(t, []string{
		"vision02 python " + script + " a",
		"vision03 python " + script + " c",
	}, tr.sent())
	assert.Contains(t, out, "params.txt:2: done already")
	assert.Contains(t, out, "params.txt:1: submitted to vision02")
	assert.Contains(t, out, "2 submitted, 1 done already, 0 failed")
}

func TestDispatchNoMachine(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTransport{down: map[string]bool{"vision01": true, "vision02": true, "vision03": true}}
	_, err := run(t, tr, "", "--config", labConfig(t, dir), "dispatch")
	assert.Equal(t, fleeterrors.NoMachineAvailableExitCode, fleeterrors.ExitCodeOf(err))
	assert.Empty(t, tr.sent())
}

func TestSubmit(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTransport{}
	out, err := run(t, tr, "y\n", "--config", labConfig(t, dir), "submit", "--seed", "3", "--exec-threads", "4")
	require.NoError(t, err)

	assert.Contains(t, out, "The first job will be:\n\tpython\n\t"+filepath.Join(dir, "render.py")+"\n\ta")
	poolDir := filepath.Join(dir, "pool")
	for i := 0; i < 3; i++ {
		cmds, expects := jobs.ShardPaths(poolDir, "render", i)
		js, err := jobs.ReadShard(cmds, expects)
		require.NoError(t, err)
		assert.Len(t, js, 1)
	}
	// Shard 1 holds b, whose output exists.
	sent := tr.sent()
	assert.Len(t, sent, 2)
	for _, s := range sent {
		assert.Contains(t, s, "fleet-exec -t 4 ")
	}
	assert.Equal(t, sent, submitRecord(t, poolDir))
	assert.Contains(t, out, "3 jobs in 3 shards: 2 submitted, 1 done already, 0 failed")
}

// submitRecord reads ssh.cmds back as sorted "machine command" lines.
func submitRecord(t *testing.T, poolDir string) []string {
	raw, err := ioutil.ReadFile(filepath.Join(poolDir, "ssh.cmds"))
	require.NoError(t, err)
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		lines = append(lines, strings.Replace(l, "\t", " ", 1))
	}
	sort.Strings(lines)
	return lines
}

func TestSubmitRecordsWhereShardsWent(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTransport{down: map[string]bool{"vision01": true, "vision02": true}}
	out, err := run(t, tr, "", "--config", labConfig(t, dir), "submit", "--yes", "--seed", "3")
	require.NoError(t, err)

	sent := tr.sent()
	require.Len(t, sent, 2)
	for _, s := range sent {
		assert.True(t, strings.HasPrefix(s, "vision03 "), s)
	}
	assert.Equal(t, sent, submitRecord(t, filepath.Join(dir, "pool")))
	assert.Contains(t, out, "2 submitted, 1 done already, 0 failed")
}

func TestSubmitDeclined(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTransport{}
	_, err := run(t, tr, "n\n", "--config", labConfig(t, dir), "submit")
	assert.Error(t, err)
	assert.Empty(t, tr.sent())
}

func TestMachinesAndProbe(t *testing.T) {
	tr := &fakeTransport{down: map[string]bool{"vision02": true}}
	out, err := run(t, tr, "", "--config", baseConfig, "machines")
	require.NoError(t, err)
	assert.Equal(t, 6, strings.Count(out, "\n"))
	assert.Contains(t, out, "4:accelerator")

	out, err = run(t, tr, "", "--config", baseConfig, "probe", "1:general", "2:general")
	require.NoError(t, err)
	assert.Contains(t, out, "vision01     alive")
	assert.Contains(t, out, "vision02     dead")
	assert.Contains(t, out, "1 of 2 alive")

	_, err = run(t, tr, "", "--config", baseConfig, "probe", "2:tpu")
	assert.Equal(t, fleeterrors.ConfigErrorExitCode, fleeterrors.ExitCodeOf(err))
}
