package os

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/vislab/fleet/runner/execer"
)

func TestExecCapturesOutputAndExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	e := NewExecer()
	p, err := e.Exec(execer.Command{
		Argv:    []string{"sh", "-c", "echo out; echo err >&2; echo $FLEET_TEST; exit 3"},
		EnvVars: map[string]string{"FLEET_TEST": "env-ok"},
		Stdout:  &stdout,
		Stderr:  &stderr,
	})
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	st := p.Wait()
	if st.State != execer.COMPLETE || st.ExitCode != 3 {
		t.Fatalf("unexpected status %+v", st)
	}
	if got := stdout.String(); got != "out\nenv-ok\n" {
		t.Fatalf("unexpected stdout %q", got)
	}
	if got := strings.TrimSpace(stderr.String()); got != "err" {
		t.Fatalf("unexpected stderr %q", got)
	}
}

func TestExecDir(t *testing.T) {
	var stdout bytes.Buffer
	p, err := NewExecer().Exec(execer.Command{Argv: []string{"pwd"}, Dir: "/", Stdout: &stdout})
	if err != nil {
		t.Fatal(err)
	}
	if st := p.Wait(); st.State != execer.COMPLETE || st.ExitCode != 0 {
		t.Fatalf("unexpected status %+v", st)
	}
	if strings.TrimSpace(stdout.String()) != "/" {
		t.Fatalf("expected to run in /, got %q", stdout.String())
	}
}

func TestExecRejectsEmptyArgv(t *testing.T) {
	if _, err := NewExecer().Exec(execer.Command{}); err == nil {
		t.Fatalf("expected error for empty argv")
	}
}

func TestAbort(t *testing.T) {
	p, err := NewExecer().Exec(execer.Command{Argv: []string{"sleep", "30"}})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan execer.ProcessStatus)
	go func() { done <- p.Wait() }()

	st := p.Abort()
	if st.State != execer.FAILED || st.ExitCode != -1 || !strings.HasPrefix(st.Error, "Aborted") {
		t.Fatalf("unexpected abort status %+v", st)
	}
	select {
	case w := <-done:
		if w != st {
			t.Fatalf("Wait and Abort disagree: %+v vs %+v", w, st)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Wait didn't return after Abort")
	}
	if again := p.Abort(); again != st {
		t.Fatalf("second Abort changed status: %+v", again)
	}
}

func TestAbortAfterExit(t *testing.T) {
	p, err := NewExecer().Exec(execer.Command{Argv: []string{"true"}})
	if err != nil {
		t.Fatal(err)
	}
	p.Wait()
	if st := p.Abort(); st.State != execer.COMPLETE || st.ExitCode != 0 {
		t.Fatalf("abort of an exited process should report its exit, got %+v", st)
	}
}
