package openssh

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/vislab/fleet/cloud/cluster"
	"github.com/vislab/fleet/runner/execer"
	"github.com/vislab/fleet/runner/execer/fake"
)

var gpu3 = cluster.Machine{Key: cluster.Key{Id: 3, Class: cluster.Accelerator}, Name: "visiongpu03", Address: "visiongpu03"}

func TestArgv(t *testing.T) {
	e, err := New(Config{
		User:           "xiuming",
		Port:           "2200",
		KeyFiles:       []string{"/home/x/.ssh/id_lab"},
		ExtraArgs:      `-o "StrictHostKeyChecking no"`,
		ConnectTimeout: 1500 * time.Millisecond,
	}, fake.NewRecordingExecer(nil))
	if err != nil {
		t.Fatal(err)
	}
	got := e.Argv(gpu3, "true")
	want := []string{"ssh", "-o", "BatchMode=yes", "-o", "ConnectTimeout=1", "-p", "2200", "-l", "xiuming",
		"-i", "/home/x/.ssh/id_lab", "-o", "StrictHostKeyChecking no", "visiongpu03", "true"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestBadExtraArgs(t *testing.T) {
	if _, err := New(Config{ExtraArgs: `-o "unterminated`}, fake.NewRecordingExecer(nil)); err == nil {
		t.Fatalf("expected a parse error")
	}
}

func TestRunBackground(t *testing.T) {
	ex := fake.NewRecordingExecer(nil)
	e, _ := New(Config{WorkDir: "/data/job"}, ex)
	code, err := e.Run(context.Background(), gpu3, "blender -b scene.blend", true)
	if err != nil || code != 0 {
		t.Fatalf("unexpected result %d %v", code, err)
	}
	cmds := ex.Commands()
	if len(cmds) != 1 {
		t.Fatalf("expected one ssh invocation, got %v", ex.Argvs())
	}
	line := cmds[0].Argv[len(cmds[0].Argv)-1]
	if !strings.HasPrefix(line, "nohup sh -c ") || !strings.Contains(line, "/data/job") {
		t.Fatalf("expected a detached line in the job dir, got %q", line)
	}
	if cmds[0].Machine != "visiongpu03" {
		t.Fatalf("expected log tags naming the machine, got %+v", cmds[0].LogTags)
	}
}

func TestSSHConnectionFailureIsAnError(t *testing.T) {
	ex := fake.NewRecordingExecer(func(argv []string) (string, execer.ProcessStatus) {
		return "", execer.ProcessStatus{State: execer.COMPLETE, ExitCode: 255}
	})
	e, _ := New(Config{}, ex)
	if _, err := e.Run(context.Background(), gpu3, "true", false); err == nil {
		t.Fatalf("expected exit 255 to be reported as a transport error")
	}
}

func TestOutputAndExitCode(t *testing.T) {
	ex := fake.NewRecordingExecer(func(argv []string) (string, execer.ProcessStatus) {
		return "1234 ? S 0:00 fleet-exec\n", execer.ProcessStatus{State: execer.COMPLETE, ExitCode: 1}
	})
	e, _ := New(Config{}, ex)
	out, code, err := e.Output(context.Background(), gpu3, "ps a x")
	if err != nil || code != 1 || !strings.Contains(string(out), "fleet-exec") {
		t.Fatalf("unexpected result %q %d %v", out, code, err)
	}
	if _, _, err := e.Output(context.Background(), cluster.Machine{}, "ps"); err == nil {
		t.Fatalf("expected error for a machine without address")
	}
}
