package fleetconfig

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	fleeterrors "github.com/vislab/fleet/common/errors"
	"github.com/vislab/fleet/common/stats"
	"github.com/vislab/fleet/jobs"
	"github.com/vislab/fleet/killer"
	"github.com/vislab/fleet/remote"
	"github.com/vislab/fleet/remote/openssh"
	"github.com/vislab/fleet/remote/sshexec"
	"github.com/vislab/fleet/runner/execer"
)

// Transport runs commands on pool machines, with or without their output.
type Transport interface {
	remote.Executor
	remote.Querier
}

// Limiter throttles new SSH connections, or is nil when unlimited.
func (c *Config) Limiter() *rate.Limiter {
	if c.Environment.DialsPerSecond <= 0 {
		return nil
	}
	burst := int(c.Environment.DialsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.Environment.DialsPerSecond), burst)
}

// Transport builds the configured executor. ex runs the ssh binary for the
// openssh transport and is unused otherwise.
func (c *Config) Transport(ex execer.Execer) (Transport, error) {
	env := c.Environment
	switch env.Transport {
	case TransportOpenSSH:
		t, err := openssh.New(openssh.Config{
			User:           env.User,
			Port:           env.Port,
			KeyFiles:       c.keyFiles(),
			ExtraArgs:      env.SSHArgs,
			WorkDir:        env.CurrDir,
			ConnectTimeout: env.ConnectTimeout.Std(),
		}, ex)
		if err != nil {
			return nil, fleeterrors.NewConfigError("%v", err)
		}
		return t, nil
	case TransportNative, "":
		signers, err := sshexec.LoadSigners(c.keyFiles()...)
		if err != nil {
			return nil, fleeterrors.NewConfigError("%v", err)
		}
		if len(signers) == 0 {
			return nil, fleeterrors.NewConfigError("no ssh keys: set environment.key_files")
		}
		user := env.User
		if user == "" {
			user = os.Getenv("USER")
		}
		t, err := sshexec.New(sshexec.Config{
			User:           user,
			Port:           env.Port,
			Signers:        signers,
			KnownHostsFile: env.KnownHosts,
			WorkDir:        env.CurrDir,
			DialTimeout:    env.ConnectTimeout.Std(),
			DialRetries:    env.DialRetries,
			Limiter:        c.Limiter(),
		})
		if err != nil {
			return nil, fleeterrors.NewConfigError("%v", err)
		}
		return t, nil
	}
	return nil, fleeterrors.NewConfigError("unknown transport %q", env.Transport)
}

// keyFiles falls back to the usual keys in ~/.ssh that exist.
func (c *Config) keyFiles() []string {
	if len(c.Environment.KeyFiles) > 0 {
		return c.Environment.KeyFiles
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var found []string
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		p := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		}
	}
	return found
}

func (c *Config) Prober(ex remote.Executor, stat stats.StatsReceiver) remote.Prober {
	return remote.NewProber(ex, stat)
}

func (c *Config) KillCommands() killer.Commands {
	cmds := killer.DefaultCommands(c.Environment.User)
	if c.Kill.Command != "" {
		cmds.KillAll = c.Kill.Command
	}
	if c.Kill.PatternCommand != "" {
		cmds.KillPattern = c.Kill.PatternCommand
	}
	cmds.ClientName = filepath.Base(c.Job.ExecClient)
	return cmds
}

// JobName prefixes the shard files of a batch: the job file's base name
// without extension.
func (c *Config) JobName() string {
	base := filepath.Base(c.Job.JobFile)
	if c.Job.JobFile == "" {
		base = filepath.Base(c.Job.ScriptsDir)
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (c *Config) scriptExpects(category, script string) []string {
	r := strings.NewReplacer(
		"{category}", category,
		"{script}", script,
		"{name}", strings.TrimSuffix(script, filepath.Ext(script)))
	var paths []string
	for _, f := range strings.Fields(r.Replace(c.Job.ScriptExpects)) {
		paths = append(paths, c.Path(f))
	}
	return paths
}

// Source is the work queue: a scripts directory when one is configured,
// otherwise "<bin> <job_file>" applied to each line of the params file.
func (c *Config) Source() (jobs.Source, error) {
	if c.Job.ScriptsDir != "" {
		src := &jobs.DirSource{Root: c.Path(c.Job.ScriptsDir), Runner: c.Job.Runner, Ext: c.Job.ScriptExt}
		if c.Job.ScriptExpects != "" {
			src.Expects = c.scriptExpects
		} else {
			log.Warnf("job.script_expects is not set, every script will run")
		}
		return src, nil
	}
	if c.Job.ParamsFile == "" {
		return nil, fleeterrors.NewConfigError("job.params_file or job.scripts_dir is required")
	}
	expects := ""
	if c.Job.ExpectFile != "" {
		expects = c.Path(c.Job.ExpectFile)
		if _, err := os.Stat(expects); err != nil {
			log.Warnf("expect_file %s does not exist, every job will run", expects)
			expects = ""
		}
	}
	prefix := strings.TrimSpace(c.Job.Bin + " " + c.Path(c.Job.JobFile))
	if c.Job.JobFile == "" {
		prefix = c.Job.Bin
	}
	return &jobs.ParamsSource{
		Prefix:      prefix,
		ParamsFile:  c.Path(c.Job.ParamsFile),
		ExpectsFile: expects,
		Dir:         c.Environment.CurrDir,
	}, nil
}

// ExecArgs are the batch runner flags forwarded by submit.
func (c *Config) ExecArgs() []string {
	var args []string
	if c.Exec.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(c.Exec.Threads))
	}
	if c.Exec.Every > 1 {
		args = append(args, "-e", strconv.Itoa(c.Exec.Every))
	}
	if c.Exec.Cap > 0 {
		args = append(args, "-c", strconv.Itoa(c.Exec.Cap))
	}
	if c.Exec.DryRun {
		args = append(args, "-d")
	}
	return args
}
