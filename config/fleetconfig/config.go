// Package fleetconfig reads the fleet configuration file (YAML or JSON) and
// builds the pool, transport and job source it describes.
package fleetconfig

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vislab/fleet/cloud/cluster"
	fleeterrors "github.com/vislab/fleet/common/errors"
)

const (
	TransportNative  = "native"
	TransportOpenSSH = "openssh"
)

type Config struct {
	Environment Environment `json:"environment"`
	Machines    Machines    `json:"machines"`
	Probe       Probe       `json:"probe"`
	Job         Job         `json:"job"`
	Exec        Exec        `json:"exec"`
	Kill        Kill        `json:"kill"`
}

type Environment struct {
	// Working directory on every machine; relative job paths resolve against it.
	CurrDir  string   `json:"curr_dir"`
	User     string   `json:"user"`
	KeyFiles []string `json:"key_files"`
	// Verify host keys against this file when set.
	KnownHosts string `json:"known_hosts"`
	Port       string `json:"port"`
	// native (built-in client) or openssh (the ssh binary).
	Transport string `json:"transport"`
	// Extra arguments for the ssh binary.
	SSHArgs        string   `json:"ssh_args"`
	ConnectTimeout Duration `json:"connect_timeout"`
	// Caps new connections per second across the pool; 0 is unlimited.
	DialsPerSecond float64 `json:"dials_per_second"`
	DialRetries    uint64  `json:"dial_retries"`
}

type Machines struct {
	General             []int  `json:"general"`
	Accelerator         []int  `json:"accelerator"`
	GeneralTemplate     string `json:"general_template"`
	AcceleratorTemplate string `json:"accelerator_template"`
	Domain              string `json:"domain"`
}

type Probe struct {
	Timeout Duration `json:"timeout"`
}

type Job struct {
	Bin        string `json:"bin"`
	JobFile    string `json:"job_file"`
	ParamsFile string `json:"params_file"`
	PoolDir    string `json:"pool_dir"`
	ExpectFile string `json:"expect_file"`
	// Directory-scan queue: every script under <scripts_dir>/<category>/ runs as "<runner> <script>".
	ScriptsDir string `json:"scripts_dir"`
	Runner     string `json:"runner"`
	ScriptExt  string `json:"script_ext"`
	// Outputs of each script, space-separated, with {category}, {script}
	// (file name) and {name} (file name without extension) filled in.
	ScriptExpects string `json:"script_expects"`
	// Batch runner invoked on each machine by submit.
	ExecClient string `json:"exec_client"`
}

// Exec holds the batch runner flags submit forwards.
type Exec struct {
	Threads int  `json:"threads"`
	Every   int  `json:"every"`
	Cap     int  `json:"cap"`
	DryRun  bool `json:"dryrun"`
}

type Kill struct {
	Command        string `json:"command"`
	PatternCommand string `json:"pattern_command"`
}

func seq(from, to int) []int {
	var r []int
	for i := from; i <= to; i++ {
		r = append(r, i)
	}
	return r
}

// Default is the lab as it is set up: 38 general and 20 accelerator machines.
func Default() *Config {
	t := cluster.DefaultTemplates()
	return &Config{
		Environment: Environment{
			Transport:      TransportNative,
			ConnectTimeout: Duration(10 * time.Second),
			DialRetries:    2,
		},
		Machines: Machines{
			General:             seq(1, 38),
			Accelerator:         seq(1, 20),
			GeneralTemplate:     t.General,
			AcceleratorTemplate: t.Accelerator,
		},
		Probe: Probe{Timeout: Duration(2 * time.Second)},
		Job: Job{
			PoolDir:    "pool",
			Runner:     "sh",
			ExecClient: "fleet-exec",
		},
		Exec: Exec{Every: 1},
	}
}

// Parse overlays text on Default and validates the result.
func Parse(text []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(text, c); err != nil {
		return nil, fleeterrors.NewConfigError("parsing config: %v", err)
	}
	if c.Environment.CurrDir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Environment.CurrDir = wd
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load parses the config named by flag. A flag naming an existing file is
// read from disk; one that looks like YAML or JSON is parsed as is; an empty
// flag gives the defaults.
func Load(flag string) (*Config, error) {
	text, err := Text(flag)
	if err != nil {
		return nil, err
	}
	return Parse(text)
}

func Text(flag string) ([]byte, error) {
	if flag == "" {
		return nil, nil
	}
	if _, err := os.Stat(flag); err == nil {
		log.Debugf("Reading config file %s", flag)
		b, err := ioutil.ReadFile(flag)
		return b, errors.Wrapf(err, "reading config %s", flag)
	}
	if strings.ContainsAny(flag, ":{\n") {
		log.Debugf("Using --config as literal config text")
		return []byte(flag), nil
	}
	return nil, fleeterrors.NewConfigError("config file %s does not exist", flag)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	switch c.Environment.Transport {
	case TransportNative, TransportOpenSSH:
	default:
		result = multierror.Append(result, errors.Errorf("environment.transport must be %s or %s, not %q",
			TransportNative, TransportOpenSSH, c.Environment.Transport))
	}
	if c.Environment.DialsPerSecond < 0 {
		result = multierror.Append(result, errors.New("environment.dials_per_second must not be negative"))
	}
	if c.Probe.Timeout <= 0 {
		result = multierror.Append(result, errors.New("probe.timeout must be positive"))
	}
	if _, err := c.Pool(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Exec.Threads < 0 || c.Exec.Cap < 0 || c.Exec.Every < 0 {
		result = multierror.Append(result, errors.New("exec.threads, exec.cap and exec.every must not be negative"))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fleeterrors.NewConfigError("%v", err)
	}
	return nil
}

func (c *Config) Templates() cluster.Templates {
	return cluster.Templates{
		General:     c.Machines.GeneralTemplate,
		Accelerator: c.Machines.AcceleratorTemplate,
		Domain:      c.Machines.Domain,
	}
}

func (c *Config) Pool() (*cluster.Pool, error) {
	return cluster.NewPool(c.Machines.General, c.Machines.Accelerator, c.Templates())
}

// Path resolves p against curr_dir.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Environment.CurrDir == "" {
		return p
	}
	return filepath.Join(c.Environment.CurrDir, p)
}

// Duration reads "2s"-style strings or plain seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrap(err, "parsing duration")
		}
		*d = Duration(tmp)
	case float64:
		*d = Duration(value * float64(time.Second))
	default:
		return errors.Errorf("invalid duration: %s", b)
	}
	return nil
}
