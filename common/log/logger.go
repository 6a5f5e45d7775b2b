// Package log holds the logrus setup shared by the fleet binaries.
package log

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vislab/fleet/common/log/hooks"
)

var hookOnce sync.Once

// Configure sets the global logrus level from a name like "info" and installs
// the file:line context hook.
func Configure(level string, out io.Writer) error {
	l, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	log.SetLevel(l)
	hookOnce.Do(func() { log.AddHook(hooks.NewContextHook()) })
	if out != nil {
		log.SetOutput(out)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}
