package hooks

import (
	"runtime/debug"
	"strings"

	log "github.com/sirupsen/logrus"
)

type contextHook struct {
}

// NewContextHook returns a hook that tags each entry with the file:line of the
// caller that logged it.
func NewContextHook() contextHook {
	return contextHook{}
}

func (hook contextHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook contextHook) Fire(entry *log.Entry) error {
	stack := debug.Stack()
	lines := strings.Split(string(stack), "\n")
	foundLoggerBlock := false
	for i := 0; i < len(lines); i++ {
		// Frames come in pairs: function name, then "\tfile:line +offset".
		if strings.Contains(lines[i], "sirupsen/logrus") {
			foundLoggerBlock = true
			continue
		}
		if !foundLoggerBlock || !strings.HasPrefix(lines[i], "\t") {
			continue
		}
		ctx := strings.Split(lines[i], "fleet/")
		loc := strings.TrimSpace(ctx[len(ctx)-1])
		if idx := strings.LastIndex(loc, " +"); idx > 0 {
			loc = loc[:idx]
		}
		entry.Data["file:line"] = loc
		return nil
	}
	return nil
}
