package tags

import (
	log "github.com/sirupsen/logrus"
)

// LogTags are carried along a dispatch pass so every log line of the pass can
// be grepped out of a shared log.
type LogTags struct {
	PassID  string
	Machine string
	Tag     string
}

func (t LogTags) Fields() log.Fields {
	f := log.Fields{}
	if t.PassID != "" {
		f["pass"] = t.PassID
	}
	if t.Machine != "" {
		f["machine"] = t.Machine
	}
	if t.Tag != "" {
		f["tag"] = t.Tag
	}
	return f
}

func (t LogTags) Entry() *log.Entry {
	return log.WithFields(t.Fields())
}

// WithMachine returns a copy of t naming machine.
func (t LogTags) WithMachine(machine string) LogTags {
	t.Machine = machine
	return t
}
