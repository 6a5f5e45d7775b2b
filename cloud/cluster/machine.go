package cluster

import (
	"fmt"
	"strconv"
	"strings"

	fleeterrors "github.com/vislab/fleet/common/errors"
)

// Class is the hardware class of a lab machine.
type Class string

const (
	General     Class = "general"
	Accelerator Class = "accelerator"
)

// ParseClass accepts the class names plus the spellings the lab scripts use
// (cpu/gpu, and the 0/1 is-accelerator flags of exclusion lists).
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "general", "cpu", "0", "false":
		return General, nil
	case "accelerator", "gpu", "1", "true":
		return Accelerator, nil
	}
	return "", fleeterrors.NewConfigError("unknown machine class %q", s)
}

func (c Class) valid() bool {
	return c == General || c == Accelerator
}

type MachineId int

// Key identifies a machine. The identifier alone is ambiguous: general-4 and
// accelerator-4 are different hosts.
type Key struct {
	Id    MachineId
	Class Class
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s", k.Id, k.Class)
}

// ParseKey parses "<id>:<class>".
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Key{}, fleeterrors.NewConfigError("machine key %q is not of the form <id>:<class>", s)
	}
	id, err := parseId(parts[0])
	if err != nil {
		return Key{}, err
	}
	class, err := ParseClass(parts[1])
	if err != nil {
		return Key{}, err
	}
	return Key{Id: id, Class: class}, nil
}

func parseId(s string) (MachineId, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fleeterrors.NewConfigError("machine identifier %q is not a positive integer", s)
	}
	return MachineId(n), nil
}

// Machine is one host of the pool. Name is the short hostname produced by the
// class template; Address is what the transports dial.
type Machine struct {
	Key
	Name    string
	Address string
}

func (m Machine) String() string {
	return m.Name
}

// Sorts by class (general first) then identifier.
type MachineSorter []Machine

func (s MachineSorter) Len() int      { return len(s) }
func (s MachineSorter) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s MachineSorter) Less(i, j int) bool {
	return keyLess(s[i].Key, s[j].Key)
}

func keyLess(a, b Key) bool {
	if a.Class != b.Class {
		return a.Class == General
	}
	return a.Id < b.Id
}
