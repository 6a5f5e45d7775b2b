package cluster

import (
	"sort"
	"strings"

	fleeterrors "github.com/vislab/fleet/common/errors"
)

// ExclusionSet holds machines that must not receive a fleet-wide signal.
type ExclusionSet map[Key]struct{}

func NewExclusionSet(keys ...Key) ExclusionSet {
	s := ExclusionSet{}
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s ExclusionSet) Contains(k Key) bool {
	_, ok := s[k]
	return ok
}

func (s ExclusionSet) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}

// ParseExclusionLists parses the two parallel space-separated lists the lab
// scripts take: identifiers, and an is-accelerator flag per identifier.
// Lists of different lengths are rejected instead of being zipped short.
func ParseExclusionLists(ids, accel string) (ExclusionSet, error) {
	idFields, accelFields := strings.Fields(ids), strings.Fields(accel)
	if len(idFields) != len(accelFields) {
		return nil, fleeterrors.NewConfigError(
			"exclusion lists differ in length: %d identifiers, %d accelerator flags", len(idFields), len(accelFields))
	}
	s := ExclusionSet{}
	for i := range idFields {
		id, err := parseId(idFields[i])
		if err != nil {
			return nil, err
		}
		class, err := ParseClass(accelFields[i])
		if err != nil {
			return nil, err
		}
		s[Key{Id: id, Class: class}] = struct{}{}
	}
	return s, nil
}

// ParseExclusions parses keys of the form "4:general,7:gpu". Commas and
// whitespace both separate entries.
func ParseExclusions(expr string) (ExclusionSet, error) {
	fields := strings.FieldsFunc(expr, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	s := ExclusionSet{}
	for _, f := range fields {
		k, err := ParseKey(f)
		if err != nil {
			return nil, err
		}
		s[k] = struct{}{}
	}
	return s, nil
}

// Union returns a new set holding the keys of both.
func (s ExclusionSet) Union(other ExclusionSet) ExclusionSet {
	r := ExclusionSet{}
	for k := range s {
		r[k] = struct{}{}
	}
	for k := range other {
		r[k] = struct{}{}
	}
	return r
}
