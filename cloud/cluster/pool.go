package cluster

import (
	"fmt"
	"math/rand"
	"strings"

	fleeterrors "github.com/vislab/fleet/common/errors"
)

// Templates derive hostnames from machine identifiers.
type Templates struct {
	General     string
	Accelerator string
	// Appended to the hostname, with a dot, to form the address. Optional.
	Domain string
}

func DefaultTemplates() Templates {
	return Templates{General: "vision%02d", Accelerator: "visiongpu%02d"}
}

func (t Templates) name(k Key) (string, error) {
	tmpl := t.General
	if k.Class == Accelerator {
		tmpl = t.Accelerator
	}
	name := fmt.Sprintf(tmpl, int(k.Id))
	if !strings.Contains(tmpl, "%") || strings.Contains(name, "%!") {
		return "", fleeterrors.NewConfigError("hostname template %q for class %s must format exactly one integer", tmpl, k.Class)
	}
	return name, nil
}

func (t Templates) address(name string) string {
	if t.Domain == "" {
		return name
	}
	return name + "." + strings.TrimPrefix(t.Domain, ".")
}

// Pool is the static registry of lab machines. It is built once and never
// mutated, so it is safe to share between goroutines.
type Pool struct {
	general     []Machine
	accelerator []Machine
	byKey       map[Key]Machine
	templates   Templates
}

// NewPool builds a pool from the configured identifier lists. Machines keep the
// order they are listed in.
func NewPool(general, accelerator []int, t Templates) (*Pool, error) {
	p := &Pool{byKey: make(map[Key]Machine), templates: t}
	var err error
	if p.general, err = p.add(general, General); err != nil {
		return nil, err
	}
	if p.accelerator, err = p.add(accelerator, Accelerator); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) add(ids []int, class Class) ([]Machine, error) {
	machines := make([]Machine, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fleeterrors.NewConfigError("machine identifier %d (%s) is not positive", id, class)
		}
		k := Key{Id: MachineId(id), Class: class}
		if _, ok := p.byKey[k]; ok {
			return nil, fleeterrors.NewConfigError("machine %v listed twice", k)
		}
		name, err := p.templates.name(k)
		if err != nil {
			return nil, err
		}
		m := Machine{Key: k, Name: name, Address: p.templates.address(name)}
		p.byKey[k] = m
		machines = append(machines, m)
	}
	return machines, nil
}

// Members returns the machines of one class in configured order.
func (p *Pool) Members(class Class) []Machine {
	switch class {
	case General:
		return append([]Machine(nil), p.general...)
	case Accelerator:
		return append([]Machine(nil), p.accelerator...)
	}
	return nil
}

// All returns general machines followed by accelerator machines.
func (p *Pool) All() []Machine {
	all := make([]Machine, 0, p.Len())
	all = append(all, p.general...)
	return append(all, p.accelerator...)
}

func (p *Pool) Len() int {
	return len(p.general) + len(p.accelerator)
}

func (p *Pool) Lookup(k Key) (Machine, error) {
	if !k.Class.valid() {
		return Machine{}, fleeterrors.NewConfigError("unknown machine class %q", k.Class)
	}
	m, ok := p.byKey[k]
	if !ok {
		return Machine{}, fleeterrors.NewConfigError("machine %v is not in the pool", k)
	}
	return m, nil
}

// Address returns the canonical network address of a pool machine.
func (p *Pool) Address(id MachineId, class Class) (string, error) {
	m, err := p.Lookup(Key{Id: id, Class: class})
	if err != nil {
		return "", err
	}
	return m.Address, nil
}

// Shuffled returns All() with each class shuffled independently; general
// machines still come first.
func (p *Pool) Shuffled(r *rand.Rand) []Machine {
	general, accel := p.Members(General), p.Members(Accelerator)
	r.Shuffle(len(general), func(i, j int) { general[i], general[j] = general[j], general[i] })
	r.Shuffle(len(accel), func(i, j int) { accel[i], accel[j] = accel[j], accel[i] })
	return append(general, accel...)
}

// Without returns All() minus the excluded machines.
func (p *Pool) Without(ex ExclusionSet) []Machine {
	var r []Machine
	for _, m := range p.All() {
		if !ex.Contains(m.Key) {
			r = append(r, m)
		}
	}
	return r
}

// Validate fails when the exclusion set names a machine the pool doesn't have,
// which almost always means a typo on the command line.
func (p *Pool) Validate(ex ExclusionSet) error {
	for _, k := range ex.Keys() {
		if _, err := p.Lookup(k); err != nil {
			return err
		}
	}
	return nil
}
