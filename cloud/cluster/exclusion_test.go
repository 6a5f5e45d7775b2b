package cluster

import (
	"reflect"
	"testing"

	fleeterrors "github.com/vislab/fleet/common/errors"
)

func TestParseExclusionLists(t *testing.T) {
	ex, err := ParseExclusionLists("4 12  7", "0 1 0")
	if err != nil {
		t.Fatal(err)
	}
	want := []Key{{4, General}, {7, General}, {12, Accelerator}}
	if !reflect.DeepEqual(ex.Keys(), want) {
		t.Fatalf("got %v, want %v", ex.Keys(), want)
	}
	if ex.Contains(Key{4, Accelerator}) {
		t.Fatalf("accelerator-4 must not match general-4")
	}
}

func TestParseExclusionListsRejectsMismatchedLengths(t *testing.T) {
	if _, err := ParseExclusionLists("4 5", "0"); !fleeterrors.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if _, err := ParseExclusionLists("4 x", "0 0"); !fleeterrors.IsConfigError(err) {
		t.Fatalf("expected ConfigError for non-numeric id, got %v", err)
	}
	if _, err := ParseExclusionLists("4", "maybe"); !fleeterrors.IsConfigError(err) {
		t.Fatalf("expected ConfigError for bad flag, got %v", err)
	}
}

func TestParseExclusions(t *testing.T) {
	ex, err := ParseExclusions("4:general, 7:gpu\t2:cpu")
	if err != nil {
		t.Fatal(err)
	}
	want := []Key{{2, General}, {4, General}, {7, Accelerator}}
	if !reflect.DeepEqual(ex.Keys(), want) {
		t.Fatalf("got %v, want %v", ex.Keys(), want)
	}
	if ex, err := ParseExclusions(""); err != nil || len(ex) != 0 {
		t.Fatalf("empty list: %v %v", ex, err)
	}
	if _, err := ParseExclusions("4"); !fleeterrors.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestPoolWithoutAndValidate(t *testing.T) {
	p, err := NewPool([]int{3, 4}, []int{4}, DefaultTemplates())
	if err != nil {
		t.Fatal(err)
	}
	ex := NewExclusionSet(Key{4, General})
	if got := names(p.Without(ex)); !reflect.DeepEqual(got, []string{"vision03", "visiongpu04"}) {
		t.Fatalf("unexpected survivors %v", got)
	}
	if err := p.Validate(ex); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := p.Validate(NewExclusionSet(Key{9, General})); !fleeterrors.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	union := ex.Union(NewExclusionSet(Key{3, General}))
	if len(union) != 2 || len(ex) != 1 {
		t.Fatalf("union mutated input or lost keys: %v %v", union, ex)
	}
}
