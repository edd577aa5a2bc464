package domain

import (
	"reflect"
	"testing"
)

func TestCoverageIndexIsAllowed(t *testing.T) {
	idx := NewCoverageIndex()
	idx.SetBase("src-1", []string{"USNYC", "USLAX"})
	idx.SetOverride("agr-1", "USNYC", OverrideDeny)
	idx.SetOverride("agr-1", "GBLON", OverrideAllow)

	tests := []struct {
		name     string
		agreement string
		unlocode string
		want     bool
	}{
		{"base coverage, no override", "agr-1", "USLAX", true},
		{"denied override beats base", "agr-1", "USNYC", false},
		{"allowed override outside base", "agr-1", "GBLON", true},
		{"not in base, no override", "agr-1", "FRPAR", false},
		{"different agreement ignores overrides", "agr-2", "USNYC", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := idx.IsAllowed("src-1", tt.agreement, tt.unlocode); got != tt.want {
				t.Errorf("IsAllowed(%s, %s) = %v, want %v", tt.agreement, tt.unlocode, got, tt.want)
			}
		})
	}
}

func TestCoverageIndexEffective(t *testing.T) {
	idx := NewCoverageIndex()
	idx.SetBase("src-1", []string{"USNYC", "USLAX"})
	idx.SetOverride("agr-1", "USNYC", OverrideDeny)
	idx.SetOverride("agr-1", "GBLON", OverrideAllow)

	got := idx.Effective("src-1", "agr-1")
	want := []string{"GBLON", "USLAX"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Effective() = %v, want %v", got, want)
	}
}

func TestCoverageIndexDiffBase(t *testing.T) {
	idx := NewCoverageIndex()
	idx.SetBase("src-1", []string{"USNYC", "USLAX"})

	fresh := map[string]struct{}{"USNYC": {}, "FRPAR": {}}
	result := idx.DiffBase("src-1", fresh)

	if result.Added != 1 || result.Removed != 1 || result.Total != 2 {
		t.Errorf("DiffBase() = %+v, want Added=1 Removed=1 Total=2", result)
	}
}
