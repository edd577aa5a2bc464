package domain

import (
	"testing"
	"time"
)

func TestAgreementIsActiveNow(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		a    *Agreement
		want bool
	}{
		{"nil agreement", nil, false},
		{"suspended", &Agreement{Status: AgreementStatusSuspended}, false},
		{"active no validTo", &Agreement{Status: AgreementStatusActive}, true},
		{"active future validTo", &Agreement{Status: AgreementStatusActive, ValidTo: &future}, true},
		{"active past validTo", &Agreement{Status: AgreementStatusActive, ValidTo: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.IsActiveNow(now); got != tt.want {
				t.Errorf("IsActiveNow() = %v, want %v", got, tt.want)
			}
		})
	}
}
