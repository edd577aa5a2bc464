package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AgreementStatus
		want     bool
	}{
		{AgreementStatusDraft, AgreementStatusOffered, true},
		{AgreementStatusDraft, AgreementStatusActive, false},
		{AgreementStatusOffered, AgreementStatusAccepted, true},
		{AgreementStatusOffered, AgreementStatusExpired, true},
		{AgreementStatusOffered, AgreementStatusDraft, false},
		{AgreementStatusAccepted, AgreementStatusActive, true},
		{AgreementStatusAccepted, AgreementStatusSuspended, false},
		{AgreementStatusActive, AgreementStatusSuspended, true},
		{AgreementStatusActive, AgreementStatusExpired, true},
		{AgreementStatusSuspended, AgreementStatusActive, true},
		{AgreementStatusSuspended, AgreementStatusExpired, true},
		{AgreementStatusExpired, AgreementStatusActive, false},
		{AgreementStatusExpired, AgreementStatusDraft, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestLegalTransitionsTerminal(t *testing.T) {
	if got := LegalTransitions(AgreementStatusExpired); len(got) != 0 {
		t.Errorf("LegalTransitions(EXPIRED) = %v, want empty", got)
	}
}
