package benchmark

import (
	"fmt"
	"testing"
	"time"

	"carbroker/pkg/domain"
)

func BenchmarkCanTransition(b *testing.B) {
	transitions := []struct {
		from, to domain.AgreementStatus
	}{
		{domain.AgreementStatusDraft, domain.AgreementStatusOffered},
		{domain.AgreementStatusActive, domain.AgreementStatusSuspended},
		{domain.AgreementStatusExpired, domain.AgreementStatusActive}, // illegal
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		t := transitions[i%len(transitions)]
		domain.CanTransition(t.from, t.to)
	}
}

func buildCoverageIndex(sources, locodesPerSource int) *domain.CoverageIndex {
	idx := domain.NewCoverageIndex()
	for s := 0; s < sources; s++ {
		unlocodes := make([]string, locodesPerSource)
		for l := 0; l < locodesPerSource; l++ {
			unlocodes[l] = fmt.Sprintf("XX%03d", l)
		}
		idx.SetBase(fmt.Sprintf("src-%d", s), unlocodes)
	}
	return idx
}

func BenchmarkCoverageIsAllowed(b *testing.B) {
	idx := buildCoverageIndex(10, 500)
	idx.SetOverride("agr-1", "XX042", domain.OverrideDeny)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.IsAllowed("src-5", "agr-1", "XX042")
	}
}

func BenchmarkCoverageEffective(b *testing.B) {
	sizes := []int{50, 500, 5000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("locodes_%d", size), func(b *testing.B) {
			idx := buildCoverageIndex(1, size)
			idx.SetOverride("agr-1", "XX000", domain.OverrideDeny)
			idx.SetOverride("agr-1", "YYYYY", domain.OverrideAllow)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				idx.Effective("src-0", "agr-1")
			}
		})
	}
}

func BenchmarkHealthWindowRecord(b *testing.B) {
	w := domain.NewSourceHealthWindow("src-1", domain.DefaultHealthWindowConfig())
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Alternate fast and slow samples so both branches run
		w.RecordSample(int64(100+(i%2)*5000), i%7 == 0, now)
	}
}

func BenchmarkHealthWindowRecord_Parallel(b *testing.B) {
	w := domain.NewSourceHealthWindow("src-1", domain.DefaultHealthWindowConfig())
	now := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			w.RecordSample(250, false, now)
		}
	})
}
