package benchmark

import (
	"fmt"
	"testing"
	"time"

	"carbroker/pkg/cache"
	"carbroker/pkg/domain"
)

func benchCriteria() domain.AvailabilityCriteria {
	return domain.AvailabilityCriteria{
		PickupUnlocode:  "PKKHI",
		DropoffUnlocode: "PKLHE",
		PickupAt:        time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		DropoffAt:       time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC),
		DriverAge:       30,
		VehicleClass:    "compact",
	}
}

func BenchmarkCriteriaHash(b *testing.B) {
	criteria := benchCriteria()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.CriteriaHash("agent-1", criteria)
	}
}

func BenchmarkMapHash(b *testing.B) {
	sizes := []int{5, 50, 500}

	for _, size := range sizes {
		m := make(map[string]string, size)
		for i := 0; i < size; i++ {
			m[fmt.Sprintf("field_%d", i)] = fmt.Sprintf("value_%d", i)
		}

		b.Run(fmt.Sprintf("keys_%d", size), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				cache.MapHash(m)
			}
		})
	}
}

func BenchmarkRequestHash(b *testing.B) {
	for i := 0; i < b.N; i++ {
		cache.RequestHash("agent-1", "booking:create", "K1", "AGR-001")
	}
}

func BenchmarkShortHash(b *testing.B) {
	data := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.ShortHash(data)
	}
}
