package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// JSONGenerator renders the full report as one document, for downstream
// tooling rather than human eyes.
type JSONGenerator struct {
	BaseGenerator
}

// NewJSONGenerator creates the generator.
func NewJSONGenerator() *JSONGenerator {
	return &JSONGenerator{}
}

func (g *JSONGenerator) Format() Format    { return FormatJSON }
func (g *JSONGenerator) MimeType() string  { return "application/json" }
func (g *JSONGenerator) Extension() string { return "json" }

// jsonReport is the stable document shape.
type jsonReport struct {
	Title        string            `json:"title"`
	Kind         Kind              `json:"kind"`
	Author       string            `json:"author"`
	Company      string            `json:"company"`
	GeneratedAt  time.Time         `json:"generated_at"`
	RowCount     int               `json:"row_count"`
	Bookings     []BookingRow      `json:"bookings,omitempty"`
	Agreements   []AgreementRow    `json:"agreements,omitempty"`
	SourceHealth []SourceHealthRow `json:"source_health,omitempty"`
	Summary      *Summary          `json:"summary,omitempty"`
}

func (g *JSONGenerator) Generate(_ context.Context, data *ReportData) ([]byte, error) {
	doc := jsonReport{
		Title:        g.GetTitle(data),
		Kind:         data.Kind,
		Author:       g.GetAuthor(data),
		Company:      g.GetCompanyName(data),
		GeneratedAt:  data.GeneratedAt,
		RowCount:     data.Rows(),
		Bookings:     data.Bookings,
		Agreements:   data.Agreements,
		SourceHealth: data.SourceHealth,
		Summary:      data.Summary,
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json generator: %w", err)
	}
	return out, nil
}
