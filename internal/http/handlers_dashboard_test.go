package http

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"chantier/internal/budget"
)

func TestPieChart(t *testing.T) {
	css, legend := pieChart([]budget.Slice{
		{Label: budget.SliceUnlinked, Amount: decimal.NewFromInt(250)},
		{Label: budget.SliceRemaining, Amount: decimal.NewFromInt(750)},
	})

	want := "background: conic-gradient(#f59e0b 0.00% 25.00%, #3b82f6 25.00% 100.00%)"
	if string(css) != want {
		t.Errorf("pie = %q, want %q", css, want)
	}
	if len(legend) != 2 || !legend[0].Percent.Equal(decimal.NewFromInt(25)) {
		t.Errorf("legend = %+v", legend)
	}
}

func TestPieChart_Empty(t *testing.T) {
	css, legend := pieChart(nil)
	if strings.Contains(string(css), "conic-gradient") || len(legend) != 0 {
		t.Errorf("empty pie = %q, %+v", css, legend)
	}
}

func TestTagBars(t *testing.T) {
	bars := tagBars(budget.TagTotals{
		{Tag: "Cuisine", Amount: decimal.NewFromInt(200)},
		{Tag: "Toiture", Amount: decimal.NewFromInt(50)},
		{Tag: "Remboursement", Amount: decimal.NewFromInt(-30)},
	})
	tests := []struct {
		tag   string
		width string
	}{
		{"Cuisine", "100"},
		{"Toiture", "25"},
		{"Remboursement", "0"},
	}
	for i, tt := range tests {
		if bars[i].Tag != tt.tag || !bars[i].Width.Equal(decimal.RequireFromString(tt.width)) {
			t.Errorf("bar %d = %s %s, want %s %s", i, bars[i].Tag, bars[i].Width, tt.tag, tt.width)
		}
	}
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/planned", "/planned"},
		{"", "/quotes"},
		{"//evil.example", "/quotes"},
		{"https://evil.example", "/quotes"},
		{`/\evil.example`, "/quotes"},
	}
	for _, tt := range tests {
		if got := safeRedirect(tt.in, "/quotes"); got != tt.want {
			t.Errorf("safeRedirect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
