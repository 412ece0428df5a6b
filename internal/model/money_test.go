package model

import "testing"

func TestParseCents(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"99.00", 9900},
		{"1234.56", 123456},
		{"0.01", 1},
		{"240", 24000},
		{"", 0},
		{"garbage", 0},
		{"-12.50", -1250},
	}

	for _, tt := range tests {
		if got := ParseCents(tt.input); got != tt.want {
			t.Errorf("ParseCents(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseMinorUnits(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"8900", 8900},
		{"123456", 123456},
		{"", 0},
		{"not a number", 0},
	}

	for _, tt := range tests {
		if got := ParseMinorUnits(tt.input); got != tt.want {
			t.Errorf("ParseMinorUnits(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestWithinTolerance(t *testing.T) {
	tests := []struct {
		name         string
		offered      int64
		charged      int64
		tolerancePct float64
		want         bool
	}{
		{"exact match", 32000, 32000, 1.0, true},
		{"within 1 percent", 32000, 32300, 1.0, true},
		{"at the boundary", 32000, 32320, 1.0, true},
		{"beyond 1 percent", 32000, 32400, 1.0, false},
		{"undershoot within tolerance", 32000, 31700, 1.0, true},
		{"undershoot beyond tolerance", 32000, 31500, 1.0, false},
		{"small offer rounds up allowance", 50, 51, 1.0, true},
		{"zero tolerance requires exact", 1000, 1001, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinTolerance(tt.offered, tt.charged, tt.tolerancePct); got != tt.want {
				t.Errorf("WithinTolerance(%d, %d, %v) = %v, want %v",
					tt.offered, tt.charged, tt.tolerancePct, got, tt.want)
			}
		})
	}
}
