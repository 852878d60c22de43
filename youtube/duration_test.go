package youtube

import "testing"

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"PT", 0},
		{"PT45S", 45},
		{"PT1H2M3S", 3723},
		{"PT2M59S", 179},
		{"PT3M", 180},
		{"PT1H", 3600},
		{"PT10M", 600},
		{"P1DT2H", 93600},
		{"P0D", 0},
		{"garbage", 0},
		{"", 0},
		{"1H2M", 0},
		{"PT1.5S", 0},
		{"pt45s", 0},
		{"PT99999999999999999999S", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseDuration(tt.input); got != tt.want {
				t.Errorf("ParseDuration(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
