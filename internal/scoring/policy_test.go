package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

func TestPolicy_Classify(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		hr   uint16
		want Zone
	}{
		{171, Zone5}, // 90.0%
		{170, Zone4},
		{152, Zone4}, // 80.0%
		{151, Zone3},
		{133, Zone3}, // 70.0%
		{114, Zone2}, // 60.0%
		{113, Zone1},
		{0, Zone1},
	}
	for _, tt := range tests {
		if got := p.Classify(tt.hr, 190); got != tt.want {
			t.Errorf("Classify(%d, 190) = %d, want %d", tt.hr, got, tt.want)
		}
	}
}

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name       string
		thresholds []float64
		weights    []float64
		wantErr    bool
	}{
		{"defaults", []float64{0.9, 0.8, 0.7, 0.6}, []float64{0.5, 1, 2, 3, 4}, false},
		{"too few thresholds", []float64{0.9, 0.8}, []float64{0.5, 1, 2, 3, 4}, true},
		{"ascending", []float64{0.6, 0.7, 0.8, 0.9}, []float64{0.5, 1, 2, 3, 4}, true},
		{"equal neighbours", []float64{0.9, 0.9, 0.7, 0.6}, []float64{0.5, 1, 2, 3, 4}, true},
		{"above one", []float64{1.1, 0.8, 0.7, 0.6}, []float64{0.5, 1, 2, 3, 4}, true},
		{"negative weight", []float64{0.9, 0.8, 0.7, 0.6}, []float64{-1, 1, 2, 3, 4}, true},
		{"too many weights", []float64{0.9, 0.8, 0.7, 0.6}, []float64{0.5, 1, 2, 3, 4, 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(tt.thresholds, tt.weights)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPolicy) || !errors.Is(err, telemetry.ErrInvalid) {
					t.Fatalf("NewPolicy() error = %v, want ErrInvalidPolicy", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPolicy() error = %v", err)
			}
			if p != DefaultPolicy() {
				t.Errorf("NewPolicy() = %+v, want defaults", p)
			}
		})
	}
}

func TestAge(t *testing.T) {
	birth := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"day before 36th birthday", time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC), 35},
		{"well after birthday", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), 36},
		{"before birth", time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Age(birth, tt.at); got != tt.want {
				t.Errorf("Age() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFcMax(t *testing.T) {
	if got, ok := FcMax(telemetry.GenderMale, 30); !ok || got != 187 {
		t.Errorf("FcMax(M, 30) = %v, %v; want 187, true", got, ok)
	}
	if got, ok := FcMax(telemetry.GenderFemale, 25); !ok || got != 184 {
		t.Errorf("FcMax(F, 25) = %v, %v; want 184, true", got, ok)
	}
	if _, ok := FcMax("X", 25); ok {
		t.Error("FcMax with unknown gender should report false")
	}
	if _, ok := IdentityFcMax(nil, time.Now()); ok {
		t.Error("IdentityFcMax(nil) should report false")
	}
}

func TestComputeZoneRanges(t *testing.T) {
	zr := ComputeZoneRanges(190)
	want := ZoneRanges{
		Zone1: ZoneRange{Min: 95, Max: 114},
		Zone2: ZoneRange{Min: 114, Max: 133},
		Zone3: ZoneRange{Min: 133, Max: 152},
		Zone4: ZoneRange{Min: 152, Max: 171},
		Zone5: ZoneRange{Min: 171, Max: 190},
	}
	if zr != want {
		t.Errorf("ComputeZoneRanges(190) = %+v, want %+v", zr, want)
	}

	id := &telemetry.Identity{Gender: telemetry.GenderMale, BirthDate: time.Date(1986, 1, 1, 0, 0, 0, 0, time.UTC)}
	if IdentityZoneRanges(id, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) == nil {
		t.Error("IdentityZoneRanges() = nil for a valid identity")
	}
	if IdentityZoneRanges(&telemetry.Identity{Gender: "X"}, time.Now()) != nil {
		t.Error("IdentityZoneRanges() should be nil without birth date or gender")
	}
}
