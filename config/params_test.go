package config

import "testing"

func TestDeriveParams_Defaults(t *testing.T) {
	cfg := DefaultConfig().Classifier
	p := DeriveParams(cfg, nil)

	if p.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", p.TopK)
	}
	if p.PThreshold != 0.65 || p.MinTopSim != 0.25 {
		t.Errorf("unexpected thresholds: %+v", p.DecisionParams)
	}
	if p.Temperature != 0.1 || p.MinNeighbors != 2 || p.MinMargin != 0 {
		t.Errorf("unexpected decision params: %+v", p.DecisionParams)
	}
}

func TestDeriveParams_Clamping(t *testing.T) {
	cfg := DefaultConfig().Classifier
	cfg.MaxTopK = 50

	tests := []struct {
		name      string
		overrides map[string]string
		check     func(t *testing.T, cfg ClassifierConfig, overrides map[string]string)
	}{
		{
			name:      "topK clamped to maxTopK",
			overrides: map[string]string{"topK": "999"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.TopK != 50 {
					t.Errorf("expected TopK=50, got %d", p.TopK)
				}
			},
		},
		{
			name:      "k alias",
			overrides: map[string]string{"k": "3"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.TopK != 3 {
					t.Errorf("expected TopK=3, got %d", p.TopK)
				}
			},
		},
		{
			name:      "non-positive topK falls back",
			overrides: map[string]string{"topK": "0"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.TopK != cfg.TopK {
					t.Errorf("expected default TopK, got %d", p.TopK)
				}
			},
		},
		{
			name:      "fractional topK truncated",
			overrides: map[string]string{"topK": "2.7"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.TopK != 2 {
					t.Errorf("expected TopK=2, got %d", p.TopK)
				}
			},
		},
		{
			name:      "pThreshold clamped to 1",
			overrides: map[string]string{"pThreshold": "1.4"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.PThreshold != 1.0 {
					t.Errorf("expected PThreshold=1.0, got %f", p.PThreshold)
				}
			},
		},
		{
			name:      "minTopSim clamped to 0",
			overrides: map[string]string{"minTopSim": "-0.3"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.MinTopSim != 0 {
					t.Errorf("expected MinTopSim=0, got %f", p.MinTopSim)
				}
			},
		},
		{
			name:      "unparsable temperature falls back",
			overrides: map[string]string{"temperature": "abc"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.Temperature != cfg.Temperature {
					t.Errorf("expected default temperature, got %f", p.Temperature)
				}
			},
		},
		{
			name:      "negative temperature falls back",
			overrides: map[string]string{"temperature": "-1"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.Temperature != cfg.Temperature {
					t.Errorf("expected default temperature, got %f", p.Temperature)
				}
			},
		},
		{
			name:      "infinite pThreshold falls back",
			overrides: map[string]string{"pThreshold": "Inf"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.PThreshold != cfg.PThreshold {
					t.Errorf("expected default PThreshold, got %f", p.PThreshold)
				}
			},
		},
		{
			name:      "zero minNeighbors falls back",
			overrides: map[string]string{"minNeighbors": "0"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.MinNeighbors != cfg.MinNeighbors {
					t.Errorf("expected default MinNeighbors, got %d", p.MinNeighbors)
				}
			},
		},
		{
			name:      "minMargin override",
			overrides: map[string]string{"minMargin": "0.15"},
			check: func(t *testing.T, cfg ClassifierConfig, o map[string]string) {
				if p := DeriveParams(cfg, o); p.MinMargin != 0.15 {
					t.Errorf("expected MinMargin=0.15, got %f", p.MinMargin)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, cfg, tc.overrides)
		})
	}
}

func TestDeriveParams_Deterministic(t *testing.T) {
	cfg := DefaultConfig().Classifier
	overrides := map[string]string{"topK": "12", "temperature": "0.3"}

	a := DeriveParams(cfg, overrides)
	b := DeriveParams(cfg, overrides)
	if a != b {
		t.Errorf("expected identical params, got %+v and %+v", a, b)
	}
	if len(overrides) != 2 {
		t.Error("overrides must not be mutated")
	}
}

func TestParseOverrides(t *testing.T) {
	got, err := ParseOverrides([]string{"topK=10", " pThreshold = 0.7 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["topK"] != "10" || got["pThreshold"] != "0.7" {
		t.Errorf("unexpected overrides: %v", got)
	}

	if _, err := ParseOverrides([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
}
