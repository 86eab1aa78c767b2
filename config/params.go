package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"inu/internal/domain"
)

// Override keys accepted by DeriveParams.
const (
	ParamTopK         = "topK"
	ParamK            = "k"
	ParamPThreshold   = "pThreshold"
	ParamMinTopSim    = "minTopSim"
	ParamTemperature  = "temperature"
	ParamMinNeighbors = "minNeighbors"
	ParamMinMargin    = "minMargin"
)

// DeriveParams merges static defaults with per-request overrides. Overrides
// that are absent or do not parse fall back to the defaults; topK is clamped
// to [1, MaxTopK] and probabilities to [0, 1].
func DeriveParams(cfg ClassifierConfig, overrides map[string]string) domain.RuntimeParams {
	maxTopK := max(1, cfg.MaxTopK)

	rawTopK, ok := parseParam(overrides, ParamTopK)
	if !ok {
		rawTopK, ok = parseParam(overrides, ParamK)
	}
	topK := positiveOr(rawTopK, ok, float64(cfg.TopK))
	topK = clamp(math.Floor(topK), 1, float64(maxTopK))

	pThreshold, ok := parseParam(overrides, ParamPThreshold)
	if !ok {
		pThreshold = cfg.PThreshold
	}
	minTopSim, ok := parseParam(overrides, ParamMinTopSim)
	if !ok {
		minTopSim = cfg.MinTopSim
	}

	temperature, ok := parseParam(overrides, ParamTemperature)
	temperature = positiveOr(temperature, ok, cfg.Temperature)

	minNeighbors, ok := parseParam(overrides, ParamMinNeighbors)
	minNeighbors = positiveOr(minNeighbors, ok, float64(cfg.MinNeighbors))

	minMargin, ok := parseParam(overrides, ParamMinMargin)
	if !ok || minMargin < 0 {
		minMargin = cfg.MinMargin
	}

	return domain.RuntimeParams{
		TopK: int(topK),
		DecisionParams: domain.DecisionParams{
			PThreshold:  clamp(pThreshold, 0, 1),
			MinTopSim:   clamp(minTopSim, 0, 1),
			Temperature: temperature,
			// fewer than 2.5 neighbors means fewer than 3
			MinNeighbors: int(math.Ceil(minNeighbors)),
			MinMargin:    max(0, minMargin),
		},
	}
}

// ParseOverrides turns "key=value" pairs into an override map.
func ParseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", p)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func parseParam(overrides map[string]string, key string) (float64, bool) {
	raw, ok := overrides[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func positiveOr(v float64, ok bool, fallback float64) float64 {
	if ok && v > 0 {
		return v
	}
	return fallback
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}
