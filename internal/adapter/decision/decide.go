package decision

import (
	"math"
	"sort"

	"inu/internal/domain"
)

const (
	DefaultTemperatureFloor = 0.01
	DefaultCanonicalLabel   = domain.Label("DOG")

	// abstainProb is the canonical probability reported when the rule abstains
	// before any vote is taken.
	abstainProb = 0.5
)

// Decider turns ranked neighbors into a label decision using a
// temperature-scaled softmax vote with abstention.
type Decider struct {
	temperatureFloor float64
	canonical        domain.Label
}

// Option configures a Decider.
type Option func(*Decider)

// WithTemperatureFloor sets the lower bound applied to the temperature.
func WithTemperatureFloor(floor float64) Option {
	return func(d *Decider) {
		if floor > 0 && !math.IsInf(floor, 0) {
			d.temperatureFloor = floor
		}
	}
}

// WithCanonicalLabel sets the label reported as CanonicalProb.
func WithCanonicalLabel(label domain.Label) Option {
	return func(d *Decider) {
		if label != "" {
			d.canonical = label
		}
	}
}

func NewDecider(opts ...Option) *Decider {
	d := &Decider{
		temperatureFloor: DefaultTemperatureFloor,
		canonical:        DefaultCanonicalLabel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decide applies the decision rule with default options.
func Decide(neighbors []domain.Neighbor, params domain.DecisionParams) domain.Decision {
	return NewDecider().Decide(neighbors, params)
}

type labelProb struct {
	label domain.Label
	prob  float64
}

// Decide is total: every input yields a well-formed decision. neighbors must
// be sorted by similarity descending, as returned by KNN.
func (d *Decider) Decide(neighbors []domain.Neighbor, params domain.DecisionParams) domain.Decision {
	var topSim float64
	if len(neighbors) > 0 {
		topSim = neighbors[0].Sim
	}

	if len(neighbors) == 0 || len(neighbors) < params.MinNeighbors || topSim < params.MinTopSim {
		return abstain(topSim)
	}

	temp := math.Max(params.Temperature, d.temperatureFloor)
	if math.IsNaN(temp) {
		temp = d.temperatureFloor
	}

	logits := make([]float64, len(neighbors))
	maxLogit := math.Inf(-1)
	for i, n := range neighbors {
		logits[i] = n.Sim / temp
		if isFinite(logits[i]) && logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}

	weights := make(map[domain.Label]float64)
	var total float64
	for i, n := range neighbors {
		var w float64
		if isFinite(logits[i]) {
			w = math.Exp(logits[i] - maxLogit)
		}
		total += w
		weights[n.Label] += w
	}

	probs := make(map[domain.Label]float64, len(weights))
	ranked := make([]labelProb, 0, len(weights))
	for label, w := range weights {
		var p float64
		if total > 0 {
			p = w / total
		}
		probs[label] = p
		ranked = append(ranked, labelProb{label: label, prob: p})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].prob != ranked[j].prob {
			return ranked[i].prob > ranked[j].prob
		}
		return ranked[i].label < ranked[j].label
	})

	best := ranked[0]
	var second float64
	if len(ranked) > 1 {
		second = ranked[1].prob
	}

	label := domain.Unknown
	if best.prob >= params.PThreshold && best.prob-second >= params.MinMargin {
		label = best.label
	}

	canonicalProb, ok := probs[d.canonical]
	if !ok {
		canonicalProb = best.prob
	}

	return domain.Decision{
		Label:         label,
		Score:         best.prob,
		CanonicalProb: canonicalProb,
		TopSim:        topSim,
		LabelProbs:    probs,
	}
}

func abstain(topSim float64) domain.Decision {
	return domain.Decision{
		Label:         domain.Unknown,
		Score:         0,
		CanonicalProb: abstainProb,
		TopSim:        topSim,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
