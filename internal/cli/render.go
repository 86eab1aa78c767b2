package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"inu/internal/domain"
	"inu/internal/usecase"
)

type styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Unknown lipgloss.Style
	Good    lipgloss.Style
	Bad     lipgloss.Style
	Dim     lipgloss.Style
	Box     lipgloss.Style
}

var theme = newStyles(lipgloss.Color("#00ff9f"), lipgloss.Color("#6e7681"))

func newStyles(primary, dim lipgloss.Color) styles {
	return styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(primary),
		Label:   lipgloss.NewStyle().Bold(true).Foreground(primary),
		Unknown: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e3b341")),
		Good:    lipgloss.NewStyle().Foreground(lipgloss.Color("#3fb950")),
		Bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("#f85149")),
		Dim:     lipgloss.NewStyle().Foreground(dim),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(0, 1),
	}
}

func renderLabel(l domain.Label) string {
	if l == domain.Unknown {
		return theme.Unknown.Render(string(l))
	}
	return theme.Label.Render(string(l))
}

func renderPrediction(path string, p *usecase.Prediction, canonical string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", theme.Title.Render(path), renderLabel(p.Label))
	fmt.Fprintf(&b, "  score %.3f  p(%s) %.3f  topSim %.3f\n", p.Score, canonical, p.CanonicalProb, p.TopSim)
	fmt.Fprintf(&b, "  %s\n", theme.Dim.Render(fmt.Sprintf("%s, %d samples, topK %d, pThreshold %.2f, minTopSim %.2f, T %.2f",
		p.EmbedderVersion, p.SampleCount, p.Params.TopK, p.Params.PThreshold, p.Params.MinTopSim, p.Params.Temperature)))

	if len(p.LabelProbs) > 0 {
		labels := make([]domain.Label, 0, len(p.LabelProbs))
		for l := range p.LabelProbs {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(i, j int) bool {
			if p.LabelProbs[labels[i]] != p.LabelProbs[labels[j]] {
				return p.LabelProbs[labels[i]] > p.LabelProbs[labels[j]]
			}
			return labels[i] < labels[j]
		})
		for _, l := range labels {
			fmt.Fprintf(&b, "  %-5s %s %.3f\n", l, bar(p.LabelProbs[l], 20), p.LabelProbs[l])
		}
	}

	for i, n := range p.Neighbors {
		fmt.Fprintf(&b, "  %2d. %-5s %.3f  %s\n", i+1, n.Label, n.Sim, theme.Dim.Render(n.ID))
	}
	return b.String()
}

func renderScorecard(r *usecase.EvaluationReport, examples int) string {
	m := r.Metrics
	c := m.Confusion

	var card strings.Builder
	fmt.Fprintf(&card, "%s\n", theme.Title.Render(fmt.Sprintf("Leave-one-out evaluation: %s (%d samples)", r.Version, r.SampleCount)))
	fmt.Fprintf(&card, "%s\n\n", theme.Dim.Render(fmt.Sprintf("positive %s, topK %d, pThreshold %.2f, minTopSim %.2f, T %.2f, minNeighbors %d, minMargin %.2f",
		r.Positive, r.Params.TopK, r.Params.PThreshold, r.Params.MinTopSim, r.Params.Temperature, r.Params.MinNeighbors, r.Params.MinMargin)))

	rows := []struct {
		name  string
		value float64
	}{
		{"accuracy", m.Accuracy},
		{"precision", m.Precision},
		{"recall", m.Recall},
		{"f1", m.F1},
		{"unknown", m.UnknownRate},
	}
	for _, row := range rows {
		fmt.Fprintf(&card, "%-10s %s %.3f\n", row.name, bar(row.value, 24), row.value)
	}

	fmt.Fprintf(&card, "\n%-10s %s %s\n", "", padRight("pred +", 8), padRight("pred -", 8))
	fmt.Fprintf(&card, "%-10s %s %s\n", "truth +", theme.Good.Render(padRight(fmt.Sprint(c.TP), 8)), theme.Bad.Render(padRight(fmt.Sprint(c.FN), 8)))
	fmt.Fprintf(&card, "%-10s %s %s\n", "truth -", theme.Bad.Render(padRight(fmt.Sprint(c.FP), 8)), theme.Good.Render(padRight(fmt.Sprint(c.TN), 8)))
	fmt.Fprintf(&card, "%-10s %d positive, %d negative", "unknown", c.UnknownPositive, c.UnknownNegative)

	var b strings.Builder
	b.WriteString(theme.Box.Render(card.String()))
	b.WriteString("\n")

	if len(r.PerLabel) > 1 {
		labels := make([]domain.Label, 0, len(r.PerLabel))
		for l := range r.PerLabel {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

		b.WriteString("\nPer label (one vs rest):\n")
		for _, l := range labels {
			pm := r.PerLabel[l]
			fmt.Fprintf(&b, "  %-5s  precision %.3f  recall %.3f  f1 %.3f\n", l, pm.Precision, pm.Recall, pm.F1)
		}
	}

	if examples > 0 && len(r.Examples) > 0 {
		b.WriteString("\nExamples:\n")
		for _, ex := range r.Examples[:min(examples, len(r.Examples))] {
			mark := theme.Good.Render("ok")
			if ex.Prediction != ex.Truth {
				mark = theme.Bad.Render("xx")
			}
			fmt.Fprintf(&b, "  %s %-5s -> %s  pDog %.3f  topSim %.3f  %s\n",
				mark, ex.Truth, renderLabel(ex.Prediction), ex.PDog, ex.TopSim, theme.Dim.Render(ex.ID))
		}
	}
	return b.String()
}

// bar renders v in [0, 1] as a fixed-width meter.
func bar(v float64, width int) string {
	filled := int(v*float64(width) + 0.5)
	filled = max(0, min(width, filled))
	return theme.Good.Render(strings.Repeat("█", filled)) + theme.Dim.Render(strings.Repeat("░", width-filled))
}

func padRight(s string, width int) string {
	return s + strings.Repeat(" ", max(0, width-lipgloss.Width(s)))
}
