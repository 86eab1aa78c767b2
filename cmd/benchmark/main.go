package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"inu/config"
	"inu/internal/adapter/decision"
	"inu/internal/adapter/store"
	"inu/internal/domain"
	"inu/internal/usecase"
)

func main() {
	root := flag.String("dir", ".", "Directory holding the .inu sample store")
	version := flag.String("version", "", "Embedder version to evaluate (default: version of the first sample)")
	thresholds := flag.String("thresholds", "0.5,0.55,0.6,0.65,0.7,0.75,0.8,0.85,0.9", "Comma separated pThreshold values")
	topK := flag.Int("k", 0, "Neighbors per prediction (default from config)")
	flag.Parse()

	cfg, err := config.LoadFromDir(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv(os.LookupEnv)

	grid, err := parseGrid(*thresholds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid thresholds: %v\n", err)
		os.Exit(1)
	}

	dbPath := cfg.StorePath(*root)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "No sample store at %s. Run 'inu learn' first.\n", dbPath)
		os.Exit(1)
	}
	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening sample store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	cl := cfg.Classifier
	canonical := domain.Label(cl.CanonicalLabel)
	decider := decision.NewDecider(
		decision.WithTemperatureFloor(cl.TemperatureFloor),
		decision.WithCanonicalLabel(canonical),
	)
	evaluate := usecase.NewEvaluateUseCase(st, decider, canonical, cl.MaxEvalSamples, nil)

	overrides := map[string]string{}
	if *topK > 0 {
		overrides[config.ParamTopK] = strconv.Itoa(*topK)
	}

	fmt.Println("THRESHOLD SWEEP")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("%-10s %8s %8s %8s %8s %8s %8s\n", "pThresh", "acc", "prec", "recall", "f1", "unknown", "support")
	fmt.Println(strings.Repeat("-", 70))

	ctx := context.Background()
	best, bestF1 := -1.0, -1.0
	for _, p := range grid {
		overrides[config.ParamPThreshold] = strconv.FormatFloat(p, 'f', -1, 64)
		params := config.DeriveParams(cl, overrides)

		report, err := evaluate.Evaluate(ctx, params, *version, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Evaluation error: %v\n", err)
			os.Exit(1)
		}

		m := report.Metrics
		fmt.Printf("%-10.2f %8.3f %8.3f %8.3f %8.3f %8.3f %8d\n",
			params.PThreshold, m.Accuracy, m.Precision, m.Recall, m.F1, m.UnknownRate, m.Support)

		if m.F1 > bestF1 {
			best, bestF1 = params.PThreshold, m.F1
		}
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Best F1 for %s: %.3f at pThreshold %.2f\n", canonical, bestF1, best)
}

func parseGrid(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%q: must be within [0, 1]", part)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no thresholds given")
	}
	return out, nil
}
