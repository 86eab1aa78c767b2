package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"inu/internal/usecase"
)

var (
	predictParams []string
	predictJSON   bool
)

var predictCmd = &cobra.Command{
	Use:   "predict <image>...",
	Short: "Classify images against the corpus",
	Long: `Classify images by their nearest labeled neighbors. The answer is UNKNOWN
when there are too few neighbors, the best match is too far away, or no label
is probable enough.

Examples:
  inu predict ./mystery.jpg
  inu predict ./a.jpg ./b.jpg -p topK=9 -p pThreshold=0.8 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)
	predictCmd.Flags().StringArrayVarP(&predictParams, "param", "p", nil, "decision parameter override key=value (topK, pThreshold, minTopSim, temperature, minNeighbors, minMargin)")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "output as JSON")
}

type predictOutput struct {
	Path string `json:"path"`
	*usecase.Prediction
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	params, err := resolveParams(cfg, predictParams)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, GetRootDir(), needs{embedder: true})
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]predictOutput, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		p, err := a.predict.Predict(ctx, data, params)
		if err != nil {
			return fmt.Errorf("%s: prediction failed: %w", path, err)
		}
		results = append(results, predictOutput{Path: path, Prediction: p})
	}

	if predictJSON {
		var output []byte
		if len(results) == 1 {
			output, _ = json.MarshalIndent(results[0], "", "  ")
		} else {
			output, _ = json.MarshalIndent(results, "", "  ")
		}
		fmt.Println(string(output))
		return nil
	}

	for i, r := range results {
		if i > 0 {
			fmt.Println()
		}
		fmt.Print(renderPrediction(r.Path, r.Prediction, cfg.Classifier.CanonicalLabel))
	}
	return nil
}
