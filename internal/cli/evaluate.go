package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	evalParams   []string
	evalVersion  string
	evalJSON     bool
	evalExamples int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the classifier with leave-one-out evaluation",
	Long: `Classify every stored sample against all other samples of the same
embedder version and report accuracy, precision, recall, F1 and the unknown
rate for the canonical label.

Examples:
  inu evaluate
  inu evaluate -p pThreshold=0.8 -p minNeighbors=3
  inu evaluate --version mobilenetv2-10 --json`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringArrayVarP(&evalParams, "param", "p", nil, "decision parameter override key=value")
	evaluateCmd.Flags().StringVar(&evalVersion, "version", "", "embedder version to evaluate (default: version of the first sample)")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "output as JSON")
	evaluateCmd.Flags().IntVar(&evalExamples, "examples", 10, "number of examples to print")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	params, err := resolveParams(cfg, evalParams)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, GetRootDir(), needs{})
	if err != nil {
		return err
	}
	defer a.Close()

	var progress func(done, total int)
	if !evalJSON {
		progress = newProgress("Evaluating")
	}

	report, err := a.evaluate.Evaluate(ctx, params, evalVersion, progress)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if evalJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Print(renderScorecard(report, evalExamples))
	return nil
}
