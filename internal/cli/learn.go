package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"inu/internal/domain"
)

var (
	learnLabel string
	learnURL   string
	learnJSON  bool
)

var learnCmd = &cobra.Command{
	Use:   "learn <image-or-dir>...",
	Short: "Add labeled images to the corpus",
	Long: `Embed images and store them as labeled samples. Directories are walked
recursively using the ingest include/exclude patterns.

Examples:
  inu learn --label DOG ./fido.jpg
  inu learn --label CAT ./photos/cats`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLearn,
}

func init() {
	rootCmd.AddCommand(learnCmd)
	learnCmd.Flags().StringVarP(&learnLabel, "label", "l", "", "label for the images, 1-5 characters (required)")
	learnCmd.Flags().StringVar(&learnURL, "url", "", "source URL recorded with a single image")
	learnCmd.Flags().BoolVar(&learnJSON, "json", false, "output as JSON")
	learnCmd.MarkFlagRequired("label")
}

type learnOutput struct {
	ID              string       `json:"id"`
	Label           domain.Label `json:"label"`
	EmbedderVersion string       `json:"embedderVersion"`
	Path            string       `json:"path,omitempty"`
}

func runLearn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if _, err := domain.ParseLabel(learnLabel); err != nil {
		return err
	}

	a, err := newApp(ctx, GetConfig(), GetRootDir(), needs{embedder: true})
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		learned []learnOutput
		errs    []string
	)

	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("path does not exist: %w", err)
		}

		if info.IsDir() {
			var progress func(done, total int)
			if !learnJSON {
				fmt.Printf("Scanning %s...\n", path)
				progress = newProgress("Learning")
			}
			result, err := a.learn.LearnDir(ctx, path, learnLabel, progress)
			if err != nil {
				return fmt.Errorf("learning failed: %w", err)
			}
			for _, s := range result.Samples {
				learned = append(learned, toLearnOutput(s))
			}
			errs = append(errs, result.Errors...)
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		url := learnURL
		if url == "" {
			url = "file://" + path
		}
		sample, err := a.learn.Learn(ctx, data, learnLabel, url)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		learned = append(learned, toLearnOutput(sample))
	}

	if len(learned) > 0 {
		if err := a.recordEmbedder(); err != nil {
			return fmt.Errorf("failed to update schema info: %w", err)
		}
	}

	if learnJSON {
		output, _ := json.MarshalIndent(map[string]any{
			"learned": learned,
			"errors":  errs,
		}, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("\nLearning complete:\n")
	fmt.Printf("  Label:    %s\n", learnLabel)
	fmt.Printf("  Learned:  %d\n", len(learned))
	fmt.Printf("  Failed:   %d\n", len(errs))
	if len(learned) == 1 {
		fmt.Printf("  Sample:   %s (%s)\n", learned[0].ID, learned[0].EmbedderVersion)
	}

	if len(errs) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range errs {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

func toLearnOutput(s domain.Sample) learnOutput {
	return learnOutput{
		ID:              s.ID,
		Label:           s.Label,
		EmbedderVersion: s.EmbedderVersion,
		Path:            s.ImageURL,
	}
}

