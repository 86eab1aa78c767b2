package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"inu/internal/domain"
	"inu/internal/usecase"
)

var (
	samplesVersion string
	samplesLabel   string
	samplesLimit   int
	samplesJSON    bool
	statsJSON      bool
	voteVoter      string
	voteJSON       bool
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "List stored samples",
	Args:  cobra.NoArgs,
	RunE:  runSamples,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sample counts per label",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List known labels",
	Args:  cobra.NoArgs,
	RunE:  runLabels,
}

var voteCmd = &cobra.Command{
	Use:   "vote <sample-id> <up|down>",
	Short: "Vote on a sample",
	Long: `Up- or down-vote a sample. Each net vote shifts the sample's similarity
by the configured vote weight when it is ranked as a neighbor. Casting the
same vote again withdraws it.

Examples:
  inu vote 3f0c... up
  inu vote 3f0c... down --voter alice`,
	Args: cobra.ExactArgs(2),
	RunE: runVote,
}

func init() {
	rootCmd.AddCommand(samplesCmd, statsCmd, labelsCmd, voteCmd)

	samplesCmd.Flags().StringVar(&samplesVersion, "version", "", "only samples of this embedder version")
	samplesCmd.Flags().StringVarP(&samplesLabel, "label", "l", "", "only samples with this label")
	samplesCmd.Flags().IntVarP(&samplesLimit, "limit", "n", 0, "maximum number of samples (0 for all)")
	samplesCmd.Flags().BoolVar(&samplesJSON, "json", false, "output as JSON")

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")

	voteCmd.Flags().StringVar(&voteVoter, "voter", "", "voter identity (default derived from host and user)")
	voteCmd.Flags().BoolVar(&voteJSON, "json", false, "output as JSON")
}

func runSamples(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var label domain.Label
	if samplesLabel != "" {
		l, err := domain.ParseLabel(samplesLabel)
		if err != nil {
			return err
		}
		label = l
	}

	a, err := newApp(ctx, GetConfig(), GetRootDir(), needs{})
	if err != nil {
		return err
	}
	defer a.Close()

	samples, err := a.samples.Samples(ctx, samplesVersion, label, samplesLimit)
	if err != nil {
		return err
	}

	if samplesJSON {
		output, _ := json.MarshalIndent(map[string]any{"samples": samples}, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(samples) == 0 {
		fmt.Println("No samples found.")
		return nil
	}
	for _, s := range samples {
		fmt.Printf("%s  %-5s  %-16s  %s  %+d\n", s.ID, s.Label, s.EmbedderVersion, s.CreatedAt, s.Score)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, GetConfig(), GetRootDir(), needs{})
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.samples.Stats(ctx)
	if err != nil {
		return err
	}
	labels, err := a.samples.Labels(ctx)
	if err != nil {
		return err
	}

	if statsJSON {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Samples: %d\n", stats.Total)
	for _, l := range labels {
		fmt.Printf("  %-5s  %d\n", l, stats.Counts[l])
	}
	return nil
}

func runLabels(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, GetConfig(), GetRootDir(), needs{})
	if err != nil {
		return err
	}
	defer a.Close()

	labels, err := a.samples.Labels(ctx)
	if err != nil {
		return err
	}
	for _, l := range labels {
		fmt.Println(l)
	}
	return nil
}

func runVote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	vote, err := parseVote(args[1])
	if err != nil {
		return err
	}

	voter := voteVoter
	if voter == "" {
		voter = defaultVoter()
	}

	a, err := newApp(ctx, GetConfig(), GetRootDir(), needs{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.samples.Vote(ctx, args[0], usecase.VoterID(voter), vote)
	if err != nil {
		return fmt.Errorf("vote failed: %w", err)
	}

	if voteJSON {
		output, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	switch res.UserVote {
	case 0:
		fmt.Printf("Vote withdrawn. Score for %s: %+d\n", res.SampleID, res.Score)
	default:
		fmt.Printf("Voted %+d. Score for %s: %+d\n", res.UserVote, res.SampleID, res.Score)
	}
	return nil
}

func parseVote(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "+1", "1", "+":
		return 1, nil
	case "down", "-1", "-":
		return -1, nil
	}
	return 0, fmt.Errorf("%w: vote must be up or down, got %q", domain.ErrInput, s)
}

func defaultVoter() string {
	host, _ := os.Hostname()
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	return host + ":" + name
}
