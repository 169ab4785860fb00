package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/logohunter/internal/candidate"
)

const (
	candidatesListed    = 10
	breakdownsByDefault = 3
)

func newCandidatesCmd() *cobra.Command {
	var (
		allScores bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "candidates DOMAIN",
		Short: "List ranked logo candidates without fetching them",
		Long: `Discovers and scores every logo candidate of DOMAIN. The top 10 are
listed with the rule breakdown of the top 3; --all-scores lists every candidate
with its breakdown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cands, err := appInstance.Hunter().Discover(cmd.Context(), args[0], appInstance.Emitter())
			if err != nil {
				return fmt.Errorf("discover %s: %w", args[0], err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), cands)
			}
			printCandidates(cmd.OutOrStdout(), args[0], cands, allScores)
			return nil
		},
	}
	cmd.Flags().BoolVar(&allScores, "all-scores", false, "list every candidate with its score breakdown")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print candidates as JSON")
	return cmd
}

func printCandidates(out io.Writer, domain string, cands []candidate.Candidate, all bool) {
	if len(cands) == 0 {
		fmt.Fprintf(out, "No candidates found for %s\n", domain)
		return
	}
	listed, explained := candidatesListed, breakdownsByDefault
	if all {
		listed, explained = len(cands), len(cands)
	}
	listed = min(listed, len(cands))

	fmt.Fprintf(out, "%d candidates for %s\n\n", len(cands), domain)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tFORMAT\tSIZE\tCONTEXT\tURL")
	for i, c := range cands[:listed] {
		score, _ := c.Score()
		size := "-"
		if !c.Declared.IsZero() {
			size = c.Declared.String()
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", i+1, score, c.Format, size, joinTags(c.Tags()), c.URL)
	}
	_ = tw.Flush()

	for i, c := range cands[:min(explained, len(cands))] {
		fmt.Fprintf(out, "\n#%d %s\n", i+1, c.URL)
		for _, hit := range c.Breakdown() {
			fmt.Fprintf(out, "  %+5d  %s\n", hit.Weight, hit.Rule)
		}
	}
}

func joinTags(tags []candidate.Tag) string {
	if len(tags) == 0 {
		return "-"
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}
