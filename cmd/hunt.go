package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/hunter"
	"github.com/JakeFAU/logohunter/internal/storage"
	"github.com/JakeFAU/logohunter/internal/storage/local"
)

// saveToArchive is the --save value meaning "use the configured storage".
const saveToArchive = "-"

type huntFlags struct {
	format string
	size   string
	save   string
	json   bool
}

func newHuntCmd() *cobra.Command {
	var flags huntFlags
	cmd := &cobra.Command{
		Use:   "hunt DOMAIN",
		Short: "Find, validate and convert the logo of one site",
		Long: `Runs the full pipeline for DOMAIN and prints the selected logo.

With --save the logo is written through the configured storage backend; with
--save=DIR it is written under DIR/<domain>/logo.<ext> instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHunt(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.format, "format", "PNG", "output format (PNG, JPG, GIF, SVG)")
	cmd.Flags().StringVar(&flags.size, "size", "", "output size, WxH or N for a square")
	cmd.Flags().StringVar(&flags.save, "save", "", "save the logo (optionally to DIR)")
	cmd.Flags().Lookup("save").NoOptDefVal = saveToArchive
	cmd.Flags().BoolVar(&flags.json, "json", false, "print the result as JSON")
	return cmd
}

func runHunt(cmd *cobra.Command, domain string, flags huntFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	opts, err := hunter.ParseOptions(flags.format, flags.size)
	if err != nil {
		return err
	}

	logo, err := appInstance.Hunter().Hunt(cmd.Context(), domain, opts, appInstance.Emitter())
	if err != nil {
		return fmt.Errorf("hunt %s: %w", domain, err)
	}
	out := cmd.OutOrStdout()
	if logo == nil {
		if flags.json {
			return writeJSON(out, map[string]any{"domain": domain, "logo": nil})
		}
		fmt.Fprintf(out, "No logo found for %s\n", domain)
		return nil
	}

	var stored string
	if flags.save != "" {
		archive := appInstance.Archive()
		if flags.save != saveToArchive {
			dir, err := local.New(local.Config{BaseDir: flags.save})
			if err != nil {
				return fmt.Errorf("open save directory: %w", err)
			}
			archive = storage.NewArchive(dir, nil, "")
		}
		obj, err := archive.Save(cmd.Context(), logo.Domain, logo.Data, logo.Format)
		if err != nil {
			return fmt.Errorf("save logo: %w", err)
		}
		stored = obj.URI
		appInstance.Logger().Debug("Logo saved", zap.String("uri", stored))
	}

	if flags.json {
		return writeJSON(out, struct {
			*hunter.Logo
			Stored string `json:"stored,omitempty"`
		}{logo, stored})
	}
	printLogo(out, logo, stored)
	return nil
}

func printLogo(out io.Writer, logo *hunter.Logo, stored string) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "domain:\t%s\n", logo.Domain)
	if sel := logo.Selection; sel != nil {
		fmt.Fprintf(tw, "source:\t%s\n", sel.FinalURL)
		declared, _ := sel.Candidate.Score()
		fmt.Fprintf(tw, "score:\t%d (declared %d, rank %d)\n", sel.ValidatedScore, declared, sel.Rank)
	}
	fmt.Fprintf(tw, "format:\t%s %dx%d\n", logo.Format, logo.Width, logo.Height)
	if !logo.Processed {
		fmt.Fprintf(tw, "note:\tconversion failed, original bytes kept\n")
	}
	fmt.Fprintf(tw, "attempts:\t%d\n", len(logo.Attempts))
	fmt.Fprintf(tw, "bytes:\t%d\n", len(logo.Data))
	if stored != "" {
		fmt.Fprintf(tw, "saved:\t%s\n", stored)
	}
	_ = tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
