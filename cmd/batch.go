package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/batch"
	"github.com/JakeFAU/logohunter/internal/hunter"
)

func newBatchCmd() *cobra.Command {
	var (
		format  string
		size    string
		noSave  bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "batch FILE|-",
		Short: "Hunt logos for a list of domains",
		Long: `Reads one domain per line from FILE (or stdin for -), skipping blank
lines and # comments, hunts them over a worker pool and writes one JSON line per
domain to stdout. Winners are saved through the configured storage backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			opts, err := hunter.ParseOptions(format, size)
			if err != nil {
				return err
			}
			jobs, err := readJobs(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			cfg := appInstance.Config().Batch
			if workers > 0 {
				cfg.Workers = workers
			}
			runner := appInstance.Batch(cfg, !noSave)

			enc := json.NewEncoder(cmd.OutOrStdout())
			var failed int
			err = runner.Run(cmd.Context(), jobs, opts, func(r batch.Result) {
				if r.Outcome == batch.OutcomeError {
					failed++
				}
				if encErr := enc.Encode(r); encErr != nil {
					appInstance.Logger().Error("Write result failed", zap.String("domain", r.Domain), zap.Error(encErr))
				}
			})
			if err != nil {
				return err
			}
			if failed > 0 {
				appInstance.Logger().Warn("Some domains failed", zap.Int("failed", failed), zap.Int("total", len(jobs)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "PNG", "output format for saved logos")
	cmd.Flags().StringVar(&size, "size", "", "output size, WxH or N for a square")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "only report results, do not store logos")
	cmd.Flags().IntVar(&workers, "workers", 0, "override batch.workers")
	return cmd
}

func readJobs(stdin io.Reader, name string) ([]batch.Job, error) {
	if name == "-" {
		return batch.ReadJobs(stdin)
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open domain list: %w", err)
	}
	defer f.Close()
	return batch.ReadJobs(f)
}
