package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/notargets/meshmotion/config"
	"github.com/notargets/meshmotion/driver"
	"github.com/notargets/meshmotion/utils"
)

type options struct {
	debug   bool
	ranks   int
	metrics string
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "meshmotion",
		Short:        "Deform volume meshes to follow prescribed boundary motion",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().IntVarP(&opts.ranks, "ranks", "n", 0, "number of ranks (0 takes partition.ranks from the configuration)")
	cmd.PersistentFlags().StringVar(&opts.metrics, "metrics", "", "write Prometheus metrics in text format to this file after the run (- for stdout)")

	cmd.AddCommand(
		modeCmd("deform", "Deform the mesh once and write it", driver.ModeDeform, &opts),
		modeCmd("solve", "Select a driver variant for the configuration and run it", driver.ModeSolve, &opts),
		validateCmd(),
	)
	return cmd
}

func modeCmd(use, short string, mode driver.Mode, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [config]",
		Short: short,
		Long:  short + ". The configuration defaults to " + config.DefaultFile + ".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFile
			if len(args) == 1 {
				path = args[0]
			}
			ctx := withRunLogger(cmd.Context(), cmd.ErrOrStderr(), opts.debug)
			runErr := driver.Launch(ctx, path, opts.ranks, mode)
			if runErr != nil {
				utils.Logger(ctx).Error("run failed", "error", runErr)
			}
			if err := dumpMetrics(opts.metrics, cmd.OutOrStdout()); err != nil && runErr == nil {
				return err
			}
			return runErr
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config]",
		Short: "Check a configuration and report the driver it selects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFile
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			meshes, err := driver.ReadMeshes(cfg)
			if err != nil {
				return err
			}
			sel, err := driver.Select(driver.PredicatesFor(cfg, len(meshes)))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "driver: %s\nzones: %d\ntime instances: %d\n",
				sel.Variant, sel.NZone, sel.NTimeInstances)
			return nil
		},
	}
}

func withRunLogger(ctx context.Context, w io.Writer, debug bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	log := utils.NewLogger(w, debug).With("run_id", uuid.NewString())
	return utils.WithLogger(ctx, log)
}

// dumpMetrics writes every registered metric family to path
func dumpMetrics(path string, stdout io.Writer) error {
	if path == "" {
		return nil
	}
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	w := stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
