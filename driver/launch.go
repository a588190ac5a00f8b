package driver

import (
	"context"
	"fmt"

	"github.com/notargets/meshmotion/comm"
	"github.com/notargets/meshmotion/config"
	"github.com/notargets/meshmotion/geometry"
	"github.com/notargets/meshmotion/utils"
)

// Mode selects what Launch runs
type Mode int

const (
	// ModeDeform runs the deformation-only driver: Run, Output, Postprocessing
	ModeDeform Mode = iota
	// ModeSolve selects a driver variant and runs StartSolver, Postprocessing
	ModeSolve
)

// Launch loads the configuration at path (DefaultFile when empty), selects
// the driver and runs it on ranks in-process ranks; ranks < 1 takes the
// configured count. Configuration errors are reported before any rank
// starts.
func Launch(ctx context.Context, path string, ranks int, mode Mode) error {
	if path == "" {
		path = config.DefaultFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if ranks < 1 {
		ranks = cfg.Partition.Ranks
	}
	meshes, err := ReadMeshes(cfg)
	if err != nil {
		return err
	}
	return LaunchConfig(ctx, cfg, meshes, ranks, mode)
}

// LaunchConfig runs a loaded configuration on already read meshes
func LaunchConfig(ctx context.Context, cfg *config.Config, meshes []*geometry.MeshData, ranks int, mode Mode) error {
	log := utils.Logger(ctx)

	var sel Selection
	if mode == ModeSolve {
		var err error
		if sel, err = Select(PredicatesFor(cfg, len(meshes))); err != nil {
			return err
		}
		log.Info("driver selected", "variant", sel.Variant.String(), "zones", sel.NZone,
			"time_instances", sel.NTimeInstances)
	}

	return comm.Run(ctx, ranks, func(ctx context.Context, c *comm.Comm) error {
		ctx = utils.WithLogger(ctx, utils.Logger(ctx).With("rank", c.Rank()))
		switch mode {
		case ModeDeform:
			return runDeformation(ctx, cfg, meshes, c)
		case ModeSolve:
			return runSolver(ctx, sel, cfg, meshes, c)
		}
		return fmt.Errorf("unknown mode %d", mode)
	})
}

func runDeformation(ctx context.Context, cfg *config.Config, meshes []*geometry.MeshData, c *comm.Comm) error {
	d, err := NewDeformation(ctx, cfg, c, WithMeshes(meshes))
	if err != nil {
		return err
	}
	defer d.Postprocessing(ctx)
	if err := d.Run(ctx); err != nil {
		return err
	}
	if err := d.Output(ctx); err != nil {
		return err
	}
	return d.Postprocessing(ctx)
}

func runSolver(ctx context.Context, sel Selection, cfg *config.Config, meshes []*geometry.MeshData, c *comm.Comm) error {
	s, err := NewSolver(ctx, sel, cfg, c, WithMeshes(meshes))
	if err != nil {
		return err
	}
	defer s.Postprocessing(ctx)
	if err := s.StartSolver(ctx); err != nil {
		return err
	}
	return s.Postprocessing(ctx)
}
