package main

import (
	"errors"

	"github.com/spf13/cobra"

	"vectiler/internal/slicer"
)

func newPyramidCmd(a *app) *cobra.Command {
	var (
		minZoom, maxZoom int
		quiet            bool
	)
	cmd := &cobra.Command{
		Use:   "pyramid <layer>",
		Short: "Pre-render a zoom range of a layer",
		Long: `Renders every non-empty tile of the layer from --min to --max, one zoom
level per worker. Finished tiles are checkpointed, so an interrupted run
resumes where it stopped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("min") {
				minZoom = a.conf.Pyramid.MinZoom
			}
			if !cmd.Flags().Changed("max") {
				maxZoom = a.conf.Pyramid.MaxZoom
			}

			exit := NewSafeExit()
			defer exit.Stop()
			exit.Register(a.svc.Abort)

			var progress slicer.Progress
			if !quiet {
				progress = barProgress{}
			}
			err := a.svc.BuildPyramid(args[0], minZoom, maxZoom, progress)
			if errors.Is(err, slicer.ErrAborted) {
				a.log.Warnf("pyramid %s aborted, rerun to resume", args[0])
			}
			if err == nil {
				a.log.Infof("pyramid written to %s", a.svc.PyramidPath(args[0]))
			}
			return err
		},
	}
	cmd.Flags().IntVar(&minZoom, "min", 0, "min zoom (default pyramid.minZoom)")
	cmd.Flags().IntVar(&maxZoom, "max", 0, "max zoom (default pyramid.maxZoom)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide progress bars")
	return cmd
}
