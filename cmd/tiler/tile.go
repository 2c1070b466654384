package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"vectiler/internal/raster"
	"vectiler/internal/render"
)

func newTileCmd(a *app) *cobra.Command {
	var (
		out         string
		supersample int
		black       bool
	)
	cmd := &cobra.Command{
		Use:   "tile <layer> <z> <x> <y>",
		Short: "Render one tile to a PNG file",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := render.TileRequest{Layer: args[0], Supersample: supersample, Mode: raster.Indexed}
			if !cmd.Flags().Changed("supersample") {
				req.Supersample = a.conf.Render.Supersample
			}
			if black {
				req.Mode = raster.Direct
			}
			for i, dst := range []*int{&req.Z, &req.X, &req.Y} {
				v, err := strconv.Atoi(args[i+1])
				if err != nil {
					return fmt.Errorf("bad tile coordinate %q: %w", args[i+1], err)
				}
				*dst = v
			}

			data, err := a.svc.GetTile(req)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("%s_%d_%d_%d.png", req.Layer, req.Z, req.X, req.Y)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			a.log.Infof("tile written to %s", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output `file` (default <layer>_<z>_<x>_<y>.png)")
	cmd.Flags().IntVar(&supersample, "supersample", render.DefaultSupersample, "zoom levels to render above z before downsampling")
	cmd.Flags().BoolVar(&black, "black", false, "burn every feature in the direct color instead of its own")
	return cmd
}
