package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"vectiler/internal/api"
)

func newIngestCmd(a *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "ingest <file.geojson|file.fgb>",
		Short: "Preprocess a GeoJSON or FlatGeobuf file and store it as a layer",
		Long: `Reads a GeoJSON or FlatGeobuf feature collection, builds its color
table, reprojects it to Web Mercator and stores it. The layer id defaults to the file name up to
its first dot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = api.LayerID(args[0])
			}
			res, err := a.svc.Ingest(args[0], id)
			if res != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				enc.Encode(res)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "layer `id`")
	return cmd
}
