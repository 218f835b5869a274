package commands

import (
	"encoding/json"
	"fmt"

	"github.com/bryanchriswhite/fremkalder/internal/surface"
	"github.com/spf13/cobra"
)

var meshCmd = &cobra.Command{
	Use:   "mesh ID",
	Short: "Dump a surface's vertex buffer",
	Long: `Print the triangle list of one surface, computed for the configured output
size. Each vertex carries a pixel position and a normalized texture coordinate.`,
	Example: `  # Vertices as JSON
  fremkalder mesh 1 --project stage.json

  # Packed float32 layout (x y z u v per vertex), little-endian
  fremkalder mesh 1 --project stage.json --format binary > mesh.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runMesh,
}

var meshFormat string

type meshDump struct {
	ID        surface.SurfaceID    `json:"id"`
	Triangles int                  `json:"triangles"`
	Vertices  surface.VertexBuffer `json:"vertices"`
}

func init() {
	rootCmd.AddCommand(meshCmd)
	meshCmd.Flags().StringVarP(&projectFlag, "project", "p", "", "project file (default is mapping.project_file)")
	meshCmd.Flags().StringVarP(&meshFormat, "format", "f", "json", "output format (json, floats or binary)")
}

func runMesh(cmd *cobra.Command, args []string) error {
	id, err := parseSurfaceID(args[0])
	if err != nil {
		return err
	}
	session, _, err := openProject()
	if err != nil {
		return err
	}
	mesh, err := session.Mesh(id)
	if err != nil {
		return err
	}
	return writeMesh(cmd, id, mesh)
}

func writeMesh(cmd *cobra.Command, id surface.SurfaceID, mesh surface.VertexBuffer) error {
	out := cmd.OutOrStdout()
	switch meshFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(meshDump{ID: id, Triangles: mesh.Triangles(), Vertices: mesh})
	case "floats":
		encoder := json.NewEncoder(out)
		return encoder.Encode(mesh.Floats())
	case "binary":
		_, err := out.Write(mesh.Bytes())
		return err
	default:
		return fmt.Errorf("unsupported format: %s (use 'json', 'floats' or 'binary')", meshFormat)
	}
}
