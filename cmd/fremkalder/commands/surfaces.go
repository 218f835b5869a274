package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"text/tabwriter"

	"github.com/bryanchriswhite/fremkalder/internal/config"
	"github.com/bryanchriswhite/fremkalder/internal/project"
	"github.com/bryanchriswhite/fremkalder/internal/surface"
	"github.com/spf13/cobra"
)

var surfacesCmd = &cobra.Command{
	Use:     "surfaces",
	Aliases: []string{"surface", "s"},
	Short:   "Edit the surfaces of a project file",
	Long: `Add, remove and configure surfaces in a project file without running the
server. The project file defaults to mapping.project_file from the config.`,
}

var surfacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List surfaces",
	Example: `  # List surfaces in table format (default)
  fremkalder surfaces list --project stage.json

  # List surfaces with all points as JSON
  fremkalder surfaces list --project stage.json --format json`,
	Args: cobra.NoArgs,
	RunE: runSurfacesList,
}

var surfacesAddCmd = &cobra.Command{
	Use:       "add rect|triangle",
	Short:     "Add a surface with default corners",
	Example:   `  fremkalder surfaces add rect --project stage.json`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"rect", "triangle"},
	RunE:      runSurfacesAdd,
}

var surfacesRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a surface",
	Args:  cobra.ExactArgs(1),
	RunE:  runSurfacesRemove,
}

var surfacesLockCmd = &cobra.Command{
	Use:   "lock ID",
	Short: "Lock a surface so its points cannot be picked",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runSurfacesLock(cmd, args, true) },
}

var surfacesUnlockCmd = &cobra.Command{
	Use:   "unlock ID",
	Short: "Unlock a surface",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runSurfacesLock(cmd, args, false) },
}

var surfacesSegmentsCmd = &cobra.Command{
	Use:     "segments ID N",
	Short:   "Set a surface's grid resolution",
	Example: `  fremkalder surfaces segments 1 16 --project stage.json`,
	Args:    cobra.ExactArgs(2),
	RunE:    runSurfacesSegments,
}

var (
	projectFlag        string
	surfacesListFormat string
)

func init() {
	rootCmd.AddCommand(surfacesCmd)
	surfacesCmd.AddCommand(surfacesListCmd)
	surfacesCmd.AddCommand(surfacesAddCmd)
	surfacesCmd.AddCommand(surfacesRemoveCmd)
	surfacesCmd.AddCommand(surfacesLockCmd)
	surfacesCmd.AddCommand(surfacesUnlockCmd)
	surfacesCmd.AddCommand(surfacesSegmentsCmd)

	surfacesCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "project file (default is mapping.project_file)")
	surfacesListCmd.Flags().StringVarP(&surfacesListFormat, "format", "f", "table", "output format (table or json)")
}

// openProject loads the project named by --project or the config. A
// missing file yields an empty session that will be created on save.
func openProject() (*project.Session, string, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	path := projectFlag
	if path == "" {
		path = cfg.Mapping.ProjectFile
	}
	if path == "" {
		return nil, "", errors.New("no project file: pass --project or set mapping.project_file")
	}

	session, err := project.New(project.Options{
		Width:        cfg.Output.Width,
		Height:       cfg.Output.Height,
		Subdivisions: cfg.Mapping.Segments,
		ShowPolygons: cfg.Mapping.ShowPolygons,
	})
	if err != nil {
		return nil, "", err
	}
	if err := session.LoadFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", err
	}
	return session, path, nil
}

func parseSurfaceID(arg string) (surface.SurfaceID, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid surface id: %s", arg)
	}
	return surface.SurfaceID(id), nil
}

// editProject opens the project, applies edit and saves the result.
func editProject(edit func(*project.Session) error) (*project.Session, string, error) {
	session, path, err := openProject()
	if err != nil {
		return nil, "", err
	}
	if err := edit(session); err != nil {
		return nil, "", err
	}
	if err := session.SaveFile(path); err != nil {
		return nil, "", err
	}
	return session, path, nil
}

func runSurfacesList(cmd *cobra.Command, args []string) error {
	session, _, err := openProject()
	if err != nil {
		return err
	}
	snap := session.Snapshot()
	out := cmd.OutOrStdout()

	switch surfacesListFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snap.Surfaces)
	case "table":
		if len(snap.Surfaces) == 0 {
			fmt.Fprintln(out, "No surfaces.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tSEGMENTS\tLOCKED\tCOLOR\tTRIANGLES")
		for _, sf := range snap.Surfaces {
			fmt.Fprintf(w, "%d\t%s\t%d\t%v\t%s\t%d\n",
				sf.ID, sf.Kind, sf.Segments, sf.Locked, sf.Color, sf.Triangles)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", surfacesListFormat)
	}
}

func runSurfacesAdd(cmd *cobra.Command, args []string) error {
	var id surface.SurfaceID
	_, path, err := editProject(func(s *project.Session) error {
		var err error
		switch surface.Kind(args[0]) {
		case surface.KindRect:
			id, err = s.AddRect()
		case surface.KindTriangle:
			id, err = s.AddTriangle()
		default:
			err = fmt.Errorf("unknown surface kind: %s (use 'rect' or 'triangle')", args[0])
		}
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Added %s surface %d to %s\n", args[0], id, path)
	return nil
}

func runSurfacesRemove(cmd *cobra.Command, args []string) error {
	id, err := parseSurfaceID(args[0])
	if err != nil {
		return err
	}
	_, path, err := editProject(func(s *project.Session) error { return s.Remove(id) })
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Removed surface %d from %s\n", id, path)
	return nil
}

func runSurfacesLock(cmd *cobra.Command, args []string, locked bool) error {
	id, err := parseSurfaceID(args[0])
	if err != nil {
		return err
	}
	if _, _, err := editProject(func(s *project.Session) error { return s.SetLocked(id, locked) }); err != nil {
		return err
	}
	state := "unlocked"
	if locked {
		state = "locked"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Surface %d %s\n", id, state)
	return nil
}

func runSurfacesSegments(cmd *cobra.Command, args []string) error {
	id, err := parseSurfaceID(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid segment count: %s", args[1])
	}
	if _, _, err := editProject(func(s *project.Session) error { return s.SetSubdivisions(id, n) }); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Surface %d now uses %d segments\n", id, n)
	return nil
}
