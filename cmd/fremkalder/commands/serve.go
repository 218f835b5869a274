package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/fremkalder/internal/api"
	"github.com/bryanchriswhite/fremkalder/internal/compositor"
	"github.com/bryanchriswhite/fremkalder/internal/config"
	"github.com/bryanchriswhite/fremkalder/internal/logger"
	"github.com/bryanchriswhite/fremkalder/internal/output"
	"github.com/bryanchriswhite/fremkalder/internal/project"
	"github.com/bryanchriswhite/fremkalder/internal/source"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mapping engine and HTTP API",
	Long: `Start the frame loop, the configured outputs and the HTTP API.

Sources from the config are bound to the input quadrants. If
mapping.project_file exists it is loaded on start.`,
	Example: `  # Start server on default port (8080)
  fremkalder serve

  # Start server on custom port
  fremkalder serve --port 9090

  # Start with specific config file
  fremkalder serve --config /path/to/config.yaml

  # Start with debug logging
  fremkalder serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// applyFlagOverrides copies flags given on the command line over cfg
// without persisting them.
func applyFlagOverrides(cfg *config.Config) {
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			cfg.ServerPort = port
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			cfg.LogLevel = level
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}
	cfg := configMgr.Get()
	applyFlagOverrides(cfg)

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("serve")
	logger.WithField("config", configMgr.GetConfigPath()).Info().
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	session, err := project.New(project.Options{
		Width:        cfg.Output.Width,
		Height:       cfg.Output.Height,
		Subdivisions: cfg.Mapping.Segments,
		ShowPolygons: cfg.Mapping.ShowPolygons,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if path := cfg.Mapping.ProjectFile; path != "" {
		switch err := session.LoadFile(path); {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			log.Info().Str("path", path).Msg("Project file does not exist yet, starting empty")
		default:
			return fmt.Errorf("failed to load project: %w", err)
		}
	}

	canvas := source.NewCanvas(cfg.Output.Width, cfg.Output.Height)
	defer canvas.Close()
	bound := canvas.BindConfig(cfg.Sources)
	log.Info().Int("bound", bound).Int("configured", len(cfg.Sources)).Msg("Sources bound")

	comp, err := compositor.New(compositor.Config{
		Width:         cfg.Output.Width,
		Height:        cfg.Output.Height,
		FPS:           cfg.Output.FPS,
		PreviewWidth:  cfg.Preview.Width,
		PreviewHeight: cfg.Preview.Height,
	}, canvas, session)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Session:    session,
		Config:     configMgr,
		Compositor: comp,
		Sources: func() []string {
			names := canvas.Sources()
			return names[:]
		},
	}

	if cfg.MJPEG.Enabled {
		previewCfg := output.Config{Width: cfg.Preview.Width, Height: cfg.Preview.Height, FPS: cfg.Output.FPS}
		in := output.NewMJPEGOutput("input", previewCfg, cfg.MJPEG.Quality)
		out := output.NewMJPEGOutput("output", previewCfg, cfg.MJPEG.Quality)
		for _, st := range []*output.MJPEGOutput{in, out} {
			if err := st.Start(); err != nil {
				return err
			}
			defer st.Stop()
		}
		comp.SetPreviews(in, out)
		deps.Streams = map[string]*output.MJPEGOutput{"input": in, "output": out}
	}

	broadcast, err := output.NewBroadcast(cfg.Broadcast, cfg.Output.Width, cfg.Output.Height)
	if err != nil {
		return fmt.Errorf("failed to configure broadcast: %w", err)
	}
	deps.Broadcast = broadcast
	defer broadcast.Stop()
	if cfg.Broadcast.Enabled {
		if err := broadcast.Start(); err != nil {
			log.Warn().Err(err).Msg("Broadcast failed to start, continuing without it")
		} else {
			comp.AddSink(broadcast)
		}
	}

	if cfg.Projector.Enabled {
		projector := output.NewProjector(output.Config{
			Width:  cfg.Output.Width,
			Height: cfg.Output.Height,
			FPS:    cfg.Output.FPS,
		})
		if err := projector.Start(); err != nil {
			log.Warn().Err(err).Msg("Projector window failed to start, continuing without it")
		} else {
			comp.AddSink(projector)
			defer projector.Stop()
		}
	}

	if err := comp.Start(); err != nil {
		return err
	}
	defer comp.Stop()

	server := api.NewServer(deps)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Str("preview", fmt.Sprintf("http://localhost:%d/stream/output", cfg.ServerPort)).
		Msg("fremkalder is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	if session.Dirty() {
		log.Warn().Msg("Shutting down with unsaved project changes")
	}
	log.Info().Msg("Shutting down gracefully")
	return nil
}
