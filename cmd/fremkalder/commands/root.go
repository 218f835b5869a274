package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/fremkalder/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "fremkalder",
		Short: "fremkalder - projection mapping onto flat surfaces",
		Long: `fremkalder maps a source frame onto projector-space surfaces.

Each surface is a quad or triangle with an input polygon (where it samples
the source) and an output polygon (where it lands in the projected frame).
Quads are subdivided into a bilinear grid of triangles.

Features:
  • Up to four image or X11 region sources tiled into one input frame
  • Interactive corner editing over the HTTP/websocket API
  • Project files compatible with the JSON surface document format
  • Output to an X11 projector window and an H.264 UDP broadcast
  • MJPEG previews of the input and output with the editing overlay`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := viper.GetString("log_level")
			if level == "" {
				level = "warn"
			}
			logger.InitWithWriter(level, os.Stderr)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/fremkalder/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
