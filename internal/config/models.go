package config

import "path/filepath"

// SourceKind selects how a quadrant of the input frame is filled.
type SourceKind string

const (
	SourceImage SourceKind = "image"
	SourceX11   SourceKind = "x11"
)

// Config is the on-disk configuration.
type Config struct {
	ServerPort int    `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`

	Output    OutputConfig    `json:"output" yaml:"output" mapstructure:"output"`
	Preview   PreviewConfig   `json:"preview" yaml:"preview" mapstructure:"preview"`
	Mapping   MappingConfig   `json:"mapping" yaml:"mapping" mapstructure:"mapping"`
	Sources   []SourceConfig  `json:"sources" yaml:"sources" mapstructure:"sources"`
	Broadcast BroadcastConfig `json:"broadcast" yaml:"broadcast" mapstructure:"broadcast"`
	MJPEG     MJPEGConfig     `json:"mjpeg" yaml:"mjpeg" mapstructure:"mjpeg"`
	Projector ProjectorConfig `json:"projector" yaml:"projector" mapstructure:"projector"`
}

// OutputConfig is the size and rate of the mapped output frame. The input
// canvas has the same size.
type OutputConfig struct {
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
	FPS    int `json:"fps" yaml:"fps" mapstructure:"fps"`
}

// PreviewConfig is the size of the MJPEG preview streams.
type PreviewConfig struct {
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
}

// MappingConfig holds editor defaults.
type MappingConfig struct {
	Segments     int    `json:"segments" yaml:"segments" mapstructure:"segments"`
	ShowPolygons bool   `json:"show_polygons" yaml:"show_polygons" mapstructure:"show_polygons"`
	ProjectFile  string `json:"project_file" yaml:"project_file" mapstructure:"project_file"`
	// ProjectDir is where the API may save and load named projects.
	// Empty means the directory of ProjectFile.
	ProjectDir string `json:"project_dir" yaml:"project_dir" mapstructure:"project_dir"`
}

// ProjectDirectory returns the directory the API may read and write
// projects in, or "" when neither project_dir nor project_file is set.
func (m MappingConfig) ProjectDirectory() string {
	if m.ProjectDir != "" {
		return m.ProjectDir
	}
	if m.ProjectFile != "" {
		return filepath.Dir(m.ProjectFile)
	}
	return ""
}

// SourceConfig binds a quadrant (0-3, row-major) to a frame source. Path is
// used by image sources; X, Y, Width and Height select the X11 root-window
// region.
type SourceConfig struct {
	Quadrant int        `json:"quadrant" yaml:"quadrant" mapstructure:"quadrant"`
	Kind     SourceKind `json:"kind" yaml:"kind" mapstructure:"kind"`
	Path     string     `json:"path,omitempty" yaml:"path,omitempty" mapstructure:"path"`
	X        int        `json:"x,omitempty" yaml:"x,omitempty" mapstructure:"x"`
	Y        int        `json:"y,omitempty" yaml:"y,omitempty" mapstructure:"y"`
	Width    int        `json:"width,omitempty" yaml:"width,omitempty" mapstructure:"width"`
	Height   int        `json:"height,omitempty" yaml:"height,omitempty" mapstructure:"height"`
}

// BroadcastConfig configures the ffmpeg | socat UDP broadcast.
type BroadcastConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	FFmpegPath  string `json:"ffmpeg_path" yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	SocatPath   string `json:"socat_path" yaml:"socat_path" mapstructure:"socat_path"`
	UDPIP       string `json:"udp_ip" yaml:"udp_ip" mapstructure:"udp_ip"`
	UDPPort     int    `json:"udp_port" yaml:"udp_port" mapstructure:"udp_port"`
	FrameRate   int    `json:"frame_rate" yaml:"frame_rate" mapstructure:"frame_rate"`
	PixelFormat string `json:"pixel_format" yaml:"pixel_format" mapstructure:"pixel_format"`
	LogFile     string `json:"log_file" yaml:"log_file" mapstructure:"log_file"`
}

// MJPEGConfig configures the preview streams.
type MJPEGConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Quality int  `json:"quality" yaml:"quality" mapstructure:"quality"`
}

// ProjectorConfig enables the fullscreen X11 output window.
type ProjectorConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// Defaults returns the configuration written when no file exists.
func Defaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Output:     OutputConfig{Width: 1920, Height: 1080, FPS: 25},
		Preview:    PreviewConfig{Width: 640, Height: 360},
		Mapping:    MappingConfig{Segments: 8, ShowPolygons: true},
		Sources:    []SourceConfig{},
		Broadcast: BroadcastConfig{
			FFmpegPath:  "ffmpeg",
			SocatPath:   "/usr/bin/socat",
			UDPIP:       "255.255.255.255",
			UDPPort:     12345,
			FrameRate:   25,
			PixelFormat: "rgba",
			LogFile:     "ffmpegOutput.txt",
		},
		MJPEG: MJPEGConfig{Enabled: true, Quality: 90},
	}
}
