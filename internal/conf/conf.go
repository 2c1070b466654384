// Package conf loads the tiler configuration from a TOML file with viper.
package conf

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Conf 配置
type Conf struct {
	App struct {
		Version string `mapstructure:"version"`
		Title   string `mapstructure:"title"`
	} `mapstructure:"app"`
	Output struct {
		Directory      string `mapstructure:"directory"`
		LogDir         string `mapstructure:"logDir"`
		OutputTerminal bool   `mapstructure:"outputTerminal"`
	} `mapstructure:"output"`
	Storage struct {
		Layers  string `mapstructure:"layers"`
		Uploads string `mapstructure:"uploads"`
	} `mapstructure:"storage"`
	Render struct {
		TileSize    int    `mapstructure:"tileSize"`
		Supersample int    `mapstructure:"supersample"`
		DirectColor string `mapstructure:"directColor"`
		Resampling  string `mapstructure:"resampling"`
	} `mapstructure:"render"`
	Task struct {
		Workers int `mapstructure:"workers"`
		BufSize int `mapstructure:"bufSize"`
	} `mapstructure:"task"`
	Pyramid struct {
		OnIngest  bool   `mapstructure:"onIngest"`
		MinZoom   int    `mapstructure:"minZoom"`
		MaxZoom   int    `mapstructure:"maxZoom"`
		Format    string `mapstructure:"format"`
		Directory string `mapstructure:"directory"`
	} `mapstructure:"pyramid"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.version", "v0.1.0")
	v.SetDefault("app.title", "Vector Tiler")
	v.SetDefault("output.directory", "out")
	v.SetDefault("output.logDir", "")
	v.SetDefault("output.outputTerminal", true)
	v.SetDefault("storage.layers", "handle")
	v.SetDefault("storage.uploads", "uploads")
	v.SetDefault("render.tileSize", 512)
	v.SetDefault("render.supersample", 2)
	v.SetDefault("render.directColor", "#808080")
	v.SetDefault("render.resampling", "average")
	v.SetDefault("task.workers", 4)
	v.SetDefault("task.bufSize", 64)
	v.SetDefault("pyramid.onIngest", false)
	v.SetDefault("pyramid.minZoom", 0)
	v.SetDefault("pyramid.maxZoom", 6)
	v.SetDefault("pyramid.format", "file")
	v.SetDefault("pyramid.directory", "tiles")
	v.SetDefault("server.addr", ":5000")
}

// Load reads cfgFile over the defaults. An empty cfgFile yields the defaults
// plus environment overrides such as TILER_SERVER_ADDR.
func Load(cfgFile string) (*Conf, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("tiler")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match

	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file(%s) not exist", cfgFile)
		}
		v.SetConfigType("toml")
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file(%s) error, details: %w", v.ConfigFileUsed(), err)
		}
	}

	c := &Conf{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("配置文件解析失败: %w", err)
	}
	return c, c.Validate()
}

// Validate checks the values the renderer depends on.
func (c *Conf) Validate() error {
	if c.Render.TileSize <= 0 {
		return fmt.Errorf("render.tileSize must be positive, got %d", c.Render.TileSize)
	}
	if c.Render.Supersample < 0 || c.Render.Supersample > 4 {
		return fmt.Errorf("render.supersample must be within [0, 4], got %d", c.Render.Supersample)
	}
	if c.Task.Workers <= 0 {
		return fmt.Errorf("task.workers must be positive, got %d", c.Task.Workers)
	}
	if c.Pyramid.MinZoom < 0 || c.Pyramid.MinZoom > c.Pyramid.MaxZoom {
		return fmt.Errorf("pyramid zoom range %d-%d is invalid", c.Pyramid.MinZoom, c.Pyramid.MaxZoom)
	}
	switch c.Pyramid.Format {
	case "file", "mbtiles":
	default:
		return fmt.Errorf("pyramid.format must be file or mbtiles, got %q", c.Pyramid.Format)
	}
	return nil
}
