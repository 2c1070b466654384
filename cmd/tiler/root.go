package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vectiler/internal/conf"
	"vectiler/internal/logger"
	"vectiler/internal/render"
)

const (
	version           = "v0.1.0"
	defaultConfigPath = "./conf/conf.toml"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	conf     *conf.Conf
	log      *logrus.Logger
	closeLog func() error
	svc      *render.Service
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:     "tiler",
		Short:   "Render colored vector layers into XYZ PNG tiles",
		Version: version,
		Long: `tiler ingests GeoJSON layers whose features carry a "color" attribute,
reprojects them to Web Mercator and renders 512 px PNG tiles on request.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("tiler version: tiler/%s\n", version))
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "set config `file`")
	root.PersistentFlags().StringVarP(&a.logLevel, "log-level", "l", "info", "set log `level` (trace, debug, info, warn, error)")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newIngestCmd(a))
	root.AddCommand(newTileCmd(a))
	root.AddCommand(newPyramidCmd(a))
	return root
}

// init 初始化配置, 日志和渲染服务
func (a *app) init(cmd *cobra.Command) error {
	path := a.configPath
	if !cmd.Flags().Changed("config") {
		// 默认配置文件可以不存在
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	c, err := conf.Load(path)
	if err != nil {
		return err
	}
	a.conf = c

	a.log, a.closeLog, err = logger.New(logger.Options{
		Level:    a.logLevel,
		LogDir:   c.Output.LogDir,
		Terminal: c.Output.OutputTerminal,
	})
	if err != nil {
		return fmt.Errorf("init log: %w", err)
	}

	cfg, err := render.ConfigFrom(c)
	if err != nil {
		return err
	}
	a.svc, err = render.New(cfg, a.log)
	if err != nil {
		return err
	}
	a.log.Debugf("%s %s, config %q", c.App.Title, c.App.Version, path)
	return nil
}

func (a *app) close() {
	if a.closeLog != nil {
		a.closeLog()
	}
}
