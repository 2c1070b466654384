// Package logger builds the process logger: logrus with the nested
// formatter, written to a daily file and optionally the terminal.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	"github.com/sirupsen/logrus"
)

// Options 日志配置
type Options struct {
	Level    string
	LogDir   string
	Terminal bool
}

// New 初始化日志. The returned close function releases the log file.
func New(opts Options) (*logrus.Logger, func() error, error) {
	log := logrus.New()
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	closeFn := func() error { return nil }
	logIO := make([]io.Writer, 0, 2)
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, os.ModePerm); err != nil {
			return nil, nil, err
		}
		filename := filepath.Join(opts.LogDir, time.Now().Format("2006-01-02.log"))
		file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, nil, err
		}
		logIO = append(logIO, file)
		closeFn = file.Close
	}
	if opts.Terminal {
		logIO = append(logIO, os.Stdout)
	}

	// 融合日志输出
	if len(logIO) == 0 {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(ansicolor.NewAnsiColorWriter(io.MultiWriter(logIO...)))
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetLevel(level)
	}
	return log, closeFn, nil
}
