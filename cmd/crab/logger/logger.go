// Package logger sets up logging of crab.
//
// Every entry goes to two places: the console (stderr, terse, filtered by
// the console level) and a rotating log file (detailed, debug and above).
package logger

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the name of the log file put in a task directory.
const FileName = "crab.log"

type Logger struct {
	*logrus.Logger
	file *fileHook
}

type Option func(*options)

type options struct {
	level   logrus.Level
	noColor bool
}

// WithLevel sets the console level. Default is Info.
func WithLevel(level logrus.Level) Option {
	return func(o *options) { o.level = level }
}

// WithoutColor disables colored console output.
func WithoutColor() Option {
	return func(o *options) { o.noColor = true }
}

// LevelFor returns the console level for --debug and --quiet.
func LevelFor(debug, quiet bool) logrus.Level {
	switch {
	case debug:
		return logrus.DebugLevel
	case quiet:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// New returns a Logger writing to console and to a file at logfile.
//
// When logfile is empty, no file is written until Redirect.
func New(console io.Writer, logfile string, opts ...Option) *Logger {
	o := &options{level: logrus.InfoLevel}
	for _, opt := range opts {
		opt(o)
	}

	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)

	l.AddHook(&consoleHook{
		out:   console,
		level: o.level,
		formatter: &nested.Formatter{
			HideKeys:        true,
			NoColors:        o.noColor,
			NoFieldsColors:  true,
			ShowFullLevel:   true,
			TimestampFormat: "15:04:05",
			FieldsOrder:     []string{"command", "task"},
		},
	})

	fh := &fileHook{
		formatter: &logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		},
	}
	fh.open(logfile)
	l.AddHook(fh)

	return &Logger{Logger: l, file: fh}
}

// Command returns an entry for a command.
func (l *Logger) Command(name string) *logrus.Entry {
	return l.WithField("command", name)
}

// Redirect switches the log file to path.
//
// When path is a directory, FileName in it is used.
func (l *Logger) Redirect(path string) {
	if filepath.Ext(path) == "" {
		path = filepath.Join(path, FileName)
	}
	l.file.open(path)
}

// Path is the current log file, or "" when not logging to a file.
func (l *Logger) Path() string {
	return l.file.path()
}

// Close closes the log file.
func (l *Logger) Close() error {
	return l.file.close()
}

type consoleHook struct {
	mu        sync.Mutex
	out       io.Writer
	level     logrus.Level
	formatter logrus.Formatter
}

func (h *consoleHook) Levels() []logrus.Level {
	return logrus.AllLevels[:h.level+1]
}

func (h *consoleHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(b)
	return err
}

type fileHook struct {
	mu        sync.Mutex
	w         *lumberjack.Logger
	formatter logrus.Formatter
}

func (h *fileHook) open(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.w != nil {
		if h.w.Filename == path {
			return
		}
		h.w.Close()
		h.w = nil
	}
	if path == "" {
		return
	}
	h.w = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
		Compress:   true,
	}
}

func (h *fileHook) path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.w == nil {
		return ""
	}
	return h.w.Filename
}

func (h *fileHook) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.w == nil {
		return nil
	}
	err := h.w.Close()
	h.w = nil
	return err
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels[:logrus.DebugLevel+1]
}

func (h *fileHook) Fire(e *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.w == nil {
		return nil
	}
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.w.Write(b)
	return err
}
