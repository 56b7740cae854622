package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

// LoggerNames lists the dragonboat loggers used by this module
var LoggerNames = []string{"rpc", "transport/rpc", "store", "client", "crypto"}

var (
	outputMu sync.Mutex
	output   io.Writer = os.Stdout
)

// SetLogOutput sets the writer of loggers created afterwards, e.g. os.Stderr
// for commands that write their results to stdout. Call it before InitLoggers.
func SetLogOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
}

// InitLoggers installs the pstore log format for all loggers in LoggerNames
// and sets them to level (debug, info, warn or error)
func InitLoggers(level string) error {
	logLevel, err := parseLogLevel(level)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)
	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(logLevel)
	}
	return nil
}

// CreateLogger is a logger.Factory producing "LEVEL | package | message" lines
func CreateLogger(pkgName string) logger.ILogger {
	outputMu.Lock()
	w := output
	outputMu.Unlock()

	return &pstoreLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
}

// pstoreLogger implements logger.ILogger
type pstoreLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *pstoreLogger) SetLevel(level logger.LogLevel) { l.level = level }

func (l *pstoreLogger) Debugf(format string, args ...interface{}) {
	l.logf(logger.DEBUG, format, args...)
}

func (l *pstoreLogger) Infof(format string, args ...interface{}) {
	l.logf(logger.INFO, format, args...)
}

func (l *pstoreLogger) Warningf(format string, args ...interface{}) {
	l.logf(logger.WARNING, format, args...)
}

func (l *pstoreLogger) Errorf(format string, args ...interface{}) {
	l.logf(logger.ERROR, format, args...)
}

func (l *pstoreLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logf(logger.CRITICAL, "%s", msg)
	panic(msg)
}

// logf writes the message if level is enabled
func (l *pstoreLogger) logf(level logger.LogLevel, format string, args ...interface{}) {
	if l.level < level {
		return
	}
	l.logger.Printf("%-5s | %-13s | %s", levelNames[level], l.name, fmt.Sprintf(format, args...))
}

var levelNames = map[logger.LogLevel]string{
	logger.CRITICAL: "CRIT",
	logger.ERROR:    "ERROR",
	logger.WARNING:  "WARN",
	logger.INFO:     "INFO",
	logger.DEBUG:    "DEBUG",
}

// parseLogLevel converts a string level to logger.LogLevel
func parseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}
