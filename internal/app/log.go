package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// Log subsystems.
const (
	SubsysApp      = "PQCH"
	SubsysSession  = "SESS"
	SubsysMessage  = "MSGS"
	SubsysIdentity = "IDNT"
	SubsysRelay    = "RLAY"
	SubsysHub      = "HUB"
)

// LogBackend hands out one slog.Logger per subsystem, all writing to stdout
// and/or a rotated log file.
type LogBackend struct {
	stdOut          io.Writer
	logRotator      *rotator.Rotator
	bknd            *slog.Backend
	defaultLogLevel slog.Level
	logLevels       map[string]slog.Level

	mtx     sync.Mutex
	loggers map[string]slog.Logger
}

// NewLogBackend returns a backend writing to stdOut (if not nil) and logFile
// (if not empty). debugLevel is either a single level or a comma separated
// list of level and subsys=level entries, e.g. "info,SESS=trace".
func NewLogBackend(logFile, debugLevel string, stdOut io.Writer) (*LogBackend, error) {
	var logRotator *rotator.Rotator
	if logFile != "" {
		logDir, _ := filepath.Split(logFile)
		if logDir != "" {
			if err := os.MkdirAll(logDir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %v", err)
			}
		}
		var err error
		logRotator, err = rotator.New(logFile, 1024, false, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to create file rotator: %v", err)
		}
	}

	b := &LogBackend{
		stdOut:          stdOut,
		logRotator:      logRotator,
		defaultLogLevel: slog.LevelInfo,
		logLevels:       make(map[string]slog.Level),
		loggers:         make(map[string]slog.Logger),
	}
	b.bknd = slog.NewBackend(b)

	for _, v := range strings.Split(debugLevel, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		fields := strings.Split(v, "=")
		switch len(fields) {
		case 1:
			level, ok := slog.LevelFromString(fields[0])
			if !ok {
				b.Close()
				return nil, fmt.Errorf("unknown log level %q", fields[0])
			}
			b.defaultLogLevel = level
		case 2:
			level, ok := slog.LevelFromString(fields[1])
			if !ok {
				b.Close()
				return nil, fmt.Errorf("unknown log level %q for %s", fields[1], fields[0])
			}
			b.logLevels[fields[0]] = level
		default:
			b.Close()
			return nil, fmt.Errorf("unable to parse %q as subsys=level "+
				"debuglevel string", v)
		}
	}

	return b, nil
}

func (bknd *LogBackend) Write(b []byte) (int, error) {
	if bknd.stdOut != nil {
		bknd.stdOut.Write(b)
	}
	if bknd.logRotator != nil {
		bknd.logRotator.Write(b)
	}
	return len(b), nil
}

// Logger returns the logger for subsys, creating it on first use.
func (bknd *LogBackend) Logger(subsys string) slog.Logger {
	bknd.mtx.Lock()
	defer bknd.mtx.Unlock()
	if l, ok := bknd.loggers[subsys]; ok {
		return l
	}

	l := bknd.bknd.Logger(subsys)
	bknd.loggers[subsys] = l
	if level, ok := bknd.logLevels[subsys]; ok {
		l.SetLevel(level)
	} else {
		l.SetLevel(bknd.defaultLogLevel)
	}
	return l
}

// Close flushes and closes the log file.
func (bknd *LogBackend) Close() error {
	if bknd.logRotator == nil {
		return nil
	}
	return bknd.logRotator.Close()
}
