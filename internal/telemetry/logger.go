// Package telemetry provides session-based logging for INTERSECT
// services and clients, adapted from the teacher's atomic/logging
// session logger: debug goes to the session file only, info goes to
// the file and, unless the logger is in quiet mode, the console, while
// warnings and errors always reach both file and console, matching
// spec §7's propagation policy (INFO for validation failures, WARN
// for handler errors, ERROR for serialization failures).
package telemetry

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is the leveled logging surface every package in this module
// depends on (pkg/dispatch.Logger, pkg/events.Logger, etc. are each a
// narrow subset of this interface).
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// SessionLogger writes to both a per-run log file and, unless in
// quiet mode, stdout. It is the only process-wide state besides the
// SDK version constants, per spec §9's "global state" design note.
type SessionLogger struct {
	serviceName string
	file        *os.File
	mu          sync.Mutex
	sessionPath string
	quietMode   bool
}

// New creates a session logger writing under logDir, named for
// serviceName (typically the service's hierarchy string). quietMode
// suppresses info/debug console output, keeping them file-only.
func New(logDir, serviceName string, quietMode bool) (*SessionLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("telemetry: creating log directory: %w", err)
	}

	sessionID := time.Now().Format("20060102-150405")
	sessionPath := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", serviceName, sessionID))

	file, err := os.OpenFile(sessionPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating session log file: %w", err)
	}

	l := &SessionLogger{serviceName: serviceName, file: file, sessionPath: sessionPath, quietMode: quietMode}
	l.writeToFile("=== %s session started ===", serviceName)

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime)

	return l, nil
}

// Close flushes a final marker and closes the session log file.
func (l *SessionLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	l.writeToFile("=== %s session ended ===", l.serviceName)
	return l.file.Close()
}

// SessionPath returns the path of the current session log file.
func (l *SessionLogger) SessionPath() string { return l.sessionPath }

func (l *SessionLogger) writeToFile(format string, args ...interface{}) {
	if l.file == nil {
		return
	}
	fmt.Fprintf(l.file, "[%s] %s\n", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}

// Debugf logs to the session file only, never the console.
func (l *SessionLogger) Debugf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeToFile("DEBUG: %s", fmt.Sprintf(format, args...))
}

// Infof logs to the session file, and to the console unless quiet.
func (l *SessionLogger) Infof(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	message := fmt.Sprintf(format, args...)
	l.writeToFile("INFO: %s", message)
	if !l.quietMode {
		fmt.Println(message)
	}
}

// Warnf always reaches both file and console, per spec §7.
func (l *SessionLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	message := fmt.Sprintf(format, args...)
	l.writeToFile("WARN: %s", message)
	fmt.Println(message)
}

// Errorf always reaches both file and console, per spec §7.
func (l *SessionLogger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	message := fmt.Sprintf(format, args...)
	l.writeToFile("ERROR: %s", message)
	fmt.Println(message)
}
