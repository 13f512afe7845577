package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var logger = newSimpleLogger()

const (
	logLevelDebug logLevel = iota
	logLevelInfo
	logLevelWarn
	logLevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

type logLevel int32

func (l logLevel) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

type logEvent struct {
	at    time.Time
	level logLevel
	msg   string
	attrs []any
}

// logSinks is where formatted lines go: bot.log gets INFO and above,
// debug.log gets DEBUG only, stdout mirrors everything that passed the level.
type logSinks struct {
	main   io.Writer
	debug  io.Writer
	stdout bool
}

// simpleLogger formats and writes on its own goroutine so callers on hot
// paths (message handlers, fetch workers) never block on disk I/O.
type simpleLogger struct {
	level    atomic.Int32
	queue    chan logEvent
	done     chan struct{}
	sinksMu  sync.RWMutex
	sinks    logSinks
	wg       sync.WaitGroup
	stopOnce sync.Once
	closing  atomic.Bool
}

func newSimpleLogger() *simpleLogger {
	l := &simpleLogger{
		queue: make(chan logEvent, 4096),
		done:  make(chan struct{}),
		sinks: logSinks{main: os.Stdout, debug: io.Discard},
	}
	l.level.Store(int32(logLevelInfo))
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *simpleLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case evt := <-l.queue:
			l.writeEntry(evt)
		case <-l.done:
			for {
				select {
				case evt := <-l.queue:
					l.writeEntry(evt)
				default:
					return
				}
			}
		}
	}
}

func (l *simpleLogger) log(level logLevel, msg string, attrs ...any) {
	if int32(level) < l.level.Load() || l.closing.Load() {
		return
	}
	evt := logEvent{at: time.Now(), level: level, msg: msg, attrs: append([]any(nil), attrs...)}
	select {
	case l.queue <- evt:
	case <-l.done:
	}
}

func (l *simpleLogger) Debug(msg string, attrs ...any) { l.log(logLevelDebug, msg, attrs...) }
func (l *simpleLogger) Info(msg string, attrs ...any)  { l.log(logLevelInfo, msg, attrs...) }
func (l *simpleLogger) Warn(msg string, attrs ...any)  { l.log(logLevelWarn, msg, attrs...) }
func (l *simpleLogger) Error(msg string, attrs ...any) { l.log(logLevelError, msg, attrs...) }

func (l *simpleLogger) setLevel(level logLevel) {
	l.level.Store(int32(level))
}

func (l *simpleLogger) setSinks(s logSinks) {
	if s.main == nil {
		s.main = io.Discard
	}
	if s.debug == nil {
		s.debug = io.Discard
	}
	l.sinksMu.Lock()
	l.sinks = s
	l.sinksMu.Unlock()
}

// Stop drains queued entries and closes file sinks. Safe to call twice.
func (l *simpleLogger) Stop() {
	l.stopOnce.Do(func() {
		l.closing.Store(true)
		close(l.done)
		l.wg.Wait()
		l.sinksMu.Lock()
		closeWriter(l.sinks.main)
		closeWriter(l.sinks.debug)
		l.sinks = logSinks{main: io.Discard, debug: io.Discard}
		l.sinksMu.Unlock()
	})
}

func closeWriter(w io.Writer) {
	if w == os.Stdout || w == os.Stderr {
		return
	}
	if closer, ok := w.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (l *simpleLogger) writeEntry(evt logEvent) {
	line := formatLogLine(evt)

	l.sinksMu.RLock()
	sinks := l.sinks
	l.sinksMu.RUnlock()

	if sinks.stdout && sinks.main != os.Stdout {
		_, _ = os.Stdout.Write(line)
	}
	if evt.level == logLevelDebug {
		_, _ = sinks.debug.Write(line)
		return
	}
	_, _ = sinks.main.Write(line)
}

// formatLogLine renders "<RFC3339Nano UTC> [LEVEL] msg key=value ...\n".
func formatLogLine(evt logEvent) []byte {
	var b strings.Builder
	b.WriteString(evt.at.UTC().Format(time.RFC3339Nano))
	b.WriteString(" [")
	b.WriteString(evt.level.String())
	b.WriteString("] ")
	b.WriteString(evt.msg)
	if attrs := formatAttrs(evt.attrs); attrs != "" {
		b.WriteByte(' ')
		b.WriteString(attrs)
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func formatAttrs(attrs []any) string {
	if len(attrs) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(attrs); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fmt.Sprint(attrs[i]))
		if i+1 < len(attrs) {
			b.WriteByte('=')
			b.WriteString(quoteIfSpaced(fmt.Sprint(attrs[i+1])))
		}
	}
	return b.String()
}

func quoteIfSpaced(v string) string {
	if strings.ContainsAny(v, " \t\n\"") {
		return fmt.Sprintf("%q", v)
	}
	return v
}

// appendFileWriter reopens its file if it was removed underneath it, so
// external log rotation (mv + new file) works without a restart.
type appendFileWriter struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

func newAppendFileWriter(path string) io.Writer {
	if path == "" {
		return io.Discard
	}
	return &appendFileWriter{path: path}
}

func (w *appendFileWriter) ensureFile() error {
	if _, err := os.Stat(w.path); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if w.f != nil {
			_ = w.f.Close()
			w.f = nil
		}
	}
	if w.f == nil {
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		w.f = f
	}
	return nil
}

func (w *appendFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureFile(); err != nil {
		return 0, err
	}
	return w.f.Write(p)
}

func (w *appendFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func configureFileLogging(mainPath, debugPath string, stdout bool) {
	logger.setSinks(logSinks{
		main:   newAppendFileWriter(mainPath),
		debug:  newAppendFileWriter(debugPath),
		stdout: stdout,
	})
}

func fatal(msg string, err error, attrs ...any) {
	logger.Error(msg, append(attrs, "error", err)...)
	logger.Stop()
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
