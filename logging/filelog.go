package logging

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/casbin/caswaf/waf"
)

// queueSize bounds how many entries may be waiting on the writer goroutine.
// When the queue is full, entries are dropped rather than stalling decisions.
const queueSize = 1024

type filelogResultsLogger struct {
	fileSystem   LogFileSystem
	file         LogFile
	logger       zerolog.Logger
	writelogline chan []byte
	closed       chan bool
}

// NewFileResultsLogger creates a results logger that appends one JSON line
// per entry to the given file. Writes happen on a dedicated goroutine, so
// logging never blocks the decision path.
func NewFileResultsLogger(fileSystem LogFileSystem, logger zerolog.Logger, dir string, fileName string) (waf.ResultsLogger, error) {
	r := &filelogResultsLogger{fileSystem: fileSystem, logger: logger}

	err := fileSystem.MkDir(dir)
	if err != nil {
		logger.Error().Err(err).Str("path", dir).Msg("Failed to create the log directory while initializing")
		return nil, err
	}

	r.file, err = fileSystem.Open(dir + fileName)
	if err != nil {
		logger.Error().Err(err).Str("file", dir+fileName).Msg("Failed to open the log file while initializing")
		return nil, err
	}

	r.writelogline = make(chan []byte, queueSize)
	r.closed = make(chan bool)
	go func() {
		for v := range r.writelogline {
			r.file.Append(v)
			r.file.Append([]byte("\n"))
		}
		r.closed <- true
	}()

	return r, nil
}

func (l *filelogResultsLogger) RuleTriggered(request waf.HTTPRequest, ruleId string, decision *waf.Decision) {
	l.enqueue(newFirewallLogEntry(request, ruleId, decision))
}

func (l *filelogResultsLogger) BodyParseError(request waf.HTTPRequest, err error) {
	l.enqueue(newBodyParseErrorEntry(request, err))
}

func (l *filelogResultsLogger) enqueue(entry *firewallLogEntry) {
	bb, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error().Err(err).Msg("Error while marshaling JSON results log")
		return
	}

	select {
	case l.writelogline <- bb:
	default:
		l.logger.Warn().Msg("Results log queue full, dropping entry")
	}
}

// Close drains the queue and stops the writer goroutine.
func (l *filelogResultsLogger) Close() {
	close(l.writelogline)
	<-l.closed
}
