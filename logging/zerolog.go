package logging

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/casbin/caswaf/waf"
)

// NewZerologResultsLogger creates a results logger that renders the customer
// facing entries onto the process log. Useful for development and small
// deployments without a log shipping pipeline.
func NewZerologResultsLogger(logger zerolog.Logger) waf.ResultsLogger {
	return &zerologResultsLogger{logger: logger}
}

type zerologResultsLogger struct {
	logger zerolog.Logger
}

func (l *zerologResultsLogger) RuleTriggered(request waf.HTTPRequest, ruleId string, decision *waf.Decision) {
	l.write(newFirewallLogEntry(request, ruleId, decision))
}

func (l *zerologResultsLogger) BodyParseError(request waf.HTTPRequest, err error) {
	l.write(newBodyParseErrorEntry(request, err))
}

func (l *zerologResultsLogger) write(entry *firewallLogEntry) {
	bb, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error().Err(err).Msg("Error while marshaling JSON results log")
		return
	}

	l.logger.Info().RawJSON("entry", bb).Msg("Firewall log")
}
