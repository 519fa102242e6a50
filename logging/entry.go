// Package logging implements the customer facing results loggers: records of
// which rule fired on which request and what was done about it. Internal
// diagnostics stay on zerolog; these entries are the ones operators ship to
// their log pipeline.
package logging

import "github.com/casbin/caswaf/waf"

type firewallLogEntry struct {
	ClientIP      string `json:"clientIp"`
	Host          string `json:"host"`
	Method        string `json:"method"`
	RequestURI    string `json:"requestUri"`
	UserAgent     string `json:"userAgent"`
	RuleID        string `json:"ruleId"`
	Action        string `json:"action"`
	StatusCode    int    `json:"statusCode"`
	Reason        string `json:"reason"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId"`
}

func newFirewallLogEntry(request waf.HTTPRequest, ruleId string, decision *waf.Decision) *firewallLogEntry {
	return &firewallLogEntry{
		ClientIP:      request.RemoteAddr(),
		Host:          request.Host(),
		Method:        request.Method(),
		RequestURI:    request.URI(),
		UserAgent:     request.UserAgent(),
		RuleID:        ruleId,
		Action:        decision.Action,
		StatusCode:    decision.StatusCode,
		Reason:        decision.Reason,
		Message:       decision.LogMessage,
		TransactionID: request.TransactionID(),
	}
}

func newBodyParseErrorEntry(request waf.HTTPRequest, err error) *firewallLogEntry {
	return &firewallLogEntry{
		ClientIP:      request.RemoteAddr(),
		Host:          request.Host(),
		Method:        request.Method(),
		RequestURI:    request.URI(),
		UserAgent:     request.UserAgent(),
		Action:        waf.ActionBlock,
		Reason:        "Request body scanning error",
		Message:       err.Error(),
		TransactionID: request.TransactionID(),
	}
}
