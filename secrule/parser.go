package secrule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseDirective parses a single SecRule statement such as
//
//	SecRule REQUEST_HEADERS:Content-Type "^application/json" "id:'200001',phase:1,t:none,t:lowercase,pass,nolog,ctl:requestBodyProcessor=JSON"
//
// Only the SecRule directive is supported; anything else is an error.
func ParseDirective(s string) (d *Directive, err error) {
	tokens, err := tokenize(strings.TrimSpace(s))
	if err != nil {
		return
	}

	if len(tokens) < 3 || len(tokens) > 4 {
		err = fmt.Errorf("malformed directive, expected SecRule TARGETS OPERATOR [ACTIONS]: %s", s)
		return
	}

	if tokens[0] != "SecRule" {
		err = fmt.Errorf("unsupported directive: %s", tokens[0])
		return
	}

	d = &Directive{Raw: s}

	if err = parseTargets(d, tokens[1]); err != nil {
		d = nil
		return
	}

	if err = parseOperator(d, tokens[2]); err != nil {
		d = nil
		return
	}

	if len(tokens) == 4 {
		if err = parseActions(d, tokens[3]); err != nil {
			d = nil
			return
		}
	}

	return
}

// ParseDirectives parses a newline-separated block of SecRule statements,
// skipping blank lines and comments.
func ParseDirectives(s string) (dd []*Directive, err error) {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var d *Directive
		d, err = ParseDirective(line)
		if err != nil {
			dd = nil
			return
		}
		dd = append(dd, d)
	}
	return
}

// tokenize splits a directive line into whitespace-separated tokens where
// double-quoted tokens may contain whitespace and escaped quotes.
func tokenize(s string) (tokens []string, err error) {
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}

		if s[i] == '"' {
			var sb strings.Builder
			i++
			closed := false
			for i < len(s) {
				if s[i] == '\\' && i+1 < len(s) {
					// Only quotes and backslashes are unescaped here; other
					// escape sequences belong to the regex operand.
					if s[i+1] == '"' || s[i+1] == '\\' {
						sb.WriteByte(s[i+1])
					} else {
						sb.WriteByte(s[i])
						sb.WriteByte(s[i+1])
					}
					i += 2
					continue
				}
				if s[i] == '"' {
					closed = true
					i++
					break
				}
				sb.WriteByte(s[i])
				i++
			}
			if !closed {
				err = fmt.Errorf("unterminated quote in directive: %s", s)
				return
			}
			tokens = append(tokens, sb.String())
		} else {
			start := i
			for i < len(s) && s[i] != ' ' && s[i] != '\t' {
				i++
			}
			tokens = append(tokens, s[start:i])
		}
	}
	return
}

func parseTargets(d *Directive, s string) (err error) {
	for _, t := range strings.Split(s, "|") {
		t = strings.TrimSpace(t)
		if t == "" {
			return fmt.Errorf("empty target in directive: %s", d.Raw)
		}

		target := Target{}
		if strings.HasPrefix(t, "&") {
			target.IsCount = true
			t = t[1:]
		}

		if i := strings.IndexByte(t, ':'); i >= 0 {
			target.Name = t[:i]
			target.Selector = t[i+1:]
		} else {
			target.Name = t
		}

		d.Targets = append(d.Targets, target)
	}
	return
}

func parseOperator(d *Directive, s string) (err error) {
	if strings.HasPrefix(s, "@") {
		parts := strings.SplitN(s, " ", 2)
		d.Operator = parts[0]
		if len(parts) == 2 {
			d.OpArg = strings.TrimSpace(parts[1])
		}
	} else {
		// A bare pattern means @rx.
		d.Operator = OpRx
		d.OpArg = s
	}

	switch d.Operator {
	case OpRx:
		d.OpRegex, err = regexp.Compile(d.OpArg)
		if err != nil {
			err = fmt.Errorf("invalid regex in directive %q: %v", d.Raw, err)
		}
	case OpEq:
		d.OpArgNum, err = strconv.Atoi(d.OpArg)
		if err != nil {
			err = fmt.Errorf("invalid numeric operand in directive %q: %v", d.Raw, err)
		}
	default:
		err = fmt.Errorf("unsupported operator %s in directive: %s", d.Operator, d.Raw)
	}

	return
}

func parseActions(d *Directive, s string) (err error) {
	for _, a := range splitActions(s) {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}

		key, val := a, ""
		if i := strings.IndexByte(a, ':'); i >= 0 {
			key, val = a[:i], strings.Trim(a[i+1:], "'")
		}

		switch key {
		case "id":
			d.Actions.ID, _ = strconv.Atoi(val)
		case "phase":
			d.Actions.Phase, _ = strconv.Atoi(val)
		case "deny", "block":
			d.Actions.Deny = true
		case "pass":
			d.Actions.Pass = true
		case "nolog":
			d.Actions.NoLog = true
		case "log":
			d.Actions.NoLog = false
		case "status":
			d.Actions.Status, _ = strconv.Atoi(val)
		case "msg":
			d.Actions.Msg = val
		case "t":
			d.Transformations = append(d.Transformations, val)
		case "ctl":
			if strings.HasPrefix(val, "requestBodyProcessor=") {
				d.Actions.BodyProcessor = strings.TrimPrefix(val, "requestBodyProcessor=")
			}
		default:
			// Unknown actions are tolerated so real-world rule snippets load.
		}
	}

	if !d.Actions.Deny && !d.Actions.Pass {
		// SecRule's default disruptive behavior in this engine is pass.
		d.Actions.Pass = true
	}

	return
}

// splitActions splits an action list on commas that are not inside single
// quotes, so msg:'a, b' stays intact.
func splitActions(s string) (parts []string) {
	var sb strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			sb.WriteByte(c)
		case c == ',' && !inQuote:
			parts = append(parts, sb.String())
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}
	return
}
