// Package classify holds the stateless rules applied to every log line:
// SQL-injection signatures, sensitive endpoint fragments and the token
// extractors the engine needs to partition state.
package classify

import (
	"regexp"
	"strconv"
	"strings"

	"siemlite/internal/model"
)

// Rule is one SQL-injection signature. Pattern is the text reported in alert
// details.
type Rule struct {
	Pattern string
	re      *regexp.Regexp
}

func newRule(pattern string) Rule {
	return Rule{Pattern: pattern, re: regexp.MustCompile(`(?i)` + pattern)}
}

func (r Rule) Match(line string) bool {
	return r.re.MatchString(line)
}

// SQLRules is evaluated in order; the first match wins.
var SQLRules = []Rule{
	newRule(`'.*\bOR\b.*1'?\s*=\s*'?1`),
	newRule(`UNION.*SELECT`),
	newRule(`DROP.*TABLE`),
	newRule(`INSERT.*INTO`),
	newRule(`DELETE.*FROM`),
	newRule(`xp_cmdshell`),
	newRule(`script.*alert`),
	newRule(`<script>`),
}

// SensitiveEndpointList is checked in order; the first contained fragment wins.
var SensitiveEndpointList = []string{
	"/admin",
	"/api/delete",
	"/config",
	"/env",
	"/.env",
	"/phpmyadmin",
	"/mysql",
	"/backup",
}

var (
	sqlGenericTokens = []string{" OR ", "UNION", "DROP", "INSERT", "SELECT"}
	sqlStrongTokens  = []string{"' OR", "UNION SELECT", "DROP TABLE"}

	reSource = regexp.MustCompile(`IP: \[([0-9A-Fa-f.:]+)\]`)
	reStatus = regexp.MustCompile(`Status: (\d{3})\b`)
)

const failedLoginMarker = "Failed login attempt"

// MatchSQLInjection returns the first signature matching line.
func MatchSQLInjection(line string) (string, bool) {
	for _, rule := range SQLRules {
		if rule.Match(line) {
			return rule.Pattern, true
		}
	}
	return "", false
}

// LooksLikeSQL is the cheap pre-filter run before the regex signatures: the
// line must carry a generic SQL keyword and an injection-specific token.
func LooksLikeSQL(line string) bool {
	return containsAny(line, sqlGenericTokens) && containsAny(line, sqlStrongTokens)
}

func SensitiveEndpoint(line string) (string, bool) {
	for _, ep := range SensitiveEndpointList {
		if strings.Contains(line, ep) {
			return ep, true
		}
	}
	return "", false
}

// SensitiveEndpoints returns every fragment contained in line, in list order.
func SensitiveEndpoints(line string) []string {
	var out []string
	for _, ep := range SensitiveEndpointList {
		if strings.Contains(line, ep) {
			out = append(out, ep)
		}
	}
	return out
}

func IsFailedLogin(line string) bool {
	return strings.Contains(line, failedLoginMarker)
}

// ExtractSource returns the address inside the `IP: [...]` token, or
// model.UnknownSource.
func ExtractSource(line string) string {
	m := reSource.FindStringSubmatch(line)
	if len(m) < 2 || m[1] == "" {
		return model.UnknownSource
	}
	return m[1]
}

func ExtractStatus(line string) (int, bool) {
	m := reStatus.FindStringSubmatch(line)
	if len(m) < 2 {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return code, true
}

func containsAny(line string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(line, tok) {
			return true
		}
	}
	return false
}
