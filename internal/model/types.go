package model

import "time"

type Category string

const (
	CategoryBruteForce         Category = "BRUTE_FORCE"
	CategorySQLInjection       Category = "SQL_INJECTION"
	CategoryUnauthorizedAccess Category = "UNAUTHORIZED_ACCESS"
	CategorySuspiciousActivity Category = "SUSPICIOUS_ACTIVITY"
)

// Categories lists every alert category in report order.
var Categories = []Category{
	CategoryBruteForce,
	CategorySQLInjection,
	CategoryUnauthorizedAccess,
	CategorySuspiciousActivity,
}

// UnknownSource is used when a line carries no address token.
const UnknownSource = "unknown"

type LogLine struct {
	Text string    `json:"text"`
	Time time.Time `json:"time"`
	Path string    `json:"path,omitempty"`
}

type AlertRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"category"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

type Counters struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
}

func (c Counters) Get(cat Category) int {
	if c.ByCategory == nil {
		return 0
	}
	return c.ByCategory[cat]
}

type ReportSnapshot struct {
	GeneratedAt       time.Time        `json:"generated_at"`
	Total             int              `json:"total"`
	Counts            map[Category]int `json:"counts"`
	SuspiciousSources []string         `json:"suspicious_sources"`
	Recommendations   []string         `json:"recommendations"`
}

type SourceStats struct {
	Source       string           `json:"source"`
	FirstSeen    time.Time        `json:"first_seen"`
	LastSeen     time.Time        `json:"last_seen"`
	Lines        int              `json:"lines"`
	FailedLogins int              `json:"failed_logins"`
	Alerts       map[Category]int `json:"alerts,omitempty"`
}
