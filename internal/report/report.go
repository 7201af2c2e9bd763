// Package report turns the incident counters and the suspicious set into the
// daily security report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"siemlite/internal/model"
)

const (
	AdviceCaptcha   = "Consider adding CAPTCHA to login forms"
	AdviceLockout   = "Configure IP lockout after repeated failed login attempts"
	AdviceParams    = "Ensure every database query is parameterized"
	AdviceWAF       = "Consider deploying a Web Application Firewall (WAF)"
	AdviceEndpoints = "Increase monitoring of sensitive endpoints"
	Advice2FA       = "Consider enabling two-factor authentication"
	AdviceNone      = "No critical issues detected. Continue monitoring"

	noneDetected = "None detected"
	timeLayout   = "2006-01-02 15:04:05"
)

var categoryLabels = map[model.Category]string{
	model.CategoryBruteForce:         "Brute force attacks",
	model.CategorySQLInjection:       "SQL injections",
	model.CategoryUnauthorizedAccess: "Unauthorized access",
	model.CategorySuspiciousActivity: "Suspicious activity",
}

// Build snapshots the counters; suspicious is copied and sorted.
func Build(now time.Time, counts model.Counters, suspicious []string) model.ReportSnapshot {
	byCat := make(map[model.Category]int, len(model.Categories))
	for _, cat := range model.Categories {
		byCat[cat] = counts.Get(cat)
	}
	srcs := append([]string(nil), suspicious...)
	sort.Strings(srcs)
	if srcs == nil {
		srcs = []string{}
	}
	return model.ReportSnapshot{
		GeneratedAt:       now,
		Total:             counts.Total,
		Counts:            byCat,
		SuspiciousSources: srcs,
		Recommendations:   Recommendations(counts),
	}
}

func Recommendations(counts model.Counters) []string {
	var out []string
	if counts.Get(model.CategoryBruteForce) > 0 {
		out = append(out, AdviceCaptcha, AdviceLockout)
	}
	if counts.Get(model.CategorySQLInjection) > 0 {
		out = append(out, AdviceParams, AdviceWAF)
	}
	if counts.Get(model.CategoryUnauthorizedAccess) > 0 {
		out = append(out, AdviceEndpoints, Advice2FA)
	}
	if len(out) == 0 {
		out = append(out, AdviceNone)
	}
	return out
}

func Render(snap model.ReportSnapshot) string {
	var b strings.Builder
	b.WriteString("DAILY SECURITY REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n", snap.GeneratedAt.Format(timeLayout))
	b.WriteString("========================================\n\n")

	b.WriteString("INCIDENT STATISTICS:\n")
	b.WriteString("--------------------\n")
	fmt.Fprintf(&b, "Total incidents detected: %d\n\n", snap.Total)
	b.WriteString("By type:\n")
	for _, cat := range model.Categories {
		fmt.Fprintf(&b, "- %s: %d\n", categoryLabels[cat], snap.Counts[cat])
	}
	b.WriteString("\n")

	b.WriteString("SUSPICIOUS IP ADDRESSES:\n")
	b.WriteString("------------------------\n")
	if len(snap.SuspiciousSources) == 0 {
		b.WriteString(noneDetected + "\n")
	}
	for _, src := range snap.SuspiciousSources {
		fmt.Fprintf(&b, "- %s\n", src)
	}
	b.WriteString("\n")

	b.WriteString("RECOMMENDATIONS:\n")
	b.WriteString("----------------\n")
	for _, rec := range snap.Recommendations {
		fmt.Fprintf(&b, "• %s\n", rec)
	}
	b.WriteString("\nThis report was generated automatically by siemlite.\n")
	return b.String()
}

// FileName is the dated report name for t, without extension.
func FileName(t time.Time) string {
	return "daily_security_report_" + t.Format("20060102")
}

// Write stores the rendered report (and a JSON copy when withJSON is set)
// under dir, replacing any report already written for the same day.
func Write(dir string, snap model.ReportSnapshot, withJSON bool) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	base := filepath.Join(dir, FileName(snap.GeneratedAt))
	var written []string
	txt := base + ".txt"
	if err := os.WriteFile(txt, []byte(Render(snap)), 0o644); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	written = append(written, txt)
	if withJSON {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return written, fmt.Errorf("encode report: %w", err)
		}
		js := base + ".json"
		if err := os.WriteFile(js, data, 0o644); err != nil {
			return written, fmt.Errorf("write report json: %w", err)
		}
		written = append(written, js)
	}
	return written, nil
}
