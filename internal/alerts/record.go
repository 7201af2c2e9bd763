package alerts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"siemlite/internal/model"
)

// TimestampLayout is the alert log timestamp format (local time, seconds).
const TimestampLayout = "2006-01-02 15:04:05"

const detailsSep = " | Details: "

var ErrMalformedRecord = errors.New("malformed alert record")

var reRecord = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\] \[([A-Z_]+)\] IP: (\S+) - (.*)$`)

var consolePrefixes = map[model.Category]string{
	model.CategoryBruteForce:         "[BRUTE]",
	model.CategorySQLInjection:       "[SQL-INJ]",
	model.CategoryUnauthorizedAccess: "[UNAUTH]",
	model.CategorySuspiciousActivity: "[SUSP]",
}

// FormatRecord renders one alert log line without the trailing newline:
//
//	[2026-10-14 09:30:00] [BRUTE_FORCE] IP: 10.0.0.5 - message | Details: details
func FormatRecord(rec model.AlertRecord) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(rec.Timestamp.Format(TimestampLayout))
	b.WriteString("] [")
	b.WriteString(string(rec.Category))
	b.WriteString("] IP: ")
	b.WriteString(rec.Source)
	b.WriteString(" - ")
	b.WriteString(rec.Message)
	if rec.Details != "" {
		b.WriteString(detailsSep)
		b.WriteString(rec.Details)
	}
	return b.String()
}

// ParseRecord is the inverse of FormatRecord. Timestamps are read in the
// local zone, the zone they were written in.
func ParseRecord(line string) (model.AlertRecord, error) {
	line = strings.TrimRight(line, "\r\n")
	m := reRecord.FindStringSubmatch(line)
	if m == nil {
		return model.AlertRecord{}, fmt.Errorf("%w: %q", ErrMalformedRecord, line)
	}
	ts, err := time.ParseInLocation(TimestampLayout, m[1], time.Local)
	if err != nil {
		return model.AlertRecord{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedRecord, err)
	}
	msg, details, _ := strings.Cut(m[4], detailsSep)
	return model.AlertRecord{
		Timestamp: ts,
		Category:  model.Category(m[2]),
		Source:    m[3],
		Message:   msg,
		Details:   details,
	}, nil
}

// ReadRecords parses every non-empty line of an alert log.
func ReadRecords(r io.Reader) ([]model.AlertRecord, error) {
	var out []model.AlertRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}

func consolePrefix(cat model.Category) string {
	if p, ok := consolePrefixes[cat]; ok {
		return p
	}
	return "[ALERT]"
}
