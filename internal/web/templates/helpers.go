// Package templates holds the HTML components of the dashboard.
//
// Components are written in templ; run `templ generate` after editing a
// .templ file. Formatting helpers used by the components live here.
package templates

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/core"
	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/dustin/go-humanize"
)

// DashboardData is everything the dashboard renders for one session.
type DashboardData struct {
	State       core.SessionState
	Catalog     *threat.Catalog
	MaxFileSize int64
	Error       *core.UserMessage
	Notice      string
	Now         time.Time
}

// severityBar is one row of the severity chart.
type severityBar struct {
	Label   string
	Token   string
	Percent string
	Count   string
}

func severityBars(buckets []threat.SeverityCount) []severityBar {
	maxCount := 0
	for _, b := range buckets {
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}

	bars := make([]severityBar, len(buckets))
	for i, b := range buckets {
		bars[i] = severityBar{
			Label:   b.Severity,
			Token:   cssToken(b.Severity),
			Percent: strconv.Itoa(barWidth(b.Count, maxCount)),
			Count:   strconv.Itoa(b.Count),
		}
	}
	return bars
}

func uploadHint(maxFileSize int64) string {
	hint := "CSV with a header row. Columns read: " + strings.Join([]string{
		threat.ColumnSeverity, threat.ColumnThreatType, threat.ColumnStatus, threat.ColumnConfidence,
	}, ", ")
	if maxFileSize > 0 {
		hint += fmt.Sprintf(". Maximum size %s.", humanize.Bytes(uint64(maxFileSize)))
	}
	return hint
}

func datasetDetail(st core.SessionState, now time.Time) string {
	detail := fmt.Sprintf(": %s records", humanize.Comma(int64(st.RecordCount)))
	if !st.LoadedAt.IsZero() && !now.IsZero() {
		detail += ", loaded " + humanize.RelTime(st.LoadedAt, now, "ago", "from now")
	}
	return detail
}

func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

func avgConfidence(c threat.ConfidenceStats) string {
	if c.Count == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", c.Mean)
}

func successRate(c threat.AttackCounts) string {
	if c.Count == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", float64(c.Successful)*100/float64(c.Count))
}

// remediationEntries returns catalog entries for attack types that occurred.
func remediationEntries(s threat.Summary, catalog *threat.Catalog) []threat.CatalogEntry {
	if catalog == nil {
		return nil
	}
	var out []threat.CatalogEntry
	for _, at := range threat.KnownAttackTypes {
		if s.AttackTypes[at].Count == 0 {
			continue
		}
		if e, ok := catalog.Lookup(at); ok {
			out = append(out, e)
		}
	}
	return out
}

func attackTitle(at threat.AttackType, catalog *threat.Catalog) string {
	if catalog != nil {
		if e, ok := catalog.Lookup(at); ok {
			return e.Title
		}
	}
	return string(at)
}

// barWidth returns the bar length in percent. Non-zero counts get at least 1%.
func barWidth(count, maxCount int) int {
	if count <= 0 || maxCount <= 0 {
		return 0
	}
	w := count * 100 / maxCount
	if w == 0 {
		w = 1
	}
	return w
}

// cssToken reduces a label to characters safe in an attribute selector.
func cssToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s (%d)", k, m[k])
	}
	return strings.Join(parts, ", ")
}
