// Package export serializes finalized sessions: a deterministic CSV of
// all readings and a human-readable summary block. Generation is pure;
// the same session and unit always produce byte-identical output.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/mhaglund/fieldmeter/internal/errors"
	"github.com/mhaglund/fieldmeter/internal/session"
	"github.com/mhaglund/fieldmeter/internal/units"
)

// ToCSV renders the session's readings in stored (chronological) order,
// with all field values converted from the canonical µT to the requested
// unit. Timestamps get three decimals, field values two.
func ToCSV(rec *session.Recording, unit units.Unit) ([]byte, error) {
	if !unit.Valid() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown unit: %q", unit))
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	sym := unit.Symbol()
	header := []string{
		"Timestamp (s)",
		fmt.Sprintf("X (%s)", sym),
		fmt.Sprintf("Y (%s)", sym),
		fmt.Sprintf("Z (%s)", sym),
		fmt.Sprintf("Magnitude (%s)", sym),
	}
	if err := w.Write(header); err != nil {
		return nil, errors.NewInternal(err)
	}

	for _, r := range rec.Readings {
		row := []string{
			fmt.Sprintf("%.3f", r.Elapsed),
			fmt.Sprintf("%.2f", units.Convert(r.X, units.Microtesla, unit)),
			fmt.Sprintf("%.2f", units.Convert(r.Y, units.Microtesla, unit)),
			fmt.Sprintf("%.2f", units.Convert(r.Z, units.Microtesla, unit)),
			fmt.Sprintf("%.2f", units.Convert(r.Magnitude, units.Microtesla, unit)),
		}
		if err := w.Write(row); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return buf.Bytes(), nil
}

// ToSummary renders a human-readable block: name, date, duration, reading
// count, and min/max/avg in the requested unit, with notes appended when
// present.
func ToSummary(rec *session.Recording, unit units.Unit) (string, error) {
	if !unit.Valid() {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown unit: %q", unit))
	}

	stats := rec.Stats()

	name := rec.Name
	if name == "" {
		name = "Untitled session"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", name)
	fmt.Fprintf(&b, "Recorded: %s\n", rec.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(rec.Duration(time.Now())))
	fmt.Fprintf(&b, "Readings: %d\n", stats.ReadingCount)
	fmt.Fprintf(&b, "Min: %s\n", units.Format(units.Convert(stats.MinMagnitude, units.Microtesla, unit), unit))
	fmt.Fprintf(&b, "Max: %s\n", units.Format(units.Convert(stats.MaxMagnitude, units.Microtesla, unit), unit))
	fmt.Fprintf(&b, "Avg: %s\n", units.Format(units.Convert(stats.AvgMagnitude, units.Microtesla, unit), unit))
	if rec.Notes != "" {
		fmt.Fprintf(&b, "\nNotes:\n%s\n", rec.Notes)
	}
	return b.String(), nil
}

// formatDuration renders a duration as h:mm:ss or m:ss.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Filename builds the export filename from the session name and start
// time, sanitized with no spaces.
func Filename(rec *session.Recording, ext string) string {
	name := sanitizeForFilename(rec.Name)
	if name == "" || name == "unnamed" {
		name = "session"
	}
	stamp := rec.StartTime.Format("20060102-150405")
	return fmt.Sprintf("%s_%s.%s", name, stamp, ext)
}

// sanitizeForFilename strips path separators, control characters, and
// whitespace from a session name so it is safe to embed in a filename.
func sanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var result strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t':
			result.WriteRune('-')
		case r > 32 && r != 127:
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if s == "" {
		return "unnamed"
	}
	return s
}
