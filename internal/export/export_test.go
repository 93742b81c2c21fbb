package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mhaglund/fieldmeter/internal/errors"
	"github.com/mhaglund/fieldmeter/internal/session"
	"github.com/mhaglund/fieldmeter/internal/units"
)

func testSession() *session.Recording {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return &session.Recording{
		ID:        "abc",
		Name:      "garage sweep",
		Notes:     "spike near the compressor",
		StartTime: start,
		EndTime:   start.Add(time.Second),
		Readings: []session.TimestampedSample{
			{X: 10, Y: 0, Z: 0, Elapsed: 0.0, Magnitude: 10},
			{X: 20, Y: 0, Z: 0, Elapsed: 0.5, Magnitude: 20},
			{X: 30, Y: 0, Z: 0, Elapsed: 1.0, Magnitude: 30},
		},
	}
}

func TestToCSV_Layout(t *testing.T) {
	data, err := ToCSV(testSession(), units.Microtesla)
	if err != nil {
		t.Fatalf("ToCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want header + 3 rows", len(lines))
	}
	if lines[0] != "Timestamp (s),X (µT),Y (µT),Z (µT),Magnitude (µT)" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "0.000,10.00,0.00,0.00,10.00" {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[3] != "1.000,30.00,0.00,0.00,30.00" {
		t.Errorf("row 3 = %q", lines[3])
	}
}

func TestToCSV_UnitConversion(t *testing.T) {
	data, err := ToCSV(testSession(), units.Milligauss)
	if err != nil {
		t.Fatalf("ToCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	// 10 µT == 100 mG: every axis and magnitude value scales ×10.
	if lines[1] != "0.000,100.00,0.00,0.00,100.00" {
		t.Errorf("row 1 in mG = %q", lines[1])
	}
}

func TestToCSV_Deterministic(t *testing.T) {
	rec := testSession()

	first, err := ToCSV(rec, units.Gauss)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ToCSV(rec, units.Gauss)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("re-exporting the same session+unit must be byte-identical")
	}
}

func TestToCSV_EmptySession(t *testing.T) {
	rec := &session.Recording{ID: "empty", StartTime: time.Now()}
	data, err := ToCSV(rec, units.Microtesla)
	if err != nil {
		t.Fatalf("ToCSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 1 {
		t.Errorf("lines = %d, want header only", len(lines))
	}
}

func TestToCSV_UnknownUnit(t *testing.T) {
	_, err := ToCSV(testSession(), units.Unit("furlongs"))
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("error = %v, want INVALID_REQUEST", err)
	}
}

func TestToSummary(t *testing.T) {
	out, err := ToSummary(testSession(), units.Microtesla)
	if err != nil {
		t.Fatalf("ToSummary() error = %v", err)
	}

	for _, want := range []string{
		"garage sweep",
		"2026-03-14 10:00:00",
		"Duration: 0:01",
		"Readings: 3",
		"Min: 10.0 µT",
		"Max: 30.0 µT",
		"Avg: 20.0 µT",
		"spike near the compressor",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestToSummary_NoNotesNoName(t *testing.T) {
	rec := testSession()
	rec.Name = ""
	rec.Notes = ""

	out, err := ToSummary(rec, units.Microtesla)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Untitled session") {
		t.Errorf("summary should fall back to a default name:\n%s", out)
	}
	if strings.Contains(out, "Notes:") {
		t.Errorf("summary should omit the notes block when empty:\n%s", out)
	}
}

func TestFilename(t *testing.T) {
	rec := testSession()
	got := Filename(rec, "csv")
	want := "garage-sweep_20260314-100000.csv"
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
	if strings.Contains(got, " ") {
		t.Errorf("filename contains spaces: %q", got)
	}
}

func TestFilename_SanitizesHostileNames(t *testing.T) {
	rec := testSession()
	rec.Name = "../../etc/passwd"
	got := Filename(rec, "csv")
	if strings.Contains(got, "..") || strings.Contains(got, "/") {
		t.Errorf("filename not sanitized: %q", got)
	}

	rec.Name = ""
	if got := Filename(rec, "txt"); !strings.HasPrefix(got, "session_") {
		t.Errorf("unnamed session filename = %q, want session_ prefix", got)
	}
}
