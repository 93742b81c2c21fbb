package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mhaglund/fieldmeter/internal/errors"
	"github.com/mhaglund/fieldmeter/internal/export"
	"github.com/mhaglund/fieldmeter/internal/recorder"
	"github.com/mhaglund/fieldmeter/internal/session"
	"github.com/mhaglund/fieldmeter/internal/signal"
	"github.com/mhaglund/fieldmeter/internal/units"
)

// TestFullWorkflow exercises the complete session lifecycle:
// record → save → load → rename → annotate → list → export → delete → load (not found)
func TestFullWorkflow(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	// 1. Record a short session through the manager.
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	now := base
	mgr := recorder.NewManager(session.NewRing(16), recorder.Options{
		Now: func() time.Time { return now },
	})

	mgr.Start()
	for i := 0; i < 5; i++ {
		now = base.Add(time.Duration(i) * 100 * time.Millisecond)
		mgr.AddReading(signal.RawSample{X: 20 + float64(i), Y: 5, Z: -40}, float64(i)*0.1)
	}
	now = base.Add(500 * time.Millisecond)
	rec := mgr.Stop()
	require.NotNil(t, rec)
	require.NotEmpty(t, rec.ID)
	require.Len(t, rec.Readings, 5)
	id := rec.ID

	// 2. Save
	require.NoError(t, st.Save(rec))

	// 3. Load and verify readings survived intact
	loaded, err := st.Load(id)
	require.NoError(t, err)
	require.Equal(t, rec.Readings, loaded.Readings)
	require.Equal(t, rec.StartTime.Unix(), loaded.StartTime.Unix())

	// 4. Rename and annotate
	require.NoError(t, st.Rename(id, "workshop sweep"))
	require.NoError(t, st.Annotate(id, "spike near the lathe"))

	loaded, err = st.Load(id)
	require.NoError(t, err)
	require.Equal(t, "workshop sweep", loaded.Name)
	require.Equal(t, "spike near the lathe", loaded.Notes)

	// 5. List - metadata index reflects the updates
	sessions, err := st.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, id, sessions[0].ID)
	require.Equal(t, "workshop sweep", sessions[0].Name)
	require.Equal(t, 5, sessions[0].ReadingCount)

	// 6. Export both formats
	csvData, err := export.ToCSV(loaded, units.Microtesla)
	require.NoError(t, err)
	require.Contains(t, string(csvData), "Timestamp (s)")
	require.Contains(t, string(csvData), "0.100")

	summary, err := export.ToSummary(loaded, units.Microtesla)
	require.NoError(t, err)
	require.Contains(t, summary, "workshop sweep")
	require.Contains(t, summary, "spike near the lathe")

	// 7. Delete
	require.NoError(t, st.Delete(id))

	// 8. Load - verify gone
	_, err = st.Load(id)
	require.Error(t, err)
	var mErr *errors.MeterError
	require.ErrorAs(t, err, &mErr)
	require.Equal(t, errors.ErrNotFound, mErr.Code)

	// Index is empty again
	sessions, err = st.Sessions()
	require.NoError(t, err)
	require.Empty(t, sessions)
}
