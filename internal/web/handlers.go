package web

import (
	stderrors "errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mhaglund/fieldmeter/internal/config"
	"github.com/mhaglund/fieldmeter/internal/errors"
	"github.com/mhaglund/fieldmeter/internal/export"
	"github.com/mhaglund/fieldmeter/internal/meter"
	"github.com/mhaglund/fieldmeter/internal/store"
	"github.com/mhaglund/fieldmeter/internal/units"
)

// Handlers holds shared dependencies for all routes.
type Handlers struct {
	store    *store.Store
	cfg      *config.Config
	meter    *meter.Meter
	renderer *Renderer
}

// requestUnit resolves the display unit: ?unit= query, then config, then µT.
func (h *Handlers) requestUnit(r *http.Request) units.Unit {
	if q := r.URL.Query().Get("unit"); q != "" {
		if u, ok := units.Parse(q); ok {
			return u
		}
	}
	if u, ok := units.Parse(h.cfg.Unit); ok {
		return u
	}
	return units.Microtesla
}

// HandleList renders the session list from the metadata index.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions()
	if err != nil {
		h.renderer.RenderError(w, err)
		return
	}

	size, err := h.store.Size()
	if err != nil {
		h.renderer.RenderError(w, err)
		return
	}

	h.renderer.Render(w, "sessions.html", ListPageData{
		PageData:  PageData{Title: "Sessions", Version: h.renderer.version, Nav: "sessions"},
		Sessions:  sessions,
		Unit:      h.requestUnit(r),
		TotalSize: size,
	})
}

// HandleDetail renders one session with stats and markdown notes.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Load(r.PathValue("id"))
	if err != nil {
		h.renderer.RenderError(w, err)
		return
	}

	title := rec.Name
	if title == "" {
		title = "Untitled session"
	}

	h.renderer.Render(w, "detail.html", DetailPageData{
		PageData:  PageData{Title: title, Version: h.renderer.version, Nav: "sessions"},
		Session:   rec,
		Stats:     rec.Stats(),
		Unit:      h.requestUnit(r),
		NotesHTML: RenderNotes(rec.Notes),
	})
}

// HandleExportCSV streams the session as a CSV download.
func (h *Handlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Load(r.PathValue("id"))
	if err != nil {
		h.renderer.RenderError(w, err)
		return
	}

	unit := h.requestUnit(r)
	data, err := export.ToCSV(rec, unit)
	if err != nil {
		h.renderer.RenderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(rec, "csv")))
	if _, err := w.Write(data); err != nil {
		log.Printf("csv write error: %v", err)
	}
}

// HandleExportSummary streams the human-readable summary.
func (h *Handlers) HandleExportSummary(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Load(r.PathValue("id"))
	if err != nil {
		h.renderer.RenderError(w, err)
		return
	}

	text, err := export.ToSummary(rec, h.requestUnit(r))
	if err != nil {
		h.renderer.RenderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(rec, "txt")))
	fmt.Fprint(w, text)
}

// HandleDelete removes a session.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.PathValue("id")); err != nil {
		status := http.StatusInternalServerError
		var mErr *errors.MeterError
		if stderrors.As(err, &mErr) {
			status = mErr.Status
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLive renders the live gauge page.
func (h *Handlers) HandleLive(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, "live.html", LivePageData{
		PageData: PageData{Title: "Live", Version: h.renderer.version, Nav: "live"},
		Unit:     h.requestUnit(r),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HandleWS upgrades to a websocket and pushes meter frames at the display
// cadence until the client goes away.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.meter == nil {
		http.Error(w, "no live meter", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Drain client messages so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	rate := h.cfg.DisplayRateHz
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(h.meter.Snapshot()); err != nil {
			return
		}
	}
}
