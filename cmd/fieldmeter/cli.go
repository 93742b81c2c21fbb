package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	osignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mhaglund/fieldmeter/internal/config"
	"github.com/mhaglund/fieldmeter/internal/errors"
	"github.com/mhaglund/fieldmeter/internal/export"
	"github.com/mhaglund/fieldmeter/internal/meter"
	"github.com/mhaglund/fieldmeter/internal/needle"
	"github.com/mhaglund/fieldmeter/internal/publish"
	"github.com/mhaglund/fieldmeter/internal/recorder"
	"github.com/mhaglund/fieldmeter/internal/sensor"
	"github.com/mhaglund/fieldmeter/internal/session"
	"github.com/mhaglund/fieldmeter/internal/signal"
	"github.com/mhaglund/fieldmeter/internal/store"
	"github.com/mhaglund/fieldmeter/internal/units"
	"github.com/mhaglund/fieldmeter/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(st *store.Store, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "fieldmeter",
		Usage:   "Handheld magnetometer: record, inspect and export field sessions",
		Version: Version,
		Commands: []*cli.Command{
			recordCmd(st, cfg),
			listCmd(st),
			showCmd(st),
			exportCmd(st, cfg),
			renameCmd(st),
			annotateCmd(st),
			deleteCmd(st),
			purgeCmd(st),
			sizeCmd(st),
			serveCmd(st, cfg),
			publishCmd(cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// buildMeter wires a meter around the simulated sensor with a fresh
// recording manager. onAutoStop may be nil.
func buildMeter(cfg *config.Config, onAutoStop func(*session.Recording)) *meter.Meter {
	ring := session.NewRing(cfg.LiveBufferCapacity)
	mgr := recorder.NewManager(ring, recorder.Options{
		Ceiling:    cfg.RecordingCeiling(),
		OnAutoStop: onAutoStop,
	})
	return meter.New(meter.Options{
		Source:        sensor.NewSimulatedSource(nil),
		Processor:     signal.NewProcessor(cfg.FullScaleMicrotesla),
		Needle:        needle.NewSimulator(nil),
		Manager:       mgr,
		SensorRateHz:  cfg.SensorRateHz,
		DisplayRateHz: cfg.DisplayRateHz,
	})
}

// recordCmd creates the record command.
func recordCmd(st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Record a session (runs until --duration, the recording ceiling, or Ctrl-C)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Session name (optional)"},
			&cli.StringFlag{Name: "notes", Usage: "Session notes, markdown allowed (optional)"},
			&cli.StringFlag{Name: "duration", Aliases: []string{"d"}, Usage: "Stop after this long (e.g. 90s, 5m)"},
			&cli.BoolFlag{Name: "calibrate", Aliases: []string{"c"}, Usage: "Zero the meter against the first sample"},
		},
		Action: func(c *cli.Context) error {
			var timer <-chan time.Time
			if d := c.String("duration"); d != "" {
				dur, err := time.ParseDuration(d)
				if err != nil || dur <= 0 {
					return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid duration: %s", d)))
				}
				timer = time.After(dur)
			}

			ctx, stop := osignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			autoStopped := make(chan *session.Recording, 1)
			m := buildMeter(cfg, func(rec *session.Recording) {
				autoStopped <- rec
			})

			if c.Bool("calibrate") {
				m.Calibrate()
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go m.Run(runCtx)

			m.Manager().Start()
			fmt.Fprintln(os.Stderr, "recording... press Ctrl-C to stop")

			var rec *session.Recording
			select {
			case <-ctx.Done():
				rec = m.Manager().Stop()
			case <-timer:
				rec = m.Manager().Stop()
			case rec = <-autoStopped:
				fmt.Fprintln(os.Stderr, "recording ceiling reached, stopping")
			}
			cancel()

			if rec == nil {
				// Stop raced an auto-stop; the finalized session is on the channel.
				select {
				case rec = <-autoStopped:
				default:
				}
			}
			if rec == nil {
				return outputError(errors.NewConflict("no recording in progress"))
			}

			rec.Name = c.String("name")
			rec.Notes = c.String("notes")
			if err := st.Save(rec); err != nil {
				return outputError(err)
			}

			return outputJSON(rec.ToMetadata())
		},
	}
}

// listCmd creates the list command.
func listCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List saved sessions, most recent first",
		Action: func(c *cli.Context) error {
			sessions, err := st.Sessions()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(sessions)
		},
	}
}

// showCmd creates the show command.
func showCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a session's metadata and statistics",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "readings", Aliases: []string{"r"}, Usage: "Include the full readings log"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("session id is required"))
			}

			rec, err := st.Load(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			out := struct {
				session.Metadata
				Notes    string                      `json:"notes,omitempty"`
				Readings []session.TimestampedSample `json:"readings,omitempty"`
			}{
				Metadata: rec.ToMetadata(),
				Notes:    rec.Notes,
			}
			if c.Bool("readings") {
				out.Readings = rec.Readings
			}

			return outputJSON(out)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a session as CSV or a text summary",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "csv", Usage: "Export format: csv|summary"},
			&cli.StringFlag{Name: "unit", Aliases: []string{"u"}, Usage: "Display unit: uT|mG|G (defaults to config)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output path (defaults to a generated filename)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("session id is required"))
			}

			rec, err := st.Load(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			unit, err := resolveUnit(c.String("unit"), cfg)
			if err != nil {
				return outputError(err)
			}

			var data []byte
			var ext string
			switch c.String("format") {
			case "csv":
				data, err = export.ToCSV(rec, unit)
				ext = "csv"
			case "summary":
				var text string
				text, err = export.ToSummary(rec, unit)
				data = []byte(text)
				ext = "txt"
			default:
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown format: %s", c.String("format"))))
			}
			if err != nil {
				return outputError(err)
			}

			path := c.String("out")
			if path == "" {
				path = export.Filename(rec, ext)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return outputError(errors.NewInternal(err))
			}

			return outputJSON(struct {
				Path  string `json:"path"`
				Bytes int    `json:"bytes"`
			}{path, len(data)})
		},
	}
}

// renameCmd creates the rename command.
func renameCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "Rename a session",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "New session name"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("session id is required"))
			}

			id := c.Args().First()
			if err := st.Rename(id, c.String("name")); err != nil {
				return outputError(err)
			}

			return outputJSON(struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}{id, c.String("name")})
		},
	}
}

// annotateCmd creates the annotate command.
func annotateCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "annotate",
		Usage:     "Attach notes to a session (reads from stdin when piped)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "notes", Usage: "Notes text, markdown allowed"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("session id is required"))
			}

			notes := c.String("notes")
			if notes == "" && stdinHasData() {
				text, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				notes = text
			}
			if notes == "" {
				return outputError(errors.NewInvalidRequest("notes are required (use --notes or pipe via stdin)"))
			}

			id := c.Args().First()
			if err := st.Annotate(id, notes); err != nil {
				return outputError(err)
			}

			return outputJSON(struct {
				ID    string `json:"id"`
				Notes string `json:"notes"`
			}{id, notes})
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a session",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("session id is required"))
			}

			id := c.Args().First()
			if err := st.Delete(id); err != nil {
				return outputError(err)
			}

			return outputJSON(struct {
				ID      string `json:"id"`
				Deleted bool   `json:"deleted"`
			}{id, true})
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete all sessions",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Required; purge does not prompt"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("force") {
				return outputError(errors.NewInvalidRequest("refusing to purge without --force"))
			}
			if err := st.DeleteAll(); err != nil {
				return outputError(err)
			}
			return outputJSON(struct {
				Purged bool `json:"purged"`
			}{true})
		},
	}
}

// sizeCmd creates the size command.
func sizeCmd(st *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "size",
		Usage: "Report total bytes used by stored sessions",
		Action: func(c *cli.Context) error {
			bytes, err := st.Size()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(struct {
				Bytes int64 `json:"bytes"`
			}{bytes})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the web UI with a live meter feed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (defaults to config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (defaults to config)"},
		},
		Action: func(c *cli.Context) error {
			bind := cfg.WebBind
			if b := c.String("bind"); b != "" {
				bind = b
			}
			port := cfg.WebPort
			if p := c.Int("port"); p != 0 {
				port = p
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			m := buildMeter(cfg, nil)
			go m.Run(ctx)

			srv := web.NewServer(st, cfg, m, Version, bind, port)
			return web.Run(srv)
		},
	}
}

// publishCmd creates the publish command.
func publishCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish live meter frames to an MQTT broker",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "broker", Aliases: []string{"b"}, Usage: "Broker URL (defaults to config)"},
			&cli.StringFlag{Name: "topic", Aliases: []string{"t"}, Usage: "Topic (defaults to config)"},
			&cli.IntFlag{Name: "rate", Aliases: []string{"r"}, Value: 10, Usage: "Frames per second"},
		},
		Action: func(c *cli.Context) error {
			broker := cfg.MQTTBroker
			if b := c.String("broker"); b != "" {
				broker = b
			}
			topic := cfg.MQTTTopic
			if t := c.String("topic"); t != "" {
				topic = t
			}

			ctx, stop := osignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := buildMeter(cfg, nil)
			go m.Run(ctx)

			err := publish.Run(ctx, m, publish.Options{
				Broker: broker,
				Topic:  topic,
				RateHz: c.Int("rate"),
			})
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// Helper functions

// resolveUnit picks the display unit from the flag, then config, then µT.
func resolveUnit(flag string, cfg *config.Config) (units.Unit, error) {
	if flag != "" {
		u, ok := units.Parse(flag)
		if !ok {
			return "", errors.NewInvalidRequest(fmt.Sprintf("unknown unit: %s", flag))
		}
		return u, nil
	}
	if u, ok := units.Parse(cfg.Unit); ok {
		return u, nil
	}
	return units.Microtesla, nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if mErr, ok := err.(*errors.MeterError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", mErr.Code, mErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
