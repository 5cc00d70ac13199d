package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/wudi/pdfoverlay/config"
	"github.com/wudi/pdfoverlay/document"
	"github.com/wudi/pdfoverlay/export"
	"github.com/wudi/pdfoverlay/fonts"
	"github.com/wudi/pdfoverlay/layout"
	"github.com/wudi/pdfoverlay/observability"
	"github.com/wudi/pdfoverlay/persist"
	"github.com/wudi/pdfoverlay/render"
	"github.com/wudi/pdfoverlay/server"
	"github.com/wudi/pdfoverlay/session"
)

// app holds the components built from one configuration.
type app struct {
	cfg      *config.Config
	logger   observability.Logger
	tracer   observability.Tracer
	engine   *layout.Engine
	decoder  *document.Decoder
	exporter *export.Serializer
}

func newApp(cfg *config.Config) (*app, error) {
	logger := observability.NewTextLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level)

	reg := fonts.NewRegistry()
	for name, f := range cfg.Fonts.Families {
		if err := reg.RegisterFiles(name, f.Regular, f.Bold); err != nil {
			return nil, err
		}
	}
	if cfg.Fonts.Signature != "" {
		data, err := os.ReadFile(cfg.Fonts.Signature)
		if err != nil {
			return nil, fmt.Errorf("signature font: %w", err)
		}
		reg.SetSignature(data)
	}

	engine := layout.NewEngine(reg,
		layout.WithMarks(cfg.Marks.Tick, cfg.Marks.Cross),
		layout.WithStyle(layout.Style{
			InkColor:         cfg.Ink.Color,
			InkWidth:         cfg.Ink.Width,
			HighlightColor:   cfg.Highlight.Color,
			HighlightOpacity: cfg.Highlight.Opacity,
		}),
	)
	tracer := observability.NewLogTracer(logger)
	exporter := export.New(engine, logger)
	exporter.Tracer = tracer
	return &app{
		cfg:    cfg,
		logger: logger,
		tracer: tracer,
		engine: engine,
		decoder: &document.Decoder{
			Limits: document.Limits{MaxDocumentSize: cfg.MaxPDFBytes(), MaxPages: cfg.MaxPages},
			Logger: logger,
			Tracer: tracer,
		},
		exporter: exporter,
	}, nil
}

func (a *app) rasterizer() render.Rasterizer {
	if a.cfg.Render.Rasterizer == "pdftoppm" {
		return render.CommandRasterizer{Path: a.cfg.Render.Pdftoppm}
	}
	return render.BlankRasterizer{}
}

func (a *app) renderer() *render.Renderer {
	r := render.New(a.rasterizer(), a.engine, a.cfg.Render.Scale, a.logger)
	r.Tracer = a.tracer
	return r
}

// storage holds the blob store and the metadata database behind Save and the
// report routes.
type storage struct {
	files    *persist.FileStore
	recorder *persist.SQLiteRecorder
	db       *sql.DB
}

func (s storage) gateway() persist.Gateway {
	return persist.Gateway{Store: s.files, Recorder: s.recorder}
}

// openStorage opens the blob store and the metadata database. The caller
// closes the database.
func (a *app) openStorage() (storage, error) {
	files, err := persist.NewFileStore(a.cfg.Storage.Dir, a.cfg.Storage.BaseURL)
	if err != nil {
		return storage{}, err
	}
	db, err := persist.OpenDB(a.cfg.Database.Path)
	if err != nil {
		return storage{}, err
	}
	return storage{files: files, recorder: persist.NewSQLiteRecorder(db), db: db}, nil
}

// server builds the HTTP API over st.
func (a *app) server(st storage) *server.Server {
	gw := st.gateway()
	return server.New(func() *session.Session { return a.newSession(gw) }, a.renderer(), a.logger,
		server.WithMaxUpload(a.cfg.MaxPDFBytes()),
		server.WithReports(st.recorder),
		server.WithFiles(st.files),
	)
}

func (a *app) newSession(gw persist.Gateway) *session.Session {
	return session.New(a.exporter, a.engine,
		session.WithDecoder(a.decoder),
		session.WithGateway(gw),
		session.WithLogger(a.logger),
		session.WithDateLayout(a.cfg.DateLayout),
	)
}
