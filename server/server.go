// Package server exposes editing sessions over a JSON HTTP API.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/wudi/pdfoverlay/annotation"
	"github.com/wudi/pdfoverlay/builder"
	"github.com/wudi/pdfoverlay/coords"
	"github.com/wudi/pdfoverlay/document"
	"github.com/wudi/pdfoverlay/export"
	"github.com/wudi/pdfoverlay/fonts"
	"github.com/wudi/pdfoverlay/observability"
	"github.com/wudi/pdfoverlay/persist"
	"github.com/wudi/pdfoverlay/render"
	"github.com/wudi/pdfoverlay/session"
)

// DefaultMaxUpload bounds document and image uploads.
const DefaultMaxUpload = 100 << 20

// Server routes requests to the session they name.
type Server struct {
	newSession func() *session.Session
	renderer   *render.Renderer
	logger     observability.Logger
	maxUpload  int64
	reports    Reports
	files      Files

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUpload sets the largest accepted request body in bytes.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// Reports reads the metadata records written by Save.
type Reports interface {
	Get(ctx context.Context, id string) (persist.Record, error)
	List(ctx context.Context, limit int) ([]persist.Record, error)
}

// Files resolves a stored blob key to a local path.
type Files interface {
	Open(key string) (string, error)
}

// WithReports serves GET /reports and GET /reports/{id} from r.
func WithReports(r Reports) Option { return func(s *Server) { s.reports = r } }

// WithFiles serves GET /files/{key} from f, the target of the store's base
// URL.
func WithFiles(f Files) Option { return func(s *Server) { s.files = f } }

// New creates a server. newSession is called for every POST /sessions.
func New(newSession func() *session.Session, renderer *render.Renderer, logger observability.Logger, opts ...Option) *Server {
	s := &Server{
		newSession: newSession,
		renderer:   renderer,
		logger:     observability.OrNop(logger),
		maxUpload:  DefaultMaxUpload,
		sessions:   map[string]*session.Session{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP registers the session endpoints on r.
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Post("/sessions", s.handleCreate)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.withSession(s.handleState))
		r.Delete("/", s.handleDelete)
		r.Put("/document", s.withSession(s.handleDocument))
		r.Post("/tool", s.withSession(s.handleTool))
		r.Post("/pointer", s.withSession(s.handlePointer))
		r.Post("/prompt", s.withSession(s.handleConfirm))
		r.Delete("/prompt", s.withSession(s.handleCancel))
		r.Post("/page", s.withSession(s.handlePage))
		r.Post("/edit", s.withSession(s.handleEdit))
		r.Post("/dblclick", s.withSession(s.handleDoubleClick))
		r.Get("/pages/{page:[0-9]+}.png", s.withSession(s.handlePreview))
		r.Post("/export", s.withSession(s.handleExport))
		r.Post("/save", s.withSession(s.handleSave))
	})
	if s.reports != nil {
		r.Get("/reports", s.handleReports)
		r.Get("/reports/{id}", s.handleReport)
	}
	if s.files != nil {
		r.Get("/files/{key}", s.handleFile)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
			observability.Int("status", ww.Status()),
			observability.Int("bytes", ww.BytesWritten()),
			observability.Duration("duration", time.Since(start)),
			observability.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		sess, ok := s.sessions[chi.URLParam(r, "id")]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("session not found"))
			return
		}
		h(w, r, sess)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = s.newSession()
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	name := r.URL.Query().Get("name")
	if err := sess.Load(r.Context(), data, name); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pageCount": sess.State().PageCount})
}

type promptJSON struct {
	Kind    string  `json:"kind"`
	Page    int     `json:"page"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Content string  `json:"content"`
	EditID  string  `json:"editId,omitempty"`
}

type noticeJSON struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type stateJSON struct {
	Loaded    bool         `json:"loaded"`
	Name      string       `json:"name,omitempty"`
	Mode      string       `json:"mode"`
	Page      int          `json:"page"`
	PageCount int          `json:"pageCount"`
	EditMode  bool         `json:"editMode"`
	Exporting bool         `json:"exporting"`
	Prompt    *promptJSON  `json:"prompt,omitempty"`
	Notices   []noticeJSON `json:"notices"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	st := sess.State()
	out := stateJSON{
		Loaded:    st.Loaded,
		Name:      st.Name,
		Mode:      st.Mode.String(),
		Page:      st.Page,
		PageCount: st.PageCount,
		EditMode:  st.EditMode,
		Exporting: st.Exporting,
		Notices:   []noticeJSON{},
	}
	if p := st.Prompt; p != nil {
		out.Prompt = &promptJSON{Kind: p.Kind.String(), Page: p.Page, X: p.At.X, Y: p.At.Y, Content: p.Content, EditID: p.EditID}
	}
	for _, n := range sess.Notices() {
		out.Notices = append(out.Notices, noticeJSON{Level: n.Level.String(), Message: n.Message, At: n.At})
	}
	writeJSON(w, http.StatusOK, out)
}

type toolRequest struct {
	Tool   string  `json:"tool"`
	Image  []byte  `json:"image,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req toolRequest
	if !s.decode(w, r, &req) {
		return
	}
	mode, err := session.ParseMode(req.Tool)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if mode == session.PlacingImage && len(req.Image) > 0 {
		err = sess.SelectImageTool(req.Image, req.Width, req.Height)
	} else {
		err = sess.SelectTool(mode)
	}
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": sess.State().Mode.String()})
}

type pointerRequest struct {
	Event string  `json:"event"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// handlePointer takes surface pixels and hands page units to the session.
func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req pointerRequest
	if !s.decode(w, r, &req) {
		return
	}
	pt := coords.Point{X: req.X / s.renderer.Scale, Y: req.Y / s.renderer.Scale}
	var err error
	switch req.Event {
	case "down":
		err = sess.PointerDown(pt)
	case "move":
		err = sess.PointerMove(pt)
	case "up":
		err = sess.PointerUp(pt)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown pointer event %q", req.Event))
		return
	}
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type promptRequest struct {
	Content string  `json:"content"`
	Family  string  `json:"family"`
	Weight  string  `json:"weight"` // normal | bold
	Size    float64 `json:"size"`
	Color   string  `json:"color"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req promptRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := sess.ConfirmPrompt(session.PromptInput{
		Content: req.Content,
		Style: annotation.TextStyle{
			Family: req.Family,
			Bold:   req.Weight == "bold",
			Size:   req.Size,
			Color:  req.Color,
		},
	})
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.CancelPrompt(); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pageRequest struct {
	Action string `json:"action"` // next | prev | goto
	Page   int    `json:"page"`
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req pageRequest
	if !s.decode(w, r, &req) {
		return
	}
	var page int
	switch req.Action {
	case "next":
		page = sess.NextPage()
	case "prev":
		page = sess.PrevPage()
	case "goto":
		page = sess.GoToPage(req.Page)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown page action %q", req.Action))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"page": page})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, map[string]bool{"editMode": sess.ToggleEditMode()})
}

func (s *Server) handleDoubleClick(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req pointerRequest
	if !s.decode(w, r, &req) {
		return
	}
	opened, err := sess.DoubleClick(coords.Point{X: req.X / s.renderer.Scale, Y: req.Y / s.renderer.Scale})
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"opened": opened})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st := sess.State()
	doc, m := sess.Snapshot()
	if doc == nil {
		writeError(w, http.StatusConflict, session.ErrNoDocument)
		return
	}
	if page < 1 || page > doc.PageCount() {
		writeError(w, http.StatusNotFound, fmt.Errorf("page %d out of range [1, %d]", page, doc.PageCount()))
		return
	}
	var g *render.Gesture
	if st.Gesture != nil && page == st.Page {
		g = &render.Gesture{Rect: *st.Gesture, Erase: st.Mode == session.Erasing}
	}
	img, err := s.renderer.Compose(r.Context(), doc, m, page, g)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	out, err := sess.Export(r.Context())
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.Write(out)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var report persist.Report
	if !s.decode(w, r, &report) {
		return
	}
	url, id, err := sess.Save(r.Context(), report)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url, "recordId": id})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	recs, err := s.reports.List(r.Context(), limit)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": recs})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.reports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path, err := s.files.Open(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUpload)).Decode(v); err != nil {
		writeError(w, statusOf(err), fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// statusOf maps an error to the HTTP status reported for it.
func statusOf(err error) int {
	var (
		maxBytes *http.MaxBytesError
		decode   *document.DecodeError
		color    *builder.ColorParseError
		font     *export.FontEmbedError
		image    *export.ImageEmbedError
		family   *fonts.UnknownFamilyError
		staged   *session.ImageError
		pre      *session.ToolPreconditionError
		store    *persist.StoreError
		record   *persist.RecordError
		syntax   *json.SyntaxError
	)
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &syntax):
		return http.StatusBadRequest
	case errors.As(err, &decode), errors.As(err, &color), errors.As(err, &font),
		errors.As(err, &image), errors.As(err, &family), errors.As(err, &staged):
		return http.StatusUnprocessableEntity
	case errors.As(err, &pre), errors.Is(err, session.ErrExportInProgress),
		errors.Is(err, session.ErrPromptPending), errors.Is(err, session.ErrNoPrompt):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoImage):
		return http.StatusBadRequest
	case errors.As(err, &store), errors.As(err, &record):
		return http.StatusBadGateway
	case errors.Is(err, persist.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
