package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/wudi/pdfoverlay/config"
	"github.com/wudi/pdfoverlay/internal/pdftest"
	"github.com/wudi/pdfoverlay/observability"
	"github.com/wudi/pdfoverlay/persist"
)

func testApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Storage.Dir = filepath.Join(dir, "pdfs")
	cfg.Database.Path = filepath.Join(dir, "reports.db")
	cfg.Log.Level = "error"
	a, err := newApp(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAppWiresTracer(t *testing.T) {
	a := testApp(t)
	if a.tracer == nil || a.tracer == observability.NopTracer() {
		t.Fatalf("tracer = %#v", a.tracer)
	}
	if a.decoder.Tracer != a.tracer || a.exporter.Tracer != a.tracer || a.renderer().Tracer != a.tracer {
		t.Fatalf("decode, export and render must share the app tracer")
	}
}

func TestAppServesSavedDocuments(t *testing.T) {
	a := testApp(t)
	st, err := a.openStorage()
	if err != nil {
		t.Fatal(err)
	}
	defer st.db.Close()
	ts := httptest.NewServer(a.server(st).Handler())
	defer ts.Close()
	st.files.BaseURL = ts.URL + "/files"

	post := func(url, contentType string, body []byte) *http.Response {
		t.Helper()
		resp, err := http.Post(url, contentType, bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}
	var created map[string]string
	json.NewDecoder(post(ts.URL+"/sessions", "application/json", nil).Body).Decode(&created)
	base := ts.URL + "/sessions/" + created["id"]

	req, _ := http.NewRequest(http.MethodPut, base+"/document?name=roof.pdf",
		bytes.NewReader(pdftest.Build(pdftest.Pages(1, pdftest.Letter), pdftest.Options{})))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: %d", resp.StatusCode)
	}

	report, _ := json.Marshal(persist.Report{PolicyNumber: "P-3"})
	resp = post(base+"/save", "application/json", report)
	var saved map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("save: %d %v", resp.StatusCode, err)
	}

	file, err := http.Get(saved["url"])
	if err != nil {
		t.Fatal(err)
	}
	file.Body.Close()
	if file.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: %d", saved["url"], file.StatusCode)
	}
	rec, err := st.recorder.Get(t.Context(), saved["recordId"])
	if err != nil || rec.PDFURL != saved["url"] {
		t.Fatalf("record %+v, %v", rec, err)
	}
}
