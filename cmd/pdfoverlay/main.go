package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wudi/pdfoverlay/annotation"
	"github.com/wudi/pdfoverlay/config"
	"github.com/wudi/pdfoverlay/contentstream"
	"github.com/wudi/pdfoverlay/document"
	"github.com/wudi/pdfoverlay/observability"
)

const usage = `Usage: pdfoverlay <command> [flags]

Commands:
  serve    run the HTTP editing API
  bake     apply an annotation script to a PDF
  inspect  print the operators of a page's last content stream
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "serve":
		err = runServe(args)
	case "bake":
		err = runBake(args)
	case "inspect":
		err = runInspect(args, os.Stdout)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "pdfoverlay: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfoverlay %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	listen := fs.String("listen", "", "Listen address (overrides the config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	st, err := a.openStorage()
	if err != nil {
		return err
	}
	defer st.db.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.server(st).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 1)
	go func() {
		a.logger.Info("listening", observability.String("addr", cfg.Listen))
		errc <- httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func runBake(args []string) error {
	fs := flag.NewFlagSet("bake", flag.ContinueOnError)
	in := fs.String("in", "", "Source PDF")
	scriptPath := fs.String("script", "", "YAML annotation script")
	out := fs.String("out", "", "Output PDF")
	configPath := fs.String("config", "", "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *scriptPath == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("-in, -script and -out are required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	s, err := loadScript(*scriptPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	ctx := context.Background()
	doc, err := a.decoder.Decode(ctx, data)
	if err != nil {
		return err
	}
	m := annotation.New(doc.PageCount())
	if err := s.apply(m, filepath.Dir(*scriptPath)); err != nil {
		return err
	}
	baked, err := a.exporter.Export(ctx, doc, m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, baked, 0o644); err != nil {
		return err
	}
	a.logger.Info("baked", observability.String("out", *out), observability.Int("bytes", len(baked)))
	return nil
}

func runInspect(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	in := fs.String("in", "", "PDF to inspect")
	page := fs.Int("page", 1, "Page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return fmt.Errorf("-in is required")
	}
	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	return inspect(context.Background(), data, *page, w)
}

// inspect writes one operator per line from the last content stream of page,
// which is the annotation layer of a baked document.
func inspect(ctx context.Context, data []byte, page int, w io.Writer) error {
	doc, err := document.Decode(ctx, data)
	if err != nil {
		return err
	}
	if page < 1 || page > doc.PageCount() {
		return fmt.Errorf("page %d out of range [1, %d]", page, doc.PageCount())
	}
	refs, err := doc.Contents(page)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return fmt.Errorf("page %d has no content", page)
	}
	last := refs[len(refs)-1]
	content, err := doc.StreamContent(last)
	if err != nil {
		return err
	}
	ops, err := contentstream.Parse(content)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "page %d, stream %d %d R, %d operators\n", page, last.Num, last.Gen, len(ops))
	_, err = w.Write(contentstream.Serialize(ops))
	return err
}
