// Command reader serves and renders the Hebrew reader.
// It provides commands for running the web server, rendering chapters,
// resolving alternate verse numbers and managing stored preferences.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/prefs"
	"github.com/FocuswithJustin/JuniperReader/core/reference"
	"github.com/FocuswithJustin/JuniperReader/core/render"
	"github.com/FocuswithJustin/JuniperReader/core/scripture"
	"github.com/FocuswithJustin/JuniperReader/core/versification"
	"github.com/FocuswithJustin/JuniperReader/internal/config"
	"github.com/FocuswithJustin/JuniperReader/internal/kvstore"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
	"github.com/FocuswithJustin/JuniperReader/internal/web"
)

const version = "0.1.0"

// cliContextID names the browsing context CLI commands act as.
const cliContextID = "cli"

// Globals are flags shared by every command.
type Globals struct {
	Config  string `name:"config" short:"c" help:"Path to YAML config file" default:"reader.yaml" type:"path"`
	DataDir string `name:"data-dir" help:"Override the book directory" type:"path"`
	Store   string `name:"store" help:"Override the preference store backend (memory, file, sqlite, none)"`
	Path    string `name:"store-path" help:"Override the preference store path" type:"path"`
}

// CLI defines the command-line interface for reader.
var CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" help:"Start the reader web server"`
	Render  RenderCmd  `cmd:"" help:"Render a chapter or verse"`
	Resolve ResolveCmd `cmd:"" help:"Resolve a verse's alternate number"`
	Prefs   PrefsGroup `cmd:"" help:"Stored preference operations"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// PrefsGroup contains preference operations.
type PrefsGroup struct {
	List PrefsListCmd `cmd:"" help:"List every preference with its effective value"`
	Get  PrefsGetCmd  `cmd:"" help:"Print one preference"`
	Set  PrefsSetCmd  `cmd:"" help:"Store one preference"`
}

// loadConfig reads the config file and environment, then applies flag
// overrides.
func (g *Globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.DataDir != "" {
		cfg.Data.Dir = g.DataDir
	}
	if g.Store != "" {
		cfg.Store.Backend = g.Store
	}
	if g.Path != "" {
		cfg.Store.Path = g.Path
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.InitLogging()
	return cfg, nil
}

// openStore opens the configured store for a one-shot command. The file
// watcher is only useful to long-running processes.
func openStore(cfg *config.Config) (kvstore.Store, error) {
	opts := cfg.StoreOptions()
	opts.Watch = false
	return kvstore.Open(opts)
}

func newLibrary(cfg *config.Config) (*scripture.Library, error) {
	ttl, err := cfg.BookCacheTTL()
	if err != nil {
		return nil, err
	}
	return scripture.NewLibrary(cfg.Data.Dir, ttl), nil
}

// ServeCmd starts the web server.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)"`
	Warm bool   `help:"Load the versification dataset before accepting requests"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	store, err := kvstore.Open(cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("opening preference store: %w", err)
	}
	defer store.Close()

	library, err := newLibrary(cfg)
	if err != nil {
		return err
	}
	resolver := versification.NewResolver(cfg.VersificationSource(), cfg.Versification.Workers)
	if c.Warm {
		if err := resolver.Warm(context.Background()); err != nil {
			logging.Warn("versification dataset unavailable", "error", err)
		}
	}

	srv := web.New(web.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WriteLimit: web.LimitConfig{
			PerMinute: cfg.Server.WritesPerMinute,
			Burst:     cfg.Server.WriteBurst,
		},
		PageCacheSize: cfg.Server.PageCacheSize,
	}, store, library, resolver)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		logging.Info("shutting down", "signal", s.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// RenderCmd renders a chapter, or one verse of it, as text.
type RenderCmd struct {
	Ref   string            `arg:"" help:"Reference, e.g. \"Psalms 3\" or \"Ps 3:1\""`
	Pref  map[string]string `name:"pref" short:"P" help:"Preference override for this render (key=value)"`
	Sefer bool              `help:"Print the chapter as one paragraph"`
}

func (c *RenderCmd) Run(g *Globals, out io.Writer) error {
	ref, err := reference.Parse(c.Ref)
	if err != nil {
		return err
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening preference store: %w", err)
	}
	defer store.Close()

	library, err := newLibrary(cfg)
	if err != nil {
		return err
	}
	ch, err := library.Chapter(ref.Book, ref.Chapter)
	if errors.Is(err, rerrors.ErrNotFound) {
		fmt.Fprintf(out, "%s: coming soon\n", ref)
		return nil
	}
	if err != nil {
		return err
	}

	attrs, err := prefAttributes(c.Pref)
	if err != nil {
		return err
	}
	pctx := prefs.NewContextWithDocument(cliContextID, store, prefs.NewDocumentFrom(attrs))
	defer pctx.Close()
	snap := pctx.Snapshot()
	sefer := c.Sefer || snap[prefs.KeySefer] == "true"

	resolver := versification.NewResolver(cfg.VersificationSource(), cfg.Versification.Workers)
	alternates := resolver.ResolveChapter(context.Background(), ref.Book, ref.Chapter, ch.VerseNumbers())

	if ref.HasVerse() {
		v, ok := ch.Verse(ref.VerseNumber())
		if !ok {
			return rerrors.NewNotFound("verse", ref.String())
		}
		text := render.Verse(v, render.OptionsFromSnapshot(snap))
		fmt.Fprintf(out, "%s\t%s\n", render.VerseLabel(v.Number, alternates[v.Number]), text)
		return nil
	}

	page := render.Chapter(ch, render.OptionsFromSnapshot(snap), sefer, alternates)
	writePage(out, page)
	return nil
}

func writePage(out io.Writer, page render.Page) {
	if page.LeadIn != "" {
		fmt.Fprintln(out, page.LeadIn)
	}
	if page.Paragraph != "" {
		fmt.Fprintln(out, page.Paragraph)
		return
	}
	for _, line := range page.Lines {
		fmt.Fprintf(out, "%s\t%s\n", line.Label, line.Text)
	}
}

// prefAttributes turns key=value overrides into document attributes.
func prefAttributes(overrides map[string]string) (map[string]string, error) {
	attrs := make(map[string]string, len(overrides))
	for name, value := range overrides {
		def, ok := prefs.LookupName(name)
		if !ok {
			return nil, rerrors.NewValidation("pref", name, "unknown preference")
		}
		if !def.Valid(value) {
			return nil, rerrors.NewValidation(string(def.Key), value,
				fmt.Sprintf("must be one of %v", def.Values))
		}
		attrs[def.Attribute] = value
	}
	return attrs, nil
}

// ResolveCmd prints the alternate numbering of one verse.
type ResolveCmd struct {
	Ref string `arg:"" help:"Verse reference, e.g. \"Ps 3:1\""`
}

func (c *ResolveCmd) Run(g *Globals, out io.Writer) error {
	ref, err := reference.Parse(c.Ref)
	if err != nil {
		return err
	}
	if !ref.HasVerse() {
		return rerrors.NewValidation("ref", c.Ref, "reference must name a verse")
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	resolver := versification.NewResolver(cfg.VersificationSource(), cfg.Versification.Workers)
	alt, ok := resolver.Resolve(context.Background(), ref.Book, ref.Chapter, ref.VerseNumber())
	if !ok {
		fmt.Fprintf(out, "%s\t-\n", ref)
		return nil
	}
	fmt.Fprintf(out, "%s\t%s\n", ref, alt)
	return nil
}

// PrefsListCmd lists the effective value of every preference.
type PrefsListCmd struct{}

func (c *PrefsListCmd) Run(g *Globals, out io.Writer) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening preference store: %w", err)
	}
	defer store.Close()

	pctx := prefs.NewContextWithDocument(cliContextID, store, prefs.NewDocument())
	defer pctx.Close()
	snap := pctx.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s=%s\n", k, snap[prefs.Key(k)])
	}
	return nil
}

// PrefsGetCmd prints one preference.
type PrefsGetCmd struct {
	Key string `arg:"" help:"Preference key"`
}

func (c *PrefsGetCmd) Run(g *Globals, out io.Writer) error {
	def, ok := prefs.LookupName(c.Key)
	if !ok {
		return rerrors.NewNotFound("preference", c.Key)
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening preference store: %w", err)
	}
	defer store.Close()

	ctx := prefs.NewContextWithDocument(cliContextID, store, prefs.NewDocument())
	defer ctx.Close()
	fmt.Fprintln(out, ctx.Snapshot()[def.Key])
	return nil
}

// PrefsSetCmd stores one preference.
type PrefsSetCmd struct {
	Key   string `arg:"" help:"Preference key"`
	Value string `arg:"" help:"New value"`
}

func (c *PrefsSetCmd) Run(g *Globals, out io.Writer) error {
	def, ok := prefs.LookupName(c.Key)
	if !ok {
		return rerrors.NewNotFound("preference", c.Key)
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening preference store: %w", err)
	}
	defer store.Close()

	ctx := prefs.NewContextWithDocument(cliContextID, store, prefs.NewDocument())
	defer ctx.Close()
	p := ctx.OpenDefinition(def)
	defer p.Close()
	if err := p.Set(c.Value); err != nil {
		return err
	}
	if ctx.Degraded() {
		fmt.Fprintf(out, "%s=%s (not persisted: %s store unavailable)\n", def.Key, p.Get(), store.Backend())
		return nil
	}
	fmt.Fprintf(out, "%s=%s\n", def.Key, p.Get())
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(out io.Writer) error {
	fmt.Fprintf(out, "reader version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("reader"),
		kong.Description("Hebrew reader - chapters, preferences and versification"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.BindTo(os.Stdout, (*io.Writer)(nil)),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
