package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	texttemplate "text/template"

	"github.com/FocuswithJustin/JuniperReader/core/prefs"
)

//go:embed templates/*
var templatesFS embed.FS

var (
	bootstrapTemplate = texttemplate.Must(texttemplate.New("bootstrap.js.tmpl").
				Funcs(texttemplate.FuncMap{"json": toJSON}).
				ParseFS(templatesFS, "templates/bootstrap.js.tmpl"))
	shellTemplate = template.Must(template.ParseFS(templatesFS, "templates/shell.html"))
)

type scriptPreference struct {
	Key       string   `json:"key"`
	Attribute string   `json:"attribute"`
	Default   string   `json:"default"`
	Values    []string `json:"values"`
}

type shellData struct {
	ContextID    string
	Nikud        string
	Cantillation string
	Sefer        string
	TextSource   string
	Theme        string
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	return string(data), err
}

// BootstrapScript renders the pre-paint script for the given definitions.
func BootstrapScript(defs []prefs.Definition) ([]byte, error) {
	list := make([]scriptPreference, 0, len(defs))
	for _, d := range defs {
		list = append(list, scriptPreference{
			Key:       string(d.Key),
			Attribute: d.Attribute,
			Default:   d.Default,
			Values:    d.Values,
		})
	}
	var buf bytes.Buffer
	if err := bootstrapTemplate.ExecuteTemplate(&buf, "bootstrap.js.tmpl", list); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) handleBootstrapScript(w http.ResponseWriter, r *http.Request) {
	script, err := BootstrapScript(prefs.Definitions())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(script)
}

// handleShell serves the page shell with every preference attribute already
// set from the store, the server-side half of the bootstrap channel.
func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	ctx := s.requestContext(r)
	defer ctx.Close()
	snap := ctx.Snapshot()
	data := shellData{
		ContextID:    ctx.ID(),
		Nikud:        snap[prefs.KeyNikud],
		Cantillation: snap[prefs.KeyCantillation],
		Sefer:        snap[prefs.KeySefer],
		TextSource:   snap[prefs.KeyTextSource],
		Theme:        snap[prefs.KeyTheme],
	}

	var buf bytes.Buffer
	if err := shellTemplate.ExecuteTemplate(&buf, "shell.html", data); err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
