// Package handlers contains the full set of handler functions and routes
// supported by the viewer.
package handlers

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"os"

	"github.com/kadchain/blockchain/business/web/mid"
	"github.com/kadchain/blockchain/foundation/web"
	"go.uber.org/zap"
)

//go:embed assets/index.html
var assets embed.FS

// Config contains the settings the viewer page is rendered with.
type Config struct {
	Build     string
	Shutdown  chan os.Signal
	Log       *zap.SugaredLogger
	EventsURL string
	NodeURL   string
}

// UIMux constructs an http.Handler with all application routes defined.
func UIMux(cfg Config) (*web.App, error) {
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Panics(),
		mid.Cors("*"),
	)

	// Register the index page for the website.
	tmpl, err := template.ParseFS(assets, "assets/index.html")
	if err != nil {
		return nil, fmt.Errorf("loading index template: %w", err)
	}

	idx := index{
		tmpl: tmpl,
		data: page{
			Build:     cfg.Build,
			EventsURL: cfg.EventsURL,
			NodeURL:   cfg.NodeURL,
		},
	}
	app.Handle(http.MethodGet, "", "/", idx.handler)

	return app, nil
}

// page is the data the index template is executed with.
type page struct {
	Build     string
	EventsURL string
	NodeURL   string
}

type index struct {
	tmpl *template.Template
	data page
}

func (idx index) handler(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := web.SetStatusCode(ctx, http.StatusOK); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := idx.tmpl.Execute(w, idx.data); err != nil {
		return fmt.Errorf("render index page: %w", err)
	}

	return nil
}
