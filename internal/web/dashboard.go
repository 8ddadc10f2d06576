// Package web serves the operator dashboard: a paste-and-redact form and the
// live feed of redaction events.
package web

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboardTemplate = template.Must(template.New("dashboard").Parse(dashboardHTML))

// DashboardData is rendered into the page.
type DashboardData struct {
	Version string
	// WebSocketPath is empty when the event feed is disabled.
	WebSocketPath string
}

// Dashboard returns a handler serving the dashboard page
func Dashboard(data DashboardData) http.HandlerFunc {
	var page bytes.Buffer
	if err := dashboardTemplate.Execute(&page, data); err != nil {
		panic(err)
	}
	body := page.Bytes()

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		_, _ = w.Write(body)
	}
}
