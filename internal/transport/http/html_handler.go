package http

import (
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
)

// ServeDashboard serves the dashboard single-page application. An
// index.html under webDir wins over the embedded copy so operators can
// replace the page without rebuilding.
func ServeDashboard(webDir string, embedded fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		indexPath := filepath.Join(webDir, "index.html")
		if _, err := os.Stat(indexPath); err == nil {
			tmpl, err := template.ParseFiles(indexPath)
			serveHTML(w, r, tmpl, err)
			return
		}

		if embedded != nil {
			tmpl, err := template.ParseFS(embedded, "index.html")
			serveHTML(w, r, tmpl, err)
			return
		}

		http.Error(w, "Dashboard page not found", http.StatusNotFound)
	}
}

// RedirectToDashboard redirects root requests to the dashboard page
func RedirectToDashboard(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusTemporaryRedirect)
}

// serveHTML renders a parsed HTML template with proper headers
func serveHTML(w http.ResponseWriter, r *http.Request, tmpl *template.Template, err error) {
	if err != nil {
		http.Error(w, "Error loading page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := tmpl.Execute(w, nil); err != nil {
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
	}
}
