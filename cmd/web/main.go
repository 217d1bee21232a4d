package main

import (
	"embed"
	"io/fs"
	"log/slog"
	"os"

	"callpulse/internal/app"
)

// Embedded dashboard page. A copy placed in the web directory next to
// the binary overrides it.
//go:embed frontend
var frontendFiles embed.FS

func main() {
	frontendFS, err := fs.Sub(frontendFiles, "frontend")
	if err != nil {
		slog.Warn("Dashboard embedding failed, serving from web directory only",
			slog.String("error", err.Error()))
		frontendFS = nil
	}

	application, err := app.NewApplication(frontendFS)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
