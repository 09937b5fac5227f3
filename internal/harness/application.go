package harness

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/roach88/sblismoke/internal/config"
)

// Application describes one example application.
type Application struct {
	Name   string // file stem of Script
	Script string // path to the generator script
}

// NewApplication derives the application name from the script's file stem.
func NewApplication(script string) Application {
	return Application{Name: config.AppName(script), Script: script}
}

// EnumerateApplications returns the applications for scripts, in order.
// Relative scripts are rooted at appsDir. Nothing is checked on disk.
func EnumerateApplications(appsDir string, scripts []string) []Application {
	apps := make([]Application, 0, len(scripts))
	for _, script := range scripts {
		if !filepath.IsAbs(script) {
			script = filepath.Join(appsDir, script)
		}
		apps = append(apps, NewApplication(script))
	}
	return apps
}

// StagedApp is the working copy of an application in the workspace.
type StagedApp struct {
	App  Application
	Path string // {workspace}/{name}/{name}{ext}
}

// Dir is the directory every stage runs in.
func (s StagedApp) Dir() string {
	return filepath.Dir(s.Path)
}

// File is the staged script's base name.
func (s StagedApp) File() string {
	return filepath.Base(s.Path)
}

// StagedPath is where StageApplication puts app's script.
func StagedPath(workspace string, app Application) string {
	return filepath.Join(workspace, app.Name, app.Name+filepath.Ext(app.Script))
}

// StageApplication copies app's script to {workspace}/{name}/{name}{ext},
// creating directories as needed. An existing copy is overwritten.
func StageApplication(workspace string, app Application) (StagedApp, error) {
	if workspace == "" {
		return StagedApp{}, &ArgumentError{Op: "stage", Arg: "workspace"}
	}
	if app.Script == "" {
		return StagedApp{}, &ArgumentError{Op: "stage", Arg: "script"}
	}
	if app.Name == "" {
		return StagedApp{}, &ArgumentError{Op: "stage", Arg: "name"}
	}

	path := StagedPath(workspace, app)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return StagedApp{}, fmt.Errorf("stage %s: %w", app.Name, err)
	}
	if err := copyFile(app.Script, path); err != nil {
		return StagedApp{}, fmt.Errorf("stage %s: %w", app.Name, err)
	}

	return StagedApp{App: app, Path: path}, nil
}

// copyFile copies src to dst, truncating dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
