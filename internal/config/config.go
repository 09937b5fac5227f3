package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Environment variables read by FromEnv.
const (
	EnvInstallRoot = "OPENSBLI_INSTALL"
	EnvTranslator  = "OPS_TRANSLATOR"
)

// Defaults for the OpenSBLI/OPS toolchain.
const (
	DefaultInterpreter     = "python"
	DefaultMake            = "make"
	DefaultIntermediate    = "opensbli.cpp"
	DefaultTranslatorEntry = "ops.py"
	DefaultMakefile        = "Makefile"
)

// DefaultTargets are the build targets every application must produce,
// in build order.
var DefaultTargets = []string{"opensbli_seq", "opensbli_mpi"}

// DefaultApps lists the example generator scripts, relative to the
// applications directory.
var DefaultApps = []string{
	"wave/wave.py",
	"euler_wave/euler_wave.py",
	"Sod_shock_tube/Sod_shock_tube.py",
	"taylor_green_vortex/TGsym/TGsym.py",
}

// ErrMissingEnv is matched by every ConfigError.
var ErrMissingEnv = errors.New("required configuration not set")

// ConfigError reports a required configuration value that is missing.
type ConfigError struct {
	Var string // environment variable that supplies the value
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("$%s has not been set", e.Var)
}

func (e *ConfigError) Unwrap() error {
	return ErrMissingEnv
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Stages toggles individual pipeline stages. A disabled stage is skipped
// and does not fail the application.
type Stages struct {
	Generate  bool
	Translate bool
	Compile   bool
}

// Config is the harness configuration, populated once at startup and passed
// by value into the harness.
type Config struct {
	InstallRoot   string // base directory holding apps/ and the build template
	TranslatorDir string // directory containing the translator entry point

	Workspace string   // staging root; defaults to {InstallRoot}/tests
	Apps      []string // generator scripts relative to AppsDir

	Interpreter     string
	TranslatorEntry string
	Intermediate    string // file the translator is run against
	Make            string
	Jobs            int // 0 means one job per available CPU
	Targets         []string

	Stages  Stages
	Cleanup bool // remove the workspace after the run
}

// Default returns a Config with every optional field set. InstallRoot and
// TranslatorDir are left empty.
func Default() Config {
	return Config{
		Apps:            append([]string(nil), DefaultApps...),
		Interpreter:     DefaultInterpreter,
		TranslatorEntry: DefaultTranslatorEntry,
		Intermediate:    DefaultIntermediate,
		Make:            DefaultMake,
		Targets:         append([]string(nil), DefaultTargets...),
		Stages:          Stages{Generate: true, Translate: true, Compile: true},
	}
}

// FromEnv returns the default configuration with the required values taken
// from the environment. A nil lookup uses os.LookupEnv.
func FromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := Default()
	cfg.InstallRoot, _ = lookup(EnvInstallRoot)
	cfg.TranslatorDir, _ = lookup(EnvTranslator)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the required values are present. The installation
// root is checked first.
func (c Config) Validate() error {
	if c.InstallRoot == "" {
		return &ConfigError{Var: EnvInstallRoot}
	}
	if c.TranslatorDir == "" {
		return &ConfigError{Var: EnvTranslator}
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must be non-negative, got %d", c.Jobs)
	}
	if len(c.Targets) == 0 {
		return errors.New("at least one build target is required")
	}
	if !c.Stages.Generate && !c.Stages.Translate && !c.Stages.Compile {
		return errors.New("at least one stage must be enabled")
	}
	return CheckAppNames(c.Apps)
}

// AppName is the file stem of script. Its staged copy lives under a
// workspace directory of that name.
func AppName(script string) string {
	base := filepath.Base(script)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CheckAppNames fails if two scripts share an application name.
func CheckAppNames(scripts []string) error {
	seen := make(map[string]string, len(scripts))
	for _, script := range scripts {
		name := AppName(script)
		if first, ok := seen[name]; ok {
			return fmt.Errorf("applications %s and %s share the name %q", first, script, name)
		}
		seen[name] = script
	}
	return nil
}

// AppsDir is the directory the example applications live under.
func (c Config) AppsDir() string {
	return filepath.Join(c.InstallRoot, "apps")
}

// MakefileTemplate is the build file copied into every staged application.
func (c Config) MakefileTemplate() string {
	return filepath.Join(c.AppsDir(), DefaultMakefile)
}

// WorkspaceDir is where applications are staged.
func (c Config) WorkspaceDir() string {
	if c.Workspace != "" {
		return c.Workspace
	}
	return filepath.Join(c.InstallRoot, "tests")
}

// TranslatorScript is the translator entry point.
func (c Config) TranslatorScript() string {
	return filepath.Join(c.TranslatorDir, c.TranslatorEntry)
}

// BuildJobs is the parallelism handed to the build tool.
func (c Config) BuildJobs() int {
	if c.Jobs > 0 {
		return c.Jobs
	}
	return runtime.NumCPU()
}
