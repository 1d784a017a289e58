package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/blockadesystems/serve/internal/model"
)

// ServerConfig is the validated, immutable configuration of one run.
type ServerConfig struct {
	RootFolder  string        // Absolute path of the folder being served
	Port        int           // TCP port on localhost
	UseHTTPS    bool          // Serve over TLS with the provisioned certificate
	IdleTimeout time.Duration // Shut down after this long without requests
	Elevated    bool          // Set on the elevated relaunch of this executable
	CertCache   string        // Override of the on-disk certificate cache path
	NoBrowser   bool          // Do not open a browser tab once listening
}

// Error is a configuration problem detected before any side effect.
type Error struct {
	Code model.ExitCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

const (
	defaultPort            = "8080"
	defaultExitTimeoutSecs = "300"
	maxPort                = 65535
)

type cli struct {
	Root            string `arg:"" optional:"" name:"root" help:"Folder to serve. Defaults to the current directory."`
	Elevated        bool   `help:"Marks the elevated relaunch that installs the certificate." hidden:""`
	HTTPS           bool   `name:"https" help:"Serve over HTTPS with a locally trusted certificate." env:"SERVE_HTTPS"`
	Port            string `help:"Port to listen on." default:"${default_port}" env:"SERVE_PORT"`
	ExitTimeoutSecs string `name:"exit-timeout-secs" aliases:"exittimeoutsecs" help:"Exit after this many seconds without requests." default:"${default_exit_timeout_secs}" env:"SERVE_EXIT_TIMEOUT_SECS"`
	CertCache       string `name:"cert-cache" help:"Location of the cached certificate bundle." env:"SERVE_CERT_CACHE"`
	NoBrowser       bool   `name:"no-browser" help:"Do not open a browser tab once listening." env:"SERVE_NO_BROWSER"`
}

// Load parses args (without the program name) and validates the result.
// Parse failures, bad numbers and a missing root folder each come back as
// an *Error with their own exit code.
func Load(args []string, options ...kong.Option) (*ServerConfig, error) {
	var c cli
	opts := append([]kong.Option{
		kong.Name("serve"),
		kong.Description("Serve a folder over HTTP or HTTPS on localhost until it has been idle for a while."),
		kong.Vars{
			"default_port":              defaultPort,
			"default_exit_timeout_secs": defaultExitTimeoutSecs,
		},
		kong.UsageOnError(),
	}, options...)
	parser, err := kong.New(&c, opts...)
	if err != nil {
		return nil, fmt.Errorf("config: failed to build parser: %w", err)
	}
	if _, err := parser.Parse(normalizeArgs(runtime.GOOS, args)); err != nil {
		return nil, &Error{Code: model.ExitUnknownOption, Err: err}
	}

	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 0 || port > maxPort {
		return nil, &Error{Code: model.ExitInvalidPort, Err: fmt.Errorf("invalid port number: %s", c.Port)}
	}
	secs, err := strconv.Atoi(c.ExitTimeoutSecs)
	if err != nil || secs < 0 {
		return nil, &Error{Code: model.ExitInvalidExitTimeoutSecsValue, Err: fmt.Errorf("invalid exit timeout seconds value: %s", c.ExitTimeoutSecs)}
	}

	root, err := resolveRoot(c.Root)
	if err != nil {
		return nil, &Error{Code: model.ExitRootFolderDoesNotExist, Err: err}
	}

	cfg := &ServerConfig{
		RootFolder:  root,
		Port:        port,
		UseHTTPS:    c.HTTPS,
		IdleTimeout: time.Duration(secs) * time.Second,
		Elevated:    c.Elevated,
		NoBrowser:   c.NoBrowser,
	}
	if c.CertCache != "" {
		if cfg.CertCache, err = filepath.Abs(c.CertCache); err != nil {
			return nil, &Error{Code: model.ExitUnknownOption, Err: fmt.Errorf("invalid certificate cache path %q: %w", c.CertCache, err)}
		}
	}
	return cfg, nil
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot determine current directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("directory '%s' does not exist: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("directory '%s' does not exist", root)
		}
		return "", fmt.Errorf("directory '%s' is not accessible: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("'%s' is not a directory", root)
	}
	return abs, nil
}

// normalizeArgs accepts the option spellings of earlier releases: option
// names in any case, "--port:8080" alongside "--port=8080" and, on Windows,
// "/https" alongside "--https". Arguments after "--" are left alone.
func normalizeArgs(goos string, args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if goos == "windows" && strings.HasPrefix(arg, "/") && len(arg) > 1 {
			arg = "--" + arg[1:]
		}
		if !strings.HasPrefix(arg, "--") || len(arg) == 2 {
			out = append(out, arg)
			continue
		}
		name, value, hasValue := strings.Cut(arg[2:], "=")
		if n, v, ok := strings.Cut(name, ":"); ok && !hasValue {
			name, value, hasValue = n, v, true
		}
		arg = "--" + strings.ToLower(name)
		if hasValue {
			arg += "=" + value
		}
		out = append(out, arg)
	}
	return out
}
