package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blockadesystems/serve/internal/ca"
	"github.com/blockadesystems/serve/internal/config"
	"github.com/blockadesystems/serve/internal/elevation"
	"github.com/blockadesystems/serve/internal/launch"
	"github.com/blockadesystems/serve/internal/model"
	"github.com/blockadesystems/serve/internal/provision"
	"github.com/blockadesystems/serve/internal/server"
	"github.com/blockadesystems/serve/internal/storage"
	"github.com/blockadesystems/serve/internal/truststore"
)

var logger *zap.Logger

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	logger = l.With(zap.String("package", "main"))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:])
	stop()
	logger.Sync()
	os.Exit(int(code))
}

func run(ctx context.Context, args []string) model.ExitCode {
	cfg, err := config.Load(args)
	if err != nil {
		return fail("invalid arguments", err)
	}
	logger.Info("serve starting",
		zap.String("root", cfg.RootFolder),
		zap.Int("port", cfg.Port),
		zap.Bool("https", cfg.UseHTTPS),
		zap.Duration("idle_timeout", cfg.IdleTimeout),
		zap.Bool("elevated", cfg.Elevated))

	var record *model.CertificateRecord
	if cfg.UseHTTPS {
		cachePath := cfg.CertCache
		if cachePath == "" {
			if cachePath, err = storage.DefaultCachePath(); err != nil {
				return fail("failed to locate certificate cache", errors.Join(provision.ErrCertificateUnavailable, err))
			}
		}
		p := provision.New(
			truststore.NewPlatform(ca.BundlePassword, launch.Exec{}, logger),
			ca.NewFactory(logger),
			storage.NewDiskCache(cachePath, ca.BundlePassword, logger),
			elevation.NewPlatformCoordinator(logger),
			logger,
		)
		result, err := p.Provision(ctx, cfg)
		if err != nil {
			return fail("failed to provision certificate", err)
		}
		if result.Exit {
			logger.Info("certificate provisioning finished")
			return model.ExitSuccess
		}
		record = result.Record
	}

	var opts []server.Option
	if !cfg.NoBrowser {
		opts = append(opts, server.WithBrowser(launch.OpenBrowser))
	}
	if err := server.New(cfg, record, logger, opts...).Run(ctx); err != nil {
		return fail("server failed", err)
	}
	return model.ExitSuccess
}

func fail(msg string, err error) model.ExitCode {
	code := exitCodeFor(err)
	logger.Error(msg, zap.Error(err), zap.Stringer("exit_code", code))
	return code
}

// exitCodeFor maps an error to the exit code scripts rely on.
func exitCodeFor(err error) model.ExitCode {
	var cfgErr *config.Error
	switch {
	case err == nil:
		return model.ExitSuccess
	case errors.As(err, &cfgErr):
		return cfgErr.Code
	case errors.Is(err, provision.ErrCacheDelete):
		return model.ExitFailedToDeleteCertificateFile
	case errors.Is(err, provision.ErrElevationFailed):
		return model.ExitFailedToObtainAdminPrivileges
	case errors.Is(err, provision.ErrCertificateInstallFailed):
		return model.ExitCertificateInstallationFailed
	case errors.Is(err, provision.ErrGenerate):
		return model.ExitCertificateGenerationFailed
	case errors.Is(err, provision.ErrCertificateUnavailable), errors.Is(err, server.ErrCertificate):
		return model.ExitFailedToLoadCertificate
	default:
		// Bind failures and anything the listener reports while serving.
		return model.ExitListenFailed
	}
}
