package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ipasign/ipasign/internal/logx"
	"github.com/ipasign/ipasign/internal/watch"
	"github.com/spf13/cobra"
)

func newWatchCmd(verbose *bool) *cobra.Command {
	var f signFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-sign a bundle directory every time it changes on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(f, *verbose)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "ipasign.yaml", "path to ipasign.yaml")
	flags.StringVar(&f.bundlePath, "path", "", "path to the bundle directory to watch")
	flags.StringVar(&f.certPath, "cert", "", "PEM certificate path")
	flags.StringVar(&f.keyPath, "key", "", "PEM private key path")
	flags.StringVar(&f.p12Path, "p12", "", "PKCS#12 bundle path")
	flags.StringVar(&f.p12Password, "p12-password", "", "PKCS#12 bundle password")
	flags.StringVar(&f.profilePath, "profile", "", "embedded.mobileprovision path")
	flags.BoolVar(&f.weakInject, "weak-inject", false, "inject dylibs with LC_LOAD_WEAK_DYLIB instead of LC_LOAD_DYLIB")
	flags.BoolVar(&f.enableCache, "cache", true, "enable the incremental signing cache")
	flags.StringVar(&f.cacheDir, "cache-dir", "", "base directory for .zsign_cache")

	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func runWatch(f signFlags, verbose bool) error {
	logger := logx.New(verbose)
	if f.bundlePath == "" {
		return errMissingPath
	}
	// A watched re-run always forces: a change on disk is what triggered it.
	f.force = true

	resign := func() {
		if err := runSign(f, verbose); err != nil {
			logger.WithError(err).Error("watch: re-sign failed")
			return
		}
		logger.Info("watch: re-signed")
	}

	resign()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(ctx, f.bundlePath, logger, resign)
	if err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	logger.Info("watch: shutting down")
	return nil
}

type watchErr string

func (e watchErr) Error() string { return string(e) }

const errMissingPath = watchErr("--path is required")
