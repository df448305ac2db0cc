package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ipasign/ipasign/internal/archive"
	"github.com/ipasign/ipasign/internal/config"
	"github.com/ipasign/ipasign/internal/iconkit"
	"github.com/ipasign/ipasign/internal/logx"
	"github.com/ipasign/ipasign/internal/machosigner"
	"github.com/ipasign/ipasign/internal/signasset"
	"github.com/ipasign/ipasign/internal/signer"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type signFlags struct {
	configPath     string
	ipaPath        string
	bundlePath     string
	certPath       string
	keyPath        string
	p12Path        string
	p12Password    string
	profilePath    string
	newBundleID    string
	newVersion     string
	newDisplayName string
	newIconPath    string
	injectDylibs   []string
	weakInject     bool
	force          bool
	enableCache    bool
	cacheDir       string
	outIPAPath     string
}

func newSignCmd(verbose *bool) *cobra.Command {
	var f signFlags

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Re-sign a bundle directory or .ipa archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(f, *verbose)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", config.DefaultPath, "path to ipasign.yaml")
	flags.StringVar(&f.ipaPath, "ipa", "", "path to a .ipa to extract, sign, and repack")
	flags.StringVar(&f.bundlePath, "path", "", "path to an already-extracted bundle directory (mutually exclusive with --ipa)")
	flags.StringVar(&f.certPath, "cert", "", "PEM certificate path")
	flags.StringVar(&f.keyPath, "key", "", "PEM private key path")
	flags.StringVar(&f.p12Path, "p12", "", "PKCS#12 bundle path (alternative to --cert/--key)")
	flags.StringVar(&f.p12Password, "p12-password", "", "PKCS#12 bundle password")
	flags.StringVar(&f.profilePath, "profile", "", "embedded.mobileprovision path")
	flags.StringVar(&f.newBundleID, "new-bundle-id", "", "rewrite CFBundleIdentifier")
	flags.StringVar(&f.newVersion, "new-version", "", "rewrite CFBundleVersion/CFBundleShortVersionString")
	flags.StringVar(&f.newDisplayName, "new-name", "", "rewrite CFBundleName/CFBundleDisplayName")
	flags.StringVar(&f.newIconPath, "icon", "", "replacement icon source image")
	flags.StringArrayVar(&f.injectDylibs, "inject-dylib", nil, "dylib to inject into the root executable (repeatable)")
	flags.BoolVar(&f.weakInject, "weak-inject", false, "inject dylibs with LC_LOAD_WEAK_DYLIB instead of LC_LOAD_DYLIB")
	flags.BoolVar(&f.force, "force", false, "force a full re-sign, ignoring the cache")
	flags.BoolVar(&f.enableCache, "cache", true, "enable the incremental signing cache")
	flags.StringVar(&f.cacheDir, "cache-dir", "", "base directory for .zsign_cache")
	flags.StringVar(&f.outIPAPath, "out", "", "output .ipa path (defaults to overwriting --ipa in place)")

	return cmd
}

func runSign(f signFlags, verbose bool) error {
	logger := logx.New(verbose)
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	merged := config.MergeDefaults(config.Config{
		CertificatePath: f.certPath,
		KeyPath:         f.keyPath,
		P12Path:         f.p12Path,
		P12Password:     f.p12Password,
		ProfilePath:     f.profilePath,
		NewBundleID:     f.newBundleID,
		NewVersion:      f.newVersion,
		NewDisplayName:  f.newDisplayName,
		InjectDylibs:    f.injectDylibs,
		WeakInject:      f.weakInject,
		EnableCache:     f.enableCache,
		CacheDir:        f.cacheDir,
	}, cfg)

	if f.ipaPath == "" && f.bundlePath == "" {
		return fmt.Errorf("one of --ipa or --path is required")
	}

	startDir := f.bundlePath
	var repackTarget string
	if f.ipaPath != "" {
		workDir := filepath.Join(os.TempDir(), "ipasign-"+uuid.NewString())
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return err
		}
		defer os.RemoveAll(workDir)

		appDir, err := archive.Extract(f.ipaPath, workDir)
		if err != nil {
			return err
		}
		startDir = appDir
		repackTarget = workDir
		if f.outIPAPath == "" {
			f.outIPAPath = f.ipaPath
		}
	}

	asset, err := loadAsset(merged)
	if err != nil {
		return err
	}

	if f.newIconPath != "" {
		if err := iconkit.Replace(f.newIconPath, startDir); err != nil {
			return err
		}
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("signing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(65*time.Millisecond),
	)

	d := &signer.Driver{
		Asset:  asset,
		MachO:  machosigner.Codesign{},
		Logger: logger,
		Progress: func(bundlePath string) {
			bar.Add(1)
			logger.WithField("bundle", bundlePath).Debug("signed")
		},
	}

	err = d.Run(signer.Options{
		StartDir:       startDir,
		NewBundleID:    merged.NewBundleID,
		NewVersion:     merged.NewVersion,
		NewDisplayName: merged.NewDisplayName,
		InjectDylibs:   merged.InjectDylibs,
		WeakInject:     merged.WeakInject,
		Force:          f.force,
		EnableCache:    merged.EnableCache,
		CacheBaseDir:   merged.CacheDir,
	})
	bar.Finish()
	if err != nil {
		return err
	}

	if repackTarget != "" {
		if err := archive.Repack(repackTarget, f.outIPAPath); err != nil {
			return err
		}
		logger.WithField("out", f.outIPAPath).Info("wrote resigned ipa")
	}
	return nil
}

func loadAsset(cfg config.Config) (signer.SignAsset, error) {
	switch {
	case cfg.P12Path != "":
		return signasset.LoadP12(cfg.P12Path, cfg.P12Password, cfg.ProfilePath)
	case cfg.CertificatePath != "" && cfg.KeyPath != "":
		return signasset.LoadPEM(cfg.CertificatePath, cfg.KeyPath, cfg.ProfilePath)
	default:
		return nil, nil
	}
}
