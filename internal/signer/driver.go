package signer

import (
	"encoding/base64"
	"path/filepath"
	"strings"

	"github.com/ipasign/ipasign/internal/assetdetect"
	"github.com/ipasign/ipasign/internal/bundleid"
	"github.com/ipasign/ipasign/internal/bundletree"
	"github.com/ipasign/ipasign/internal/coderesources"
	"github.com/ipasign/ipasign/internal/infoplist"
	"github.com/ipasign/ipasign/internal/ipasignerr"
	"github.com/ipasign/ipasign/internal/pathfs"
	"github.com/ipasign/ipasign/internal/plistval"
	"github.com/ipasign/ipasign/internal/signcache"
	"github.com/sirupsen/logrus"
)

// Options are the driver's inputs (§4.6).
type Options struct {
	StartDir        string
	NewBundleID     string
	NewVersion      string
	NewDisplayName  string
	InjectDylibs    []string
	Force           bool
	WeakInject      bool
	EnableCache     bool
	CacheBaseDir    string // defaults to "." when empty
}

// Driver is the C8 signing driver.
type Driver struct {
	Asset    SignAsset
	MachO    MachOSigner
	Logger   *logrus.Logger
	Progress func(bundlePath string) // optional, called once per node signed
}

func (d *Driver) reportProgress(bundlePath string) {
	if d.Progress != nil {
		d.Progress(bundlePath)
	}
}

func (d *Driver) log() *logrus.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return logrus.StandardLogger()
}

// Run executes the full driver sequence described in §4.6.
func (d *Driver) Run(opts Options) (err error) {
	root, err := bundletree.FindRoot(opts.StartDir)
	if err != nil {
		return err
	}

	cacheBase := opts.CacheBaseDir
	if cacheBase == "" {
		cacheBase = "."
	}

	provisionPath := filepath.Join(root, "embedded.mobileprovision")
	defer func() {
		if removeErr := pathfs.RemoveIfExists(provisionPath); removeErr != nil {
			d.log().WithField("op", "signer.Run").WithField("path", provisionPath).Warn("failed to remove embedded.mobileprovision")
		}
	}()

	force := opts.Force
	if opts.NewBundleID != "" || opts.NewVersion != "" || opts.NewDisplayName != "" {
		if opts.NewBundleID != "" {
			if err := bundleid.ValidateBundleID(opts.NewBundleID); err != nil {
				return ipasignerr.New("signer.Run", ipasignerr.KindInvalidInput, opts.NewBundleID, err)
			}
		}
		if opts.NewDisplayName != "" {
			if err := bundleid.ValidateAppName(opts.NewDisplayName); err != nil {
				return ipasignerr.New("signer.Run", ipasignerr.KindInvalidInput, opts.NewDisplayName, err)
			}
		}
		force = true
		if _, err := infoplist.ModifyBundleInfo(root, infoplist.Mutation{
			NewBundleID:    opts.NewBundleID,
			NewVersion:     opts.NewVersion,
			NewDisplayName: opts.NewDisplayName,
		}); err != nil {
			return err
		}
	}

	if err := pathfs.RemoveIfExists(provisionPath); err != nil {
		return err
	}
	if d.Asset != nil {
		if profile := d.Asset.ProvisioningProfileBytes(); len(profile) > 0 {
			if err := pathfs.SafeWriteFile(provisionPath, profile, 0o644); err != nil {
				return err
			}
		}
	}

	var injectRefs []string
	for _, dylib := range opts.InjectDylibs {
		base := filepath.Base(dylib)
		dest := filepath.Join(root, base)
		if err := pathfs.CopyFile(dylib, dest); err != nil {
			return err
		}
		injectRefs = append(injectRefs, "@executable_path/"+base)
		force = true
	}

	key, err := signcache.Key(root)
	if err != nil {
		return err
	}
	if !signcache.Exists(cacheBase, key) {
		force = true
	}

	if err := assetdetect.ForceAssetsCarRegeneration(root); err != nil {
		d.log().WithField("op", "signer.Run").WithField("path", root).Warn("failed to remove Assets.car")
	}

	var cachedNode *bundletree.SignNode
	iconsChanged := false
	if !force {
		node, ok, loadErr := signcache.Load(cacheBase, key)
		if loadErr != nil {
			d.log().WithField("op", "signer.Run").Warn("cache decode failed, forcing full sign")
			force = true
		} else if !ok {
			force = true
		} else {
			cachedNode = node
			changed, detectErr := detectIconsChanged(root)
			if detectErr != nil {
				return detectErr
			}
			if changed {
				iconsChanged = true
				force = true
			}
		}
	}

	var rootNode *bundletree.SignNode
	if force {
		rootNode, err = bundletree.Enumerate(root)
		if err != nil {
			return err
		}
		bundletree.ComputeChanged(rootNode, true)
	} else {
		rootNode = cachedNode
	}

	if err := d.signNode(rootNode, root, force, iconsChanged, injectRefs, opts.WeakInject, true); err != nil {
		return err
	}

	if opts.EnableCache {
		if err := signcache.Save(cacheBase, key, rootNode); err != nil {
			return err
		}
	}
	return nil
}

func detectIconsChanged(root string) (bool, error) {
	infoRaw, err := pathfs.ReadFile(filepath.Join(root, "Info.plist"))
	if err != nil {
		return false, err
	}
	infoVal, err := plistval.Unmarshal(infoRaw)
	if err != nil {
		return false, ipasignerr.New("signer.detectIconsChanged", ipasignerr.KindMissingPlistField, root, err)
	}

	var cachedManifest *plistval.Value
	manifestPath := filepath.Join(root, "_CodeSignature", "CodeResources")
	if pathfs.FileExists(manifestPath) {
		raw, err := pathfs.ReadFile(manifestPath)
		if err != nil {
			return false, err
		}
		manifest, err := plistval.Unmarshal(raw)
		if err != nil {
			return false, ipasignerr.New("signer.detectIconsChanged", ipasignerr.KindCacheDecodeFailure, manifestPath, err)
		}
		cachedManifest = manifest
	}
	return assetdetect.HasChanged(root, infoVal, cachedManifest)
}

// signNode implements §4.6's sign_node, post-order.
func (d *Driver) signNode(node *bundletree.SignNode, root string, forceSign, iconsChanged bool, injectRefs []string, weakInject, isRoot bool) error {
	for _, dylibRel := range node.Files {
		path := filepath.Join(root, filepath.FromSlash(dylibRel))
		if err := d.MachO.Sign(path, d.Asset, forceSign, "", nil, nil, nil); err != nil {
			return ipasignerr.New("signer.signNode", ipasignerr.KindMachOFailure, path, err)
		}
	}

	for _, child := range node.Folders {
		if err := d.signNode(child, root, forceSign, iconsChanged, nil, weakInject, false); err != nil {
			return err
		}
	}

	forceRegenerate := forceSign || iconsChanged
	bundleDir := root
	if node.Path != "/" {
		bundleDir = filepath.Join(root, filepath.FromSlash(node.Path))
	}

	var manifest *plistval.Value
	if forceRegenerate {
		m, err := coderesources.Build(bundleDir, node.BundleExecutable)
		if err != nil {
			return err
		}
		manifest = m
	} else {
		existingPath := filepath.Join(bundleDir, "_CodeSignature", "CodeResources")
		raw, err := pathfs.ReadFile(existingPath)
		if err != nil {
			return err
		}
		m, err := plistval.Unmarshal(raw)
		if err != nil {
			return ipasignerr.New("signer.signNode", ipasignerr.KindCacheDecodeFailure, existingPath, err)
		}
		manifest = m
		for _, changedPath := range node.Changed {
			rel := stripNodePrefix(changedPath, node.Path)
			if err := coderesources.UpdateEntry(manifest, bundleDir, rel); err != nil {
				return err
			}
		}
	}

	manifestBytes, err := plistval.Marshal(manifest)
	if err != nil {
		return ipasignerr.New("signer.signNode", ipasignerr.KindIOFailure, bundleDir, err)
	}
	manifestPath := filepath.Join(bundleDir, "_CodeSignature", "CodeResources")
	if err := pathfs.SafeWriteFile(manifestPath, manifestBytes, 0o644); err != nil {
		return err
	}

	localForce := forceSign
	if isRoot {
		execPath := filepath.Join(bundleDir, node.BundleExecutable)
		for _, ref := range injectRefs {
			injected, err := d.MachO.InjectDylib(execPath, weakInject, ref)
			if err != nil {
				return ipasignerr.New("signer.signNode", ipasignerr.KindMachOFailure, execPath, err)
			}
			if injected {
				localForce = true
			}
		}
	}

	rawSHA1, err := base64.StdEncoding.DecodeString(node.SHA1)
	if err != nil {
		return ipasignerr.New("signer.signNode", ipasignerr.KindHashFailure, node.Path, err)
	}
	rawSHA256, err := base64.StdEncoding.DecodeString(node.SHA256)
	if err != nil {
		return ipasignerr.New("signer.signNode", ipasignerr.KindHashFailure, node.Path, err)
	}

	execPath := filepath.Join(bundleDir, node.BundleExecutable)
	if err := d.MachO.Sign(execPath, d.Asset, localForce, node.BundleID, rawSHA1, rawSHA256, manifestBytes); err != nil {
		return ipasignerr.New("signer.signNode", ipasignerr.KindMachOFailure, execPath, err)
	}
	d.reportProgress(bundleDir)
	return nil
}

// stripNodePrefix makes changedPath (relative to root) relative to this
// bundle's own path, per §4.6 step 4.
func stripNodePrefix(changedPath, nodePath string) string {
	if nodePath == "/" || nodePath == "" {
		return changedPath
	}
	prefix := nodePath + "/"
	if strings.HasPrefix(changedPath, prefix) {
		return changedPath[len(prefix):]
	}
	return changedPath
}
