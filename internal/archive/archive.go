// Package archive is C10: it extracts an .ipa into a Payload/ directory
// tree and repacks a signed app bundle back into one, guarding every
// entry path against zip-slip.
package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipasign/ipasign/internal/ipasignerr"
	"github.com/ipasign/ipasign/internal/pathfs"
)

// Extract unpacks the zip archive at ipaPath into workDir and returns the
// path to the root .app/.appex bundle found inside (usually under
// Payload/). Every entry name is resolved through pathfs.SecureJoin, so a
// crafted archive entry like "../../etc/passwd" is rejected rather than
// written outside workDir.
func Extract(ipaPath, workDir string) (string, error) {
	r, err := zip.OpenReader(ipaPath)
	if err != nil {
		return "", ipasignerr.New("archive.Extract", ipasignerr.KindArchiveFailure, ipaPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		dest, err := pathfs.SecureJoin(workDir, f.Name)
		if err != nil {
			return "", ipasignerr.New("archive.Extract", ipasignerr.KindArchiveFailure, f.Name, err)
		}

		if f.FileInfo().IsDir() {
			if err := pathfs.EnsureDir(dest); err != nil {
				return "", err
			}
			continue
		}
		if err := pathfs.EnsureDir(filepath.Dir(dest)); err != nil {
			return "", err
		}

		if err := extractOne(f, dest); err != nil {
			return "", ipasignerr.New("archive.Extract", ipasignerr.KindArchiveFailure, f.Name, err)
		}
	}

	return findRootBundle(workDir)
}

func extractOne(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func findRootBundle(workDir string) (string, error) {
	var found string
	err := filepath.Walk(workDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if found != "" {
			return filepath.SkipDir
		}
		if info.IsDir() && pathfs.IsRootBundleDir(filepath.Base(p)) {
			found = p
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return "", ipasignerr.New("archive.findRootBundle", ipasignerr.KindArchiveFailure, workDir, err)
	}
	if found == "" {
		return "", ipasignerr.New("archive.findRootBundle", ipasignerr.KindNotABundle, workDir, errNoBundleInArchive)
	}
	return found, nil
}

// Repack zips payloadDir (the directory directly containing Payload/, or
// Payload/ itself) into outIPAPath. Entry names are written relative to
// payloadDir with forward slashes, matching the .ipa convention regardless
// of host OS.
func Repack(payloadDir, outIPAPath string) error {
	zipfile, err := os.Create(outIPAPath)
	if err != nil {
		return ipasignerr.New("archive.Repack", ipasignerr.KindArchiveFailure, outIPAPath, err)
	}
	defer zipfile.Close()

	w := zip.NewWriter(zipfile)
	defer w.Close()

	walkErr := filepath.Walk(payloadDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == payloadDir {
			return nil
		}
		rel, err := filepath.Rel(payloadDir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		if info.IsDir() {
			if !strings.HasSuffix(header.Name, "/") {
				header.Name += "/"
			}
			_, err := w.CreateHeader(header)
			return err
		}

		header.Method = zip.Deflate
		entry, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(entry, f)
		return err
	})
	if walkErr != nil {
		return ipasignerr.New("archive.Repack", ipasignerr.KindArchiveFailure, payloadDir, walkErr)
	}
	return nil
}

type archiveErr string

func (e archiveErr) Error() string { return string(e) }

const errNoBundleInArchive = archiveErr("no .app or .appex directory found in archive")
