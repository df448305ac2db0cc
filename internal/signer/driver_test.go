package signer

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const infoPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleIdentifier</key>
	<string>%s</string>
	<key>CFBundleExecutable</key>
	<string>%s</string>
	<key>CFBundleVersion</key>
	<string>1.0</string>
</dict>
</plist>`

func writeApp(t *testing.T, dir, bundleID, exe string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := []byte(fmt.Sprintf(infoPlistTemplate, bundleID, exe))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Info.plist"), content, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, exe), []byte("\xcf\xfa\xed\xfefakemacho"), 0o755))
}

type fakeAsset struct {
	profile []byte
}

func (f *fakeAsset) TeamID() string                   { return "ABCDE12345" }
func (f *fakeAsset) SubjectCN() string                 { return "iPhone Distribution: Test" }
func (f *fakeAsset) ProvisioningProfileBytes() []byte { return f.profile }

type fakeMachO struct {
	signed    []string
	injected  []string
	weakCalls []bool
}

func (f *fakeMachO) InjectDylib(path string, weak bool, ref string) (bool, error) {
	f.injected = append(f.injected, path+"|"+ref)
	f.weakCalls = append(f.weakCalls, weak)
	return true, nil
}

func (f *fakeMachO) Sign(path string, asset SignAsset, force bool, bundleID string, rawSHA1, rawSHA256, codeResources []byte) error {
	f.signed = append(f.signed, path)
	return nil
}

func TestRunSignsRootBundleAndWritesCodeResources(t *testing.T) {
	tmp := t.TempDir()
	appDir := filepath.Join(tmp, "Payload", "Demo.app")
	writeApp(t, appDir, "com.example.demo", "Demo")

	machO := &fakeMachO{}
	d := &Driver{Asset: &fakeAsset{profile: []byte("fakeprofile")}, MachO: machO}

	err := d.Run(Options{StartDir: tmp, Force: true})
	require.NoError(t, err)
	require.Contains(t, machO.signed, filepath.Join(appDir, "Demo"))

	manifestPath := filepath.Join(appDir, "_CodeSignature", "CodeResources")
	require.FileExists(t, manifestPath)

	require.NoFileExists(t, filepath.Join(appDir, "embedded.mobileprovision"))
}

func TestRunRewritesBundleIdentifier(t *testing.T) {
	tmp := t.TempDir()
	appDir := filepath.Join(tmp, "Payload", "Demo.app")
	writeApp(t, appDir, "com.example.demo", "Demo")

	machO := &fakeMachO{}
	d := &Driver{Asset: &fakeAsset{}, MachO: machO}

	err := d.Run(Options{StartDir: tmp, NewBundleID: "com.example.renamed"})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(appDir, "Info.plist"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "com.example.renamed")
}

func TestRunRejectsInvalidBundleID(t *testing.T) {
	tmp := t.TempDir()
	appDir := filepath.Join(tmp, "Payload", "Demo.app")
	writeApp(t, appDir, "com.example.demo", "Demo")

	d := &Driver{Asset: &fakeAsset{}, MachO: &fakeMachO{}}
	err := d.Run(Options{StartDir: tmp, NewBundleID: "not a valid bundle id!"})
	require.Error(t, err)
}

func TestRunInjectDylibThreadsWeakFlag(t *testing.T) {
	tmp := t.TempDir()
	appDir := filepath.Join(tmp, "Payload", "Demo.app")
	writeApp(t, appDir, "com.example.demo", "Demo")

	dylibPath := filepath.Join(tmp, "inject.dylib")
	require.NoError(t, os.WriteFile(dylibPath, []byte("\xcf\xfa\xed\xfefakedylib"), 0o755))

	machO := &fakeMachO{}
	d := &Driver{Asset: &fakeAsset{}, MachO: machO}

	err := d.Run(Options{StartDir: tmp, InjectDylibs: []string{dylibPath}, WeakInject: true})
	require.NoError(t, err)
	require.Len(t, machO.weakCalls, 1)
	require.True(t, machO.weakCalls[0])
}

func TestRunSignsNestedFrameworkBeforeRoot(t *testing.T) {
	tmp := t.TempDir()
	appDir := filepath.Join(tmp, "Payload", "Demo.app")
	writeApp(t, appDir, "com.example.demo", "Demo")
	fw := filepath.Join(appDir, "Frameworks", "L.framework")
	writeApp(t, fw, "com.example.demo.l", "L")

	machO := &fakeMachO{}
	d := &Driver{Asset: &fakeAsset{}, MachO: machO}

	err := d.Run(Options{StartDir: tmp, Force: true})
	require.NoError(t, err)
	require.Len(t, machO.signed, 2)
	require.Equal(t, filepath.Join(fw, "L"), machO.signed[0])
	require.Equal(t, filepath.Join(appDir, "Demo"), machO.signed[1])
}
