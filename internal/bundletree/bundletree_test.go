package bundletree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeInfoPlist(t *testing.T, dir, bundleID, exe string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleIdentifier</key>
	<string>` + bundleID + `</string>
	<key>CFBundleExecutable</key>
	<string>` + exe + `</string>
	<key>CFBundleVersion</key>
	<string>1.0</string>
</dict>
</plist>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Info.plist"), []byte(content), 0o644))
}

func TestFindRootLocatesAppDirectlyAndThroughPayload(t *testing.T) {
	tmp := t.TempDir()
	appDir := filepath.Join(tmp, "Payload", "Main.app")
	writeInfoPlist(t, appDir, "com.x.y", "Main")

	found, err := FindRoot(tmp)
	require.NoError(t, err)
	require.Equal(t, appDir, found)

	found2, err := FindRoot(appDir)
	require.NoError(t, err)
	require.Equal(t, appDir, found2)
}

func TestFindRootFailsWithoutBundle(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "empty"), 0o755))
	_, err := FindRoot(tmp)
	require.Error(t, err)
}

func TestEnumerateOrdersNestedFrameworksDeepestFirst(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "Root.app")
	writeInfoPlist(t, root, "com.root", "Root")

	l := filepath.Join(root, "Frameworks", "L.framework")
	writeInfoPlist(t, l, "com.root.l", "L")

	m := filepath.Join(l, "Frameworks", "M.framework")
	writeInfoPlist(t, m, "com.root.m", "M")

	node, err := Enumerate(root)
	require.NoError(t, err)
	require.Equal(t, "/", node.Path)
	require.Len(t, node.Folders, 2)
	require.Equal(t, "Frameworks/L.framework/Frameworks/M.framework", node.Folders[0].Path)
	require.Equal(t, "Frameworks/L.framework", node.Folders[1].Path)
}

func TestEnumerateCollectsLooseDylibsRelativeToRoot(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "Root.app")
	writeInfoPlist(t, root, "com.root", "Root")
	require.NoError(t, os.WriteFile(filepath.Join(root, "ext.dylib"), []byte("fake"), 0o644))

	node, err := Enumerate(root)
	require.NoError(t, err)
	require.Contains(t, node.Files, "ext.dylib")
}

func TestComputeChangedAppendsProvisionProfileOnlyAtRoot(t *testing.T) {
	root := &SignNode{Path: "/", BundleExecutable: "Root"}
	child := &SignNode{Path: "Frameworks/L.framework", BundleExecutable: "L"}
	root.Folders = []*SignNode{child}

	ComputeChanged(root, true)
	require.Contains(t, root.Changed, "embedded.mobileprovision")
	require.Contains(t, root.Changed, "Frameworks/L.framework/_CodeSignature/CodeResources")
	require.Contains(t, root.Changed, "Frameworks/L.framework/L")
	require.NotContains(t, child.Changed, "embedded.mobileprovision")
}
