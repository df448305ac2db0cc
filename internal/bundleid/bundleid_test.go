package bundleid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateBundleIDAcceptsReverseDNS(t *testing.T) {
	require.NoError(t, ValidateBundleID("com.example.app"))
	require.NoError(t, ValidateBundleID("com.example.app-extension"))
}

func TestValidateBundleIDRejectsMalformed(t *testing.T) {
	require.Error(t, ValidateBundleID(""))
	require.Error(t, ValidateBundleID("noDots"))
	require.Error(t, ValidateBundleID("com.example.not valid!"))
	require.Error(t, ValidateBundleID("com..example"))
}

func TestValidateBundleIDRejectsSegmentStartingWithDigit(t *testing.T) {
	require.Error(t, ValidateBundleID("123.abc"))
	require.Error(t, ValidateBundleID("com.123example"))
}

func TestValidateBundleIDRejectsNonASCIILetters(t *testing.T) {
	require.Error(t, ValidateBundleID("日本.abc"))
	require.Error(t, ValidateBundleID("com.café"))
}

func TestValidateAppNameRejectsControlCharsAndSlash(t *testing.T) {
	require.NoError(t, ValidateAppName("My Cool App"))
	require.Error(t, ValidateAppName(""))
	require.Error(t, ValidateAppName("bad/name"))
	require.Error(t, ValidateAppName("bad\x00name"))
}

func TestSanitizeBundleIDProducesValidID(t *testing.T) {
	got := SanitizeBundleID("Com.Example!! App_123")
	require.NoError(t, ValidateBundleID(got))
}

func TestSanitizeBundleIDStripsNonASCIILetters(t *testing.T) {
	got := SanitizeBundleID("com.café")
	require.NoError(t, ValidateBundleID(got))
}

func TestSanitizeBundleIDAvoidsLeadingDigitSegment(t *testing.T) {
	got := SanitizeBundleID("com.123example")
	require.NoError(t, ValidateBundleID(got))
}

func TestInferBundleIDFromDisplayName(t *testing.T) {
	got := InferBundleID("My Cool App")
	require.NoError(t, ValidateBundleID(got))
	require.True(t, strings.HasPrefix(got, "com.ipasign."))
}

func TestCleanAppNameCollapsesWhitespace(t *testing.T) {
	require.Equal(t, "My Cool App", CleanAppName("  My   Cool  App  "))
}
