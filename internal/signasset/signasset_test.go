package signasset

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeSelfSignedPEM(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:         "iPhone Distribution: Example Corp (ABCDE12345)",
			OrganizationalUnit: []string{"Example Corp Engineering"},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	require.NoError(t, keyOut.Close())
	return certPath, keyPath
}

func TestLoadPEMExtractsTeamIDAndSubjectCN(t *testing.T) {
	tmp := t.TempDir()
	certPath, keyPath := writeSelfSignedPEM(t, tmp)

	profilePath := filepath.Join(tmp, "embedded.mobileprovision")
	require.NoError(t, os.WriteFile(profilePath, []byte("fake-profile-bytes"), 0o644))

	asset, err := LoadPEM(certPath, keyPath, profilePath)
	require.NoError(t, err)
	require.Equal(t, "ABCDE12345", asset.TeamID())
	require.Equal(t, "iPhone Distribution: Example Corp (ABCDE12345)", asset.SubjectCN())
	require.Equal(t, []byte("fake-profile-bytes"), asset.ProvisioningProfileBytes())
}

func TestTeamIDIsEmptyWithoutParenthesizedCNSuffix(t *testing.T) {
	tmp := t.TempDir()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:         "iPhone Distribution: Example Corp",
			OrganizationalUnit: []string{"ABCDE12345"},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	certPath := filepath.Join(tmp, "cert.pem")
	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	asset := &Asset{Certificate: cert}
	require.Equal(t, "", asset.TeamID())
}

func TestLoadPEMWithoutProfileIsNotAnError(t *testing.T) {
	tmp := t.TempDir()
	certPath, keyPath := writeSelfSignedPEM(t, tmp)

	asset, err := LoadPEM(certPath, keyPath, "")
	require.NoError(t, err)
	require.Nil(t, asset.ProvisioningProfileBytes())
}

func TestLoadPEMRejectsMalformedCert(t *testing.T) {
	tmp := t.TempDir()
	certPath := filepath.Join(tmp, "bad.pem")
	require.NoError(t, os.WriteFile(certPath, []byte("not a pem file"), 0o644))
	_, keyPath := writeSelfSignedPEM(t, tmp)

	_, err := LoadPEM(certPath, keyPath, "")
	require.Error(t, err)
}
