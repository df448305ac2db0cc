// Package signasset is C11: it loads the signing identity (certificate,
// private key) and embedded provisioning profile the driver needs,
// accepting either a PEM certificate+key pair or a PKCS#12 bundle.
package signasset

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/ipasign/ipasign/internal/ipasignerr"
	"github.com/ipasign/ipasign/internal/teamid"
	"golang.org/x/crypto/pkcs12"
)

// Asset is the concrete signer.SignAsset implementation: a parsed
// certificate/key pair plus the raw bytes of an embedded provisioning
// profile (read verbatim, never parsed — the driver only ever copies it
// into the bundle as embedded.mobileprovision).
type Asset struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.PrivateKey
	Profile     []byte
}

// TeamID extracts the parenthesized team id suffix from the
// certificate's common name, e.g. "iPhone Distribution: Example Corp
// (ABCDE12345)" yields "ABCDE12345". Returns "" if the CN carries no
// valid team id.
func (a *Asset) TeamID() string {
	if a.Certificate == nil {
		return ""
	}
	id, ok := teamid.ExtractFromCN(a.Certificate.Subject.CommonName)
	if !ok {
		return ""
	}
	return id
}

// SubjectCN returns the certificate's common name, e.g.
// "iPhone Distribution: Example Corp (ABCDE12345)".
func (a *Asset) SubjectCN() string {
	if a.Certificate == nil {
		return ""
	}
	return a.Certificate.Subject.CommonName
}

// ProvisioningProfileBytes returns the raw embedded.mobileprovision
// content, or nil if none was loaded.
func (a *Asset) ProvisioningProfileBytes() []byte { return a.Profile }

// LoadPEM parses a PEM-encoded certificate and private key from disk. The
// key must be unencrypted (PKCS#1, PKCS#8, or SEC 1 EC); encrypted PEM
// blocks are not decrypted and no password path exists here (PKCS#12 is
// where passwords belong — see LoadP12).
func LoadPEM(certPath, keyPath, profilePath string) (*Asset, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, ipasignerr.New("signasset.LoadPEM", ipasignerr.KindSignAssetFailure, certPath, err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, ipasignerr.New("signasset.LoadPEM", ipasignerr.KindSignAssetFailure, keyPath, err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, ipasignerr.New("signasset.LoadPEM", ipasignerr.KindSignAssetFailure, certPath, errNoPEMBlock)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, ipasignerr.New("signasset.LoadPEM", ipasignerr.KindSignAssetFailure, certPath, err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, ipasignerr.New("signasset.LoadPEM", ipasignerr.KindSignAssetFailure, keyPath, errNoPEMBlock)
	}
	key, err := parsePrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, ipasignerr.New("signasset.LoadPEM", ipasignerr.KindSignAssetFailure, keyPath, err)
	}

	profile, err := loadProfile(profilePath)
	if err != nil {
		return nil, err
	}
	return &Asset{Certificate: cert, PrivateKey: key, Profile: profile}, nil
}

// LoadP12 parses a password-protected PKCS#12 bundle (the shape Apple's
// own Keychain Access export produces) into a certificate and key.
func LoadP12(p12Path, password, profilePath string) (*Asset, error) {
	data, err := os.ReadFile(p12Path)
	if err != nil {
		return nil, ipasignerr.New("signasset.LoadP12", ipasignerr.KindSignAssetFailure, p12Path, err)
	}
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, ipasignerr.New("signasset.LoadP12", ipasignerr.KindSignAssetFailure, p12Path, err)
	}

	profile, err := loadProfile(profilePath)
	if err != nil {
		return nil, err
	}
	return &Asset{Certificate: cert, PrivateKey: key, Profile: profile}, nil
}

func loadProfile(profilePath string) ([]byte, error) {
	if profilePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return nil, ipasignerr.New("signasset.loadProfile", ipasignerr.KindSignAssetFailure, profilePath, err)
	}
	return data, nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errUnsupportedKey
}

type signassetErr string

func (e signassetErr) Error() string { return string(e) }

const (
	errNoPEMBlock     = signassetErr("no PEM block found")
	errUnsupportedKey = signassetErr("unsupported private key encoding")
)
