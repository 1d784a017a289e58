package ca

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/blockadesystems/serve/internal/model"
)

// ErrKeyMismatch indicates a bundle whose private key does not belong to its certificate.
var ErrKeyMismatch = errors.New("ca: private key does not match certificate")

// EncodeBundle exports key and cert as a password-protected PKCS#12 bundle.
func EncodeBundle(key crypto.Signer, cert *x509.Certificate, password string) ([]byte, error) {
	pfx, err := pkcs12.Modern.Encode(key, cert, nil, password)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to export PKCS#12 bundle: %w", err)
	}
	return pfx, nil
}

// DecodeBundle imports a PKCS#12 bundle produced by EncodeBundle.
func DecodeBundle(pfx []byte, password string) (crypto.Signer, *x509.Certificate, error) {
	key, cert, err := pkcs12.Decode(pfx, password)
	if err != nil {
		return nil, nil, fmt.Errorf("ca: failed to import PKCS#12 bundle: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, nil, fmt.Errorf("ca: unsupported private key type %T", key)
	}
	if err := matchKey(signer, cert); err != nil {
		return nil, nil, err
	}
	return signer, cert, nil
}

// RecordFromBundle imports a bundle and wraps it in a CertificateRecord tagged with label.
func RecordFromBundle(pfx []byte, password, label string) (*model.CertificateRecord, error) {
	key, cert, err := DecodeBundle(pfx, password)
	if err != nil {
		return nil, err
	}
	return &model.CertificateRecord{
		SubjectName: cert.Subject.CommonName,
		Label:       label,
		Certificate: cert,
		PrivateKey:  key,
		Bundle:      pfx,
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
	}, nil
}

func matchKey(key crypto.Signer, cert *x509.Certificate) error {
	type equaler interface {
		Equal(x crypto.PublicKey) bool
	}
	pub, ok := key.Public().(equaler)
	if !ok || !pub.Equal(cert.PublicKey) {
		return ErrKeyMismatch
	}
	return nil
}
