package model

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"
)

// CertificateRecord is a provisioned certificate together with its private key
// and the password-protected bundle it was exported to.
type CertificateRecord struct {
	SubjectName string            // Subject CN and DNS SAN, e.g. "localhost"
	Label       string            // Friendly label used for trust store lookup
	Certificate *x509.Certificate // Parsed leaf certificate
	PrivateKey  crypto.Signer     // Private key matching Certificate
	Bundle      []byte            // PKCS#12 export protected by the bundle password
	NotBefore   time.Time         // Start of validity window
	NotAfter    time.Time         // End of validity window
}

// TLSCertificate returns the record in the form crypto/tls expects.
func (r *CertificateRecord) TLSCertificate() (tls.Certificate, error) {
	if r == nil || r.Certificate == nil || r.PrivateKey == nil {
		return tls.Certificate{}, errors.New("model: certificate record has no certificate or key")
	}
	return tls.Certificate{
		Certificate: [][]byte{r.Certificate.Raw},
		PrivateKey:  r.PrivateKey,
		Leaf:        r.Certificate,
	}, nil
}

// ValidAt reports whether t falls inside the record's validity window.
func (r *CertificateRecord) ValidAt(t time.Time) bool {
	return r != nil && t.After(r.NotBefore) && t.Before(r.NotAfter)
}
