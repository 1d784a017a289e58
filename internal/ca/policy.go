package ca

import (
	"crypto/x509"
	"fmt"
	"net"
	"time"
)

var (
	serverKeyUsages    = []x509.KeyUsage{x509.KeyUsageDigitalSignature, x509.KeyUsageKeyEncipherment}
	serverExtKeyUsages = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
)

// ValidateKeyUsage checks that every required key usage is present on the certificate.
func ValidateKeyUsage(certKeyUsage x509.KeyUsage, required []x509.KeyUsage) error {
	for _, usage := range required {
		if certKeyUsage&usage == 0 {
			return fmt.Errorf("ca: required key usage %v is missing", usage)
		}
	}
	return nil
}

// ValidateExtKeyUsage checks that the certificate carries exactly the required
// extended key usages.
func ValidateExtKeyUsage(certExtKeyUsages []x509.ExtKeyUsage, required []x509.ExtKeyUsage) error {
	if len(certExtKeyUsages) != len(required) {
		return fmt.Errorf("ca: expected %d extended key usages, got %d", len(required), len(certExtKeyUsages))
	}
	for _, usage := range required {
		found := false
		for _, certUsage := range certExtKeyUsages {
			if certUsage == usage {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("ca: required extended key usage %v is missing", usage)
		}
	}
	return nil
}

// ValidateValidityPeriod checks that now falls strictly inside the certificate's window.
func ValidateValidityPeriod(notBefore, notAfter, now time.Time) error {
	if !notBefore.Before(now) || !now.Before(notAfter) {
		return fmt.Errorf("ca: certificate not valid at %s (window %s - %s)",
			now.Format(time.RFC3339), notBefore.Format(time.RFC3339), notAfter.Format(time.RFC3339))
	}
	return nil
}

// ValidateServerCertificate checks the shape of a self-signed localhost serving
// certificate: leaf only, server auth only, names subjectName and the IPv4
// loopback address, and valid at now.
func ValidateServerCertificate(cert *x509.Certificate, subjectName string, now time.Time) error {
	if cert.IsCA {
		return fmt.Errorf("ca: serving certificate must not be a CA")
	}
	if err := ValidateKeyUsage(cert.KeyUsage, serverKeyUsages); err != nil {
		return err
	}
	if err := ValidateExtKeyUsage(cert.ExtKeyUsage, serverExtKeyUsages); err != nil {
		return err
	}
	if err := cert.VerifyHostname(subjectName); err != nil {
		return fmt.Errorf("ca: certificate does not name %q: %w", subjectName, err)
	}
	loopback := false
	for _, ip := range cert.IPAddresses {
		if ip.Equal(net.IPv4(127, 0, 0, 1)) {
			loopback = true
			break
		}
	}
	if !loopback {
		return fmt.Errorf("ca: certificate does not name the loopback address")
	}
	return ValidateValidityPeriod(cert.NotBefore, cert.NotAfter, now)
}
