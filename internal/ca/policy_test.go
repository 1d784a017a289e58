package ca

import (
	"crypto/x509"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateValidityPeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		notBefore time.Time
		notAfter  time.Time
		wantErr   bool
	}{
		{"inside window", now.Add(-time.Hour), now.Add(time.Hour), false},
		{"not yet valid", now.Add(time.Minute), now.Add(time.Hour), true},
		{"expired", now.Add(-2 * time.Hour), now.Add(-time.Hour), true},
		{"starts exactly now", now, now.Add(time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateValidityPeriod(tt.notBefore, tt.notAfter, now)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateServerCertificate(t *testing.T) {
	now := time.Now()
	valid := func() *x509.Certificate {
		return &x509.Certificate{
			NotBefore:   now.Add(-time.Hour),
			NotAfter:    now.Add(time.Hour),
			KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
			DNSNames:    []string{"localhost"},
			IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *x509.Certificate)
		wantErr bool
	}{
		{"valid", func(c *x509.Certificate) {}, false},
		{"ca", func(c *x509.Certificate) { c.IsCA = true }, true},
		{"missing key encipherment", func(c *x509.Certificate) { c.KeyUsage = x509.KeyUsageDigitalSignature }, true},
		{"client auth added", func(c *x509.Certificate) {
			c.ExtKeyUsage = append(c.ExtKeyUsage, x509.ExtKeyUsageClientAuth)
		}, true},
		{"wrong dns name", func(c *x509.Certificate) { c.DNSNames = []string{"example.test"} }, true},
		{"no loopback", func(c *x509.Certificate) { c.IPAddresses = nil }, true},
		{"expired", func(c *x509.Certificate) { c.NotAfter = now.Add(-time.Minute) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := valid()
			tt.mutate(cert)
			err := ValidateServerCertificate(cert, "localhost", now)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
