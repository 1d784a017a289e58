package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/blockadesystems/serve/internal/model"
)

const (
	httpsKeySize      = 2048           // RSA key size for the serving certificate
	defaultSerialBits = 128            // Bit size for serial number randomness
	clockSkewAllow    = 24 * time.Hour // NotBefore is backdated by this much
	httpsCertYears    = 10             // Validity of the self-signed certificate
)

const (
	// SubjectName is the subject CN and DNS SAN of the serving certificate.
	SubjectName = "localhost"
	// Label is the friendly name the certificate is registered under in the trust store.
	Label = "serve tool certificate"
	// BundlePassword protects the exported bundle. It is a fixed value, which is
	// only acceptable because the certificate is for localhost development.
	BundlePassword = "password"
)

// Factory synthesizes self-signed serving certificates.
type Factory struct {
	logger  *zap.Logger
	rand    io.Reader
	now     func() time.Time
	keyBits int
}

// NewFactory returns a Factory that draws key material from crypto/rand.
func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		logger:  logger.With(zap.String("package", "ca")),
		rand:    rand.Reader,
		now:     time.Now,
		keyBits: httpsKeySize,
	}
}

// Generate creates a fresh RSA key and a self-signed leaf certificate for
// subjectName, exports both into a PKCS#12 bundle protected by password and
// re-imports the bundle so the returned record is exactly what a later load
// from disk or from the trust store would produce.
func (f *Factory) Generate(subjectName, password, label string) (*model.CertificateRecord, error) {
	priv, err := rsa.GenerateKey(f.rand, f.keyBits)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to generate private key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), defaultSerialBits)
	serialNumber, err := rand.Int(f.rand, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to generate serial number: %w", err)
	}

	now := f.now()
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: subjectName},
		Issuer:                pkix.Name{CommonName: subjectName},
		NotBefore:             now.Add(-clockSkewAllow),
		NotAfter:              now.AddDate(httpsCertYears, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
		DNSNames:              []string{subjectName},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
	}

	derBytes, err := x509.CreateCertificate(f.rand, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to create self-signed certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to parse generated certificate: %w", err)
	}
	if err := ValidateServerCertificate(cert, subjectName, now); err != nil {
		return nil, err
	}

	bundle, err := EncodeBundle(priv, cert, password)
	if err != nil {
		return nil, err
	}
	record, err := RecordFromBundle(bundle, password, label)
	if err != nil {
		return nil, fmt.Errorf("ca: failed to re-import generated bundle: %w", err)
	}

	f.logger.Info("generated self-signed certificate",
		zap.String("subject", subjectName),
		zap.String("label", label),
		zap.String("serial", cert.SerialNumber.Text(16)),
		zap.Time("not_after", cert.NotAfter))
	return record, nil
}
