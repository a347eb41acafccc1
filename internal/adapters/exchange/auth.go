package exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strconv"
	"time"
)

// Signer produces the three auth headers spec.md §6 requires on every
// request: ACCESS-KEY, ACCESS-TIMESTAMP, ACCESS-SIGNATURE.
type Signer struct {
	accessKey  string
	privateKey *rsa.PrivateKey
}

// NewSigner parses a PEM-encoded PKCS#8 RSA private key and pairs it with
// the exchange-issued access key.
func NewSigner(accessKey string, pemBytes []byte) (*Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("exchange: decode private key PEM: no block found")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("exchange: parse PKCS8 private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("exchange: private key is not RSA")
	}

	return &Signer{accessKey: accessKey, privateKey: rsaKey}, nil
}

// Headers signs method+path at the current instant and returns the three
// headers to attach to the request.
func (s *Signer) Headers(method, path string) (map[string]string, error) {
	return s.headersAt(method, path, time.Now())
}

func (s *Signer) headersAt(method, path string, at time.Time) (map[string]string, error) {
	timestampMs := at.UnixMilli()
	message := strconv.FormatInt(timestampMs, 10) + method + path

	digest := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, s.privateKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange: sign request: %w", err)
	}

	return map[string]string{
		"ACCESS-KEY":       s.accessKey,
		"ACCESS-TIMESTAMP": strconv.FormatInt(timestampMs, 10),
		"ACCESS-SIGNATURE": base64.StdEncoding.EncodeToString(signature),
	}, nil
}
