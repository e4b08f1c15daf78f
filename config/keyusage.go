package config

import (
	"crypto/x509"
	"fmt"
	"sort"
	"strings"
)

var keyUsages = map[string]x509.KeyUsage{
	"digitalsignature":  x509.KeyUsageDigitalSignature,
	"contentcommitment": x509.KeyUsageContentCommitment,
	"keyencipherment":   x509.KeyUsageKeyEncipherment,
	"dataencipherment":  x509.KeyUsageDataEncipherment,
	"keyagreement":      x509.KeyUsageKeyAgreement,
	"certsign":          x509.KeyUsageCertSign,
	"keycertsign":       x509.KeyUsageCertSign,
	"crlsign":           x509.KeyUsageCRLSign,
	"encipheronly":      x509.KeyUsageEncipherOnly,
	"decipheronly":      x509.KeyUsageDecipherOnly,
}

var extKeyUsages = map[string]x509.ExtKeyUsage{
	"any":             x509.ExtKeyUsageAny,
	"serverauth":      x509.ExtKeyUsageServerAuth,
	"clientauth":      x509.ExtKeyUsageClientAuth,
	"codesigning":     x509.ExtKeyUsageCodeSigning,
	"emailprotection": x509.ExtKeyUsageEmailProtection,
	"timestamping":    x509.ExtKeyUsageTimeStamping,
	"ocspsigning":     x509.ExtKeyUsageOCSPSigning,
}

func normalize(name string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(name))
}

// ParseKeyUsage ORs together key usage names such as "digitalSignature" or
// "cert-sign".
func ParseKeyUsage(names []string) (x509.KeyUsage, error) {
	var ku x509.KeyUsage
	for _, name := range names {
		bit, ok := keyUsages[normalize(name)]
		if !ok {
			return 0, fmt.Errorf("unknown key usage %q", name)
		}
		ku |= bit
	}
	return ku, nil
}

func ParseExtKeyUsage(names []string) ([]x509.ExtKeyUsage, error) {
	var out []x509.ExtKeyUsage
	for _, name := range names {
		eku, ok := extKeyUsages[normalize(name)]
		if !ok {
			return nil, fmt.Errorf("unknown extended key usage %q", name)
		}
		out = append(out, eku)
	}
	return out, nil
}

// KeyUsageNames lists the accepted key usage names.
func KeyUsageNames() []string {
	names := make([]string, 0, len(keyUsages))
	for name := range keyUsages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
