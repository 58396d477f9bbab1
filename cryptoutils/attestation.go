package cryptoutils

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/ruteri/seal-session/interfaces"
)

// attestationTimeLayout renders the creation time truncated to whole seconds.
const attestationTimeLayout = "2006-01-02 15:04:05"

// AttestationMessage builds the text an identity signs to authorize a session key:
//
//	Accessing keys of package <scope> for <ttl> mins from <YYYY-MM-DD HH:MM:SS UTC>, session key <base64 vk>
//
// The scope is rendered as 0x-prefixed lower-case hex. Issuers and key servers
// must derive byte-identical text from the same inputs.
func AttestationMessage(scope interfaces.Address, ttlMinutes int, creationTimeMs int64, sessionVK []byte) []byte {
	return attestationMessage(scope, ttlMinutes, creationTimeMs, base64.StdEncoding.EncodeToString(sessionVK))
}

// CertificateMessage rebuilds the attestation message a certificate claims was signed for scope.
func CertificateMessage(cert *interfaces.Certificate, scope interfaces.Address) []byte {
	return attestationMessage(scope, int(cert.TTLMin), cert.CreationTime, cert.SessionVK)
}

func attestationMessage(scope interfaces.Address, ttlMinutes int, creationTimeMs int64, sessionVKBase64 string) []byte {
	created := time.UnixMilli(creationTimeMs).UTC().Truncate(time.Second).Format(attestationTimeLayout) + " UTC"
	return []byte(fmt.Sprintf("Accessing keys of package %s for %d mins from %s, session key %s",
		scope.String(), ttlMinutes, created, sessionVKBase64))
}
