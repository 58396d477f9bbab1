package cryptoutils

import (
	"encoding/binary"
)

// RequestFormat is the record a session key signs for one decryption request.
// Key servers rebuild it from the fetch_key body to check the request signature.
type RequestFormat struct {
	PTB                []byte
	EncKey             []byte
	EncVerificationKey []byte
}

// EncodeRequest serializes (payload, publicKey, verificationKey) in BCS layout:
// three vector<u8> fields, each a ULEB128 length followed by the raw bytes, in
// that order, with no padding and no version tag. The output depends only on
// the inputs, so independent verifiers re-derive identical bytes.
func EncodeRequest(payload, publicKey, verificationKey []byte) []byte {
	size := 3*binary.MaxVarintLen32 + len(payload) + len(publicKey) + len(verificationKey)
	out := make([]byte, 0, size)
	out = appendVector(out, payload)
	out = appendVector(out, publicKey)
	out = appendVector(out, verificationKey)
	return out
}

// Encode returns the canonical bytes of the request.
func (r RequestFormat) Encode() []byte {
	return EncodeRequest(r.PTB, r.EncKey, r.EncVerificationKey)
}

func appendVector(dst, v []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(v)))
	return append(dst, v...)
}
