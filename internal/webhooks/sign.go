package webhooks

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// SignaturePrefix precedes the hex digest in X-Agentic-Signature.
const SignaturePrefix = "sha256="

// Canonical encodes payload as compact JSON with sorted object keys and
// without HTML escaping. The same bytes are signed and sent.
func Canonical(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}

	// Round-trip through a generic value so struct fields are key-sorted too.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, errors.Wrap(err, "normalize payload")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, errors.Wrap(err, "encode canonical payload")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SignBody returns "sha256=" + hex(HMAC-SHA256(secret, body)).
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Sign canonicalizes payload and signs it.
func Sign(secret string, payload any) (string, error) {
	body, err := Canonical(payload)
	if err != nil {
		return "", err
	}
	return SignBody(secret, body), nil
}

// Verify checks a signature header against body in constant time.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(SignBody(secret, body)), []byte(signature))
}
