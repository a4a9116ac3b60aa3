package launch

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"sort"
	"strings"
)

// Signature methods accepted on a trusted launch.
const (
	SignaturePlaintext = "PLAINTEXT"
	SignatureHMACSHA1  = "HMAC-SHA1"
)

// verifySignature checks the request signature against the consumer secret
// using the scheme the request names. Comparison is constant time.
func verifySignature(method, baseURL string, params map[string]string, secret string) bool {
	signature, ok := params[paramSignature]
	if !ok || signature == "" {
		return false
	}

	var expected string
	switch params[paramSignatureMethod] {
	case SignatureHMACSHA1:
		expected = hmacSHA1Signature(method, baseURL, params, secret)
	case SignaturePlaintext:
		expected = plaintextSignature(secret)
	default:
		return false
	}

	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

// Sign computes the HMAC-SHA1 signature a launch request must carry for
// the given parameters and secret. Exported so tool providers and tests
// can construct valid launches.
func Sign(method, baseURL string, params map[string]string, secret string) string {
	return hmacSHA1Signature(method, baseURL, params, secret)
}

// hmacSHA1Signature computes the HMAC-SHA1 signature over the canonical
// base string: METHOD & encoded-base-URL & encoded-sorted-parameters.
func hmacSHA1Signature(method, baseURL string, params map[string]string, secret string) string {
	base := strings.ToUpper(method) +
		"&" + percentEncode(baseURL) +
		"&" + percentEncode(normalizeParams(params))

	key := percentEncode(secret) + "&"
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// plaintextSignature is the shared secret followed by the (empty) token
// secret, per the plaintext scheme.
func plaintextSignature(secret string) string {
	return percentEncode(secret) + "&"
}

// normalizeParams percent-encodes every parameter except the signature
// itself, sorts the pairs, and joins them with & for the base string.
func normalizeParams(params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if k == paramSignature {
			continue
		}
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// percentEncode implements the strict parameter encoding the signature
// base string requires: only ALPHA, DIGIT, "-", ".", "_", "~" pass through.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}
