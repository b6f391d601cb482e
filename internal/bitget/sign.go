package bitget

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Sign builds the ACCESS-SIGN header value:
// Base64(HMAC-SHA256(secret, timestamp + UPPER(method) + requestPath + body)).
// body must be the exact bytes that go on the wire; it is empty for GET.
func Sign(secret, timestamp, method, requestPath, body string) string {
	message := timestamp + strings.ToUpper(method) + requestPath + body
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
