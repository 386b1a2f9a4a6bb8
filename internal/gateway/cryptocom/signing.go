package cryptocom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// signAuthPayload computes the Crypto.com Exchange public/auth request
// signature: HMAC-SHA256 of method+nonce+apiKey+nonce, hex-encoded. No
// third-party HMAC library is used here — see DESIGN.md's stdlib
// justification.
func signAuthPayload(method, apiKey, apiSecret string, nonce int64) string {
	payload := method + strconv.FormatInt(nonce, 10) + apiKey + strconv.FormatInt(nonce, 10)
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
