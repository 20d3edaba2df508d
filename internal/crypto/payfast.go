package crypto

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// FormParam is one key/value pair of a form body. PayFast signs parameters in
// the order they were posted, so the order must survive parsing.
type FormParam struct {
	Key   string
	Value string
}

// ParseOrderedForm parses an application/x-www-form-urlencoded body without
// losing parameter order.
func ParseOrderedForm(body string) ([]FormParam, error) {
	var params []FormParam
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("decode form key %q: %w", rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("decode form value for %q: %w", key, err)
		}
		params = append(params, FormParam{Key: key, Value: value})
	}
	return params, nil
}

// PayFastSignature computes the MD5 signature PayFast attaches to ITN
// callbacks: the url-encoded parameter string in posted order, without the
// signature field, followed by the passphrase when one is set.
func PayFastSignature(params []FormParam, passphrase string) string {
	return payFastSignature(params, passphrase, false)
}

// PayFastCheckoutSignature signs an outgoing checkout request. Unlike ITN
// callbacks, blank fields are left out of the signed string.
func PayFastCheckoutSignature(params []FormParam, passphrase string) string {
	return payFastSignature(params, passphrase, true)
}

func payFastSignature(params []FormParam, passphrase string, skipBlank bool) string {
	var b strings.Builder
	for _, p := range params {
		if p.Key == "signature" || (skipBlank && strings.TrimSpace(p.Value) == "") {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(strings.TrimSpace(p.Value)))
	}
	if passphrase != "" {
		b.WriteString("&passphrase=")
		b.WriteString(url.QueryEscape(strings.TrimSpace(passphrase)))
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyPayFastSignature reports whether the signature field of params
// matches the expected signature.
func VerifyPayFastSignature(params []FormParam, passphrase string) bool {
	var got string
	for _, p := range params {
		if p.Key == "signature" {
			got = strings.ToLower(strings.TrimSpace(p.Value))
		}
	}
	if got == "" {
		return false
	}
	want := PayFastSignature(params, passphrase)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
