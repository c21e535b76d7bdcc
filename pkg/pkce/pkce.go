package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// PKCE (RFC 7636): 授权码绑定本地生成的 verifier，防止授权码被拦截后冒用

// GenerateVerifier 生成指定长度的 code verifier (同样适用于 state)
func GenerateVerifier(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._~"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	var result strings.Builder
	for _, bVal := range b {
		result.WriteByte(charset[int(bVal)%len(charset)])
	}
	return result.String(), nil
}

// GenerateChallenge 基于 verifier 生成 S256 Challenge
// 算法：Base64UrlEncode(SHA256(ASCII(verifier)))
func GenerateChallenge(verifier string) string {
	h := sha256.New()
	h.Write([]byte(verifier))
	// Etsy 要求 RawURLEncoding (不带填充符=)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
