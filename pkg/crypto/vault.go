package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ==================== CredentialVault 凭证加密 ====================

// Token 落库前必须加密，密文格式: iv:tag:ciphertext (hex 编码)
// GCM 自带完整性校验，密文被篡改时解密直接报错，不会返回乱码

const (
	ivLength  = 16
	tagLength = 16
	keyLength = 32

	// scrypt 参数，与历史密文保持一致，不可随意调整
	scryptN = 16384
	scryptR = 8
	scryptP = 1

	kdfSalt = "etsy-erp-salt"
)

var ErrCiphertextInvalid = errors.New("密文格式无效或已被篡改")

// Vault 凭证保险箱
type Vault struct {
	key []byte
}

// NewVault 创建保险箱
// secret 来自配置 TOKEN_ENCRYPTION_KEY，长度不足时启动即失败
func NewVault(secret string) (*Vault, error) {
	if len(secret) < 32 {
		return nil, errors.New("TOKEN_ENCRYPTION_KEY 长度必须不少于 32 个字符")
	}

	key, err := scrypt.Key([]byte(secret), []byte(kdfSalt), scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("密钥派生失败: %w", err)
	}

	return &Vault{key: key}, nil
}

// Encrypt 加密明文
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	// Seal 的输出为 ciphertext||tag，按格式拆开存储
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt 解密密文
// 密文缺段、被篡改均返回 ErrCiphertextInvalid
func (v *Vault) Decrypt(encrypted string) (string, error) {
	parts := strings.Split(encrypted, ":")
	if len(parts) != 3 {
		return "", ErrCiphertextInvalid
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivLength {
		return "", ErrCiphertextInvalid
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagLength {
		return "", ErrCiphertextInvalid
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrCiphertextInvalid
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}

	return string(plaintext), nil
}
