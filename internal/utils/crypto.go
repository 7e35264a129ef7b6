package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// tokenKeySize AES-256 密钥长度
const tokenKeySize = 32

// ErrTokenNameTooShort token 名称不足一个 AES 块，无法作为 IV
var ErrTokenNameTooShort = errors.New("token name shorter than 16 bytes")

// TokenCipher 存储 token 时使用的 AES-256-CTR 加解密器。
// IV 取自 token 名称的前 16 个字节，同一名称下的密文可以互相推导，
// 与各站点已部署的数据兼容，暂不更换。
type TokenCipher struct {
	block cipher.Block
}

// NewTokenCipher 创建加解密器，密钥不足 32 字节补零，超出截断
func NewTokenCipher(secret string) (*TokenCipher, error) {
	key := make([]byte, tokenKeySize)
	copy(key, secret)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{block: block}, nil
}

func (c *TokenCipher) stream(tokenName string) (cipher.Stream, error) {
	if len(tokenName) < aes.BlockSize {
		return nil, fmt.Errorf("%w: %q", ErrTokenNameTooShort, tokenName)
	}
	return cipher.NewCTR(c.block, []byte(tokenName[:aes.BlockSize])), nil
}

// Encrypt 加密 token 并返回标准 base64 字符串
func (c *TokenCipher) Encrypt(plaintext, tokenName string) (string, error) {
	s, err := c.stream(tokenName)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(plaintext))
	s.XORKeyStream(out, []byte(plaintext))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt 解密 Encrypt 的输出
func (c *TokenCipher) Decrypt(ciphertext, tokenName string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("token 密文不是有效的 base64: %w", err)
	}
	s, err := c.stream(tokenName)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(data))
	s.XORKeyStream(out, data)
	return string(out), nil
}
