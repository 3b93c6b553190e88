package wecom

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	aesKeyLength   = 32
	pkcs7BlockSize = 32
	randomPrefix   = 16
	lengthField    = 4
)

const randomAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Crypto 企业微信回调消息的签名校验与加解密
type Crypto struct {
	token      string
	key        []byte
	receiverID string
	now        func() time.Time
}

// NewCrypto 创建加解密器。encodingAESKey 为 43 位 Base64 字符串，
// 补一个 "=" 后解码必须恰好是 32 字节。
func NewCrypto(token, encodingAESKey, receiverID string) (*Crypto, error) {
	key, err := DecodeAESKey(encodingAESKey)
	if err != nil {
		return nil, err
	}

	return &Crypto{
		token:      token,
		key:        key,
		receiverID: receiverID,
		now:        time.Now,
	}, nil
}

// DecodeAESKey 解码 EncodingAESKey
func DecodeAESKey(encodingAESKey string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyInvalid, err)
	}
	if len(key) != aesKeyLength {
		return nil, fmt.Errorf("%w: 解码后长度为 %d，应为 %d", ErrKeyInvalid, len(key), aesKeyLength)
	}
	return key, nil
}

// Signature 计算 SHA1(sort(token, timestamp, nonce, encrypt)) 的十六进制摘要
func Signature(token, timestamp, nonce, encrypt string) string {
	parts := []string{token, timestamp, nonce, encrypt}
	sort.Strings(parts)

	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// VerifyURL 校验回调 URL 并返回解密后的 echostr
func (c *Crypto) VerifyURL(signature, timestamp, nonce, echoStr string) (string, error) {
	if err := c.verify(signature, timestamp, nonce, echoStr); err != nil {
		return "", err
	}

	plain, err := c.decrypt(echoStr)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// DecryptMessage 从回调包体中取出密文，验签后解密为消息 XML
func (c *Crypto) DecryptMessage(signature, timestamp, nonce, envelopeXML string) (string, error) {
	encrypt, err := extractEncrypt(envelopeXML)
	if err != nil {
		return "", err
	}

	if err := c.verify(signature, timestamp, nonce, encrypt); err != nil {
		return "", err
	}

	plain, err := c.decrypt(encrypt)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptMessage 加密被动回复消息，返回包体 XML 和签名。timestamp 为空时使用当前时间。
func (c *Crypto) EncryptMessage(reply, nonce, timestamp string) (string, string, error) {
	encrypt, err := c.encrypt([]byte(reply))
	if err != nil {
		return "", "", err
	}

	if timestamp == "" {
		timestamp = strconv.FormatInt(c.now().Unix(), 10)
	}

	signature := Signature(c.token, timestamp, nonce, encrypt)
	body, err := buildEnvelope(encrypt, signature, timestamp, nonce)
	if err != nil {
		return "", "", err
	}
	return body, signature, nil
}

func (c *Crypto) verify(signature, timestamp, nonce, encrypt string) error {
	if Signature(c.token, timestamp, nonce, encrypt) != signature {
		return ErrSignatureMismatch
	}
	return nil
}

// 明文布局: random(16) | len(4, big-endian) | content | receiverID
func (c *Crypto) decrypt(encrypt string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypt)
	if err != nil {
		return nil, fmt.Errorf("%w: base64解码失败: %v", ErrCipherFailure, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: 密文长度 %d 非法", ErrCipherFailure, len(ciphertext))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, c.key[:aes.BlockSize]).CryptBlocks(plain, ciphertext)
	plain = pkcs7Unpad(plain)

	if len(plain) < randomPrefix+lengthField {
		return nil, fmt.Errorf("%w: 明文长度不足", ErrCipherFailure)
	}

	contentLen := int(binary.BigEndian.Uint32(plain[randomPrefix : randomPrefix+lengthField]))
	start := randomPrefix + lengthField
	if contentLen > len(plain)-start {
		return nil, fmt.Errorf("%w: 内容长度 %d 超出明文", ErrCipherFailure, contentLen)
	}

	content := plain[start : start+contentLen]
	if string(plain[start+contentLen:]) != c.receiverID {
		return nil, ErrReceiverIDMismatch
	}
	return content, nil
}

func (c *Crypto) encrypt(content []byte) (string, error) {
	prefix, err := randomString(randomPrefix)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}

	buf := make([]byte, 0, randomPrefix+lengthField+len(content)+len(c.receiverID)+pkcs7BlockSize)
	buf = append(buf, prefix...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(content)))
	buf = append(buf, content...)
	buf = append(buf, c.receiverID...)
	buf = pkcs7Pad(buf)

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}

	ciphertext := make([]byte, len(buf))
	cipher.NewCBCEncrypter(block, c.key[:aes.BlockSize]).CryptBlocks(ciphertext, buf)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// pkcs7Pad 按 32 字节块补位，补位长度恒为 1..32
func pkcs7Pad(data []byte) []byte {
	amount := pkcs7BlockSize - len(data)%pkcs7BlockSize
	for i := 0; i < amount; i++ {
		data = append(data, byte(amount))
	}
	return data
}

// pkcs7Unpad 末字节不在 1..32 时视为无补位，原样返回。
// 与企业微信官方示例保持一致，不额外校验补位内容。
func pkcs7Unpad(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > pkcs7BlockSize || pad > len(data) {
		pad = 0
	}
	return data[:len(data)-pad]
}

func randomString(n int) ([]byte, error) {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(randomAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, err
		}
		out[i] = randomAlphabet[idx.Int64()]
	}
	return out, nil
}
