package wecom

import (
	"encoding/xml"
	"fmt"
	"strings"
)

type cdata struct {
	Value string `xml:",cdata"`
}

// inboundEnvelope 回调 POST 包体
type inboundEnvelope struct {
	XMLName    xml.Name `xml:"xml"`
	ToUserName string   `xml:"ToUserName"`
	AgentID    string   `xml:"AgentID"`
	Encrypt    string   `xml:"Encrypt"`
}

// outboundEnvelope 被动回复包体
type outboundEnvelope struct {
	XMLName      xml.Name `xml:"xml"`
	Encrypt      cdata    `xml:"Encrypt"`
	MsgSignature cdata    `xml:"MsgSignature"`
	TimeStamp    string   `xml:"TimeStamp"`
	Nonce        cdata    `xml:"Nonce"`
}

func extractEncrypt(envelopeXML string) (string, error) {
	var env inboundEnvelope
	if err := xml.Unmarshal([]byte(envelopeXML), &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnvelopeMalformed, err)
	}

	encrypt := strings.TrimSpace(env.Encrypt)
	if encrypt == "" {
		return "", fmt.Errorf("%w: 缺少Encrypt字段", ErrEnvelopeMalformed)
	}
	return encrypt, nil
}

func buildEnvelope(encrypt, signature, timestamp, nonce string) (string, error) {
	out, err := xml.MarshalIndent(outboundEnvelope{
		Encrypt:      cdata{encrypt},
		MsgSignature: cdata{signature},
		TimeStamp:    timestamp,
		Nonce:        cdata{nonce},
	}, "", "")
	if err != nil {
		return "", fmt.Errorf("%w: 生成回复包体失败: %v", ErrCipherFailure, err)
	}
	return string(out), nil
}

// ParseEnvelope 解析包体中的密文、签名、时间戳与随机数，便于校验被动回复
func ParseEnvelope(envelopeXML string) (encrypt, signature, timestamp, nonce string, err error) {
	var env outboundEnvelope
	if err = xml.Unmarshal([]byte(envelopeXML), &env); err != nil {
		return "", "", "", "", fmt.Errorf("%w: %v", ErrEnvelopeMalformed, err)
	}
	if env.Encrypt.Value == "" {
		return "", "", "", "", fmt.Errorf("%w: 缺少Encrypt字段", ErrEnvelopeMalformed)
	}
	return env.Encrypt.Value, env.MsgSignature.Value, env.TimeStamp, env.Nonce.Value, nil
}
