package wecom

import (
	"errors"
	"fmt"
)

// 加解密与解析错误
var (
	ErrSignatureMismatch  = errors.New("签名验证失败")
	ErrEnvelopeMalformed  = errors.New("提取加密消息失败")
	ErrKeyInvalid         = errors.New("EncodingAESKey无效")
	ErrCipherFailure      = errors.New("加解密失败")
	ErrReceiverIDMismatch = errors.New("ReceiveId校验失败")

	ErrParseFailure           = errors.New("消息解析失败")
	ErrUnsupportedMessageType = fmt.Errorf("%w: 不支持的消息类型", ErrParseFailure)
	ErrUnsupportedEventType   = fmt.Errorf("%w: 不支持的事件类型", ErrParseFailure)
)

// 主动调用错误
var (
	ErrTokenFetchFailure = errors.New("获取access_token失败")
	ErrNetwork           = errors.New("请求企业微信失败")
	ErrUpstreamRejected  = errors.New("企业微信拒绝请求")
)

// 企业微信全局错误码
const (
	codeOK           = 0
	codeInvalidToken = 40014
	codeTokenExpired = 42001
)

// APIError 企业微信返回的非零 errcode
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("errcode=%d, errmsg=%s", e.Code, e.Msg)
}

// Is 让 errors.Is(err, ErrUpstreamRejected) 对所有 APIError 成立
func (e *APIError) Is(target error) bool {
	return target == ErrUpstreamRejected
}

// invalidCredential 表示 access_token 失效，可刷新后重试一次
func (e *APIError) invalidCredential() bool {
	return e.Code == codeTokenExpired || e.Code == codeInvalidToken
}
