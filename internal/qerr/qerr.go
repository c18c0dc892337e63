// Package qerr 定义编解码核心和拥塞控制器对外汇报的错误种类（spec.md §7）。
package qerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind 区分五种错误语义：spec.md §7的四种，加上拥塞控制器拒绝发送时的
// KindCongestionBlocked。
type Kind int

const (
	// KindProtocolError 表示线上字节违反协议，连接级致命。
	KindProtocolError Kind = iota
	// KindAuthenticationError 表示AEAD打开失败，包被静默丢弃，
	// 但作为可恢复错误上报给调用方以便计数。
	KindAuthenticationError
	// KindNotYetImplemented 表示识别出但尚未支持的码点。
	KindNotYetImplemented
	// KindConfigurationError 表示违反构建前置条件的输入，属编程错误。
	KindConfigurationError
	// KindCongestionBlocked 表示拥塞控制器的放行谓词拒绝了这次发送，
	// 调用方应该稍后重试而不是当作协议错误处理。
	KindCongestionBlocked
)

func (k Kind) String() string {
	switch k {
	case KindProtocolError:
		return "ProtocolError"
	case KindAuthenticationError:
		return "AuthenticationError"
	case KindNotYetImplemented:
		return "NotYetImplemented"
	case KindConfigurationError:
		return "ConfigurationError"
	case KindCongestionBlocked:
		return "CongestionBlocked"
	default:
		return "UnknownError"
	}
}

// Error 携带种类、出错的字段名和造成问题的原始字节/值，满足
// spec.md §7 "surfaces errors to the caller with enough context"
// 的要求。
type Error struct {
	Kind  Kind
	Field string
	Value interface{}
	cause error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s", e.Kind)
	}
	return fmt.Sprintf("%s: field=%s value=%v", e.Kind, e.Field, e.Value)
}

// Unwrap 让errors.Is/errors.As能够穿透到底层原因。
func (e *Error) Unwrap() error {
	return e.cause
}

// New 构造一个没有底层cause的Error。
func New(kind Kind, field string, value interface{}) *Error {
	return &Error{Kind: kind, Field: field, Value: value}
}

// Wrap 用pkg/errors包装cause，附加种类和字段上下文。
func Wrap(kind Kind, cause error, field string, value interface{}) *Error {
	return &Error{Kind: kind, Field: field, Value: value, cause: errors.WithStack(cause)}
}

// Protocol/Authentication/NotYetImplemented/Configuration/CongestionBlocked
// 是五个便捷构造函数。

func Protocol(field string, value interface{}) *Error {
	return New(KindProtocolError, field, value)
}

func Authentication(field string, value interface{}) *Error {
	return New(KindAuthenticationError, field, value)
}

func NotYetImplemented(field string, value interface{}) *Error {
	return New(KindNotYetImplemented, field, value)
}

func Configuration(field string, value interface{}) *Error {
	return New(KindConfigurationError, field, value)
}

func CongestionBlocked(field string, value interface{}) *Error {
	return New(KindCongestionBlocked, field, value)
}

// Is 报告err的种类是否为kind，沿着Unwrap链查找。
func Is(err error, kind Kind) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind == kind
	}
	return false
}
