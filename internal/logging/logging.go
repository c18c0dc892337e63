// Package logging 定义编解码核心和拥塞控制器借用的窄接口Logger，
// 以及基于logrus的实现（spec.md §6）。
package logging

import (
	"encoding/hex"

	"github.com/sirupsen/logrus"
)

// Logger 是核心组件唯一可见的日志接口。debug带一份可选的原始字节，
// cc专门用于拥塞控制事件，方便单独过滤查看拥塞窗口变化。
type Logger interface {
	Debug(msg string, bytes ...[]byte)
	CC(msg string)
	Secret(msg string, secret []byte)
	Recovery(msg string)
}

// logrusLogger 用logrus.FieldLogger承载四个日志范畴，范畴以字段区分，
// 便于下游按category过滤。
type logrusLogger struct {
	entry *logrus.Entry
}

// New 用给定的logrus.Logger构造一个Logger；nil时使用logrus的默认实例。
func New(base *logrus.Logger) Logger {
	if base == nil {
		base = logrus.New()
	}
	return &logrusLogger{entry: base.WithField("component", "quic")}
}

func (l *logrusLogger) Debug(msg string, bytes ...[]byte) {
	entry := l.entry.WithField("category", "raw")
	if len(bytes) > 0 && bytes[0] != nil {
		entry = entry.WithField("bytes", hex.EncodeToString(bytes[0]))
	}
	entry.Debug(msg)
}

func (l *logrusLogger) CC(msg string) {
	l.entry.WithField("category", "cc").Debug(msg)
}

func (l *logrusLogger) Secret(msg string, secret []byte) {
	l.entry.WithField("category", "secret").WithField("bytes", hex.EncodeToString(secret)).Trace(msg)
}

func (l *logrusLogger) Recovery(msg string) {
	l.entry.WithField("category", "recovery").Debug(msg)
}

// noopLogger 吞掉所有日志调用，供不关心输出的测试使用。
type noopLogger struct{}

// NoOp 返回一个什么都不做的Logger。
func NoOp() Logger { return noopLogger{} }

func (noopLogger) Debug(string, ...[]byte) {}
func (noopLogger) CC(string)               {}
func (noopLogger) Secret(string, []byte)   {}
func (noopLogger) Recovery(string)         {}
