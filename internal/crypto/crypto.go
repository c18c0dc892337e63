// Package crypto 保存TLS握手的累积状态：按加密级别收到的CRYPTO帧字节，
// 以及握手是否完成（spec.md §6 "TLS state holder: opaque recipient of
// CRYPTO frame bytes"）。真正的AEAD密钥派生和帧字节的TLS语义解析都在
// 范围之外（§1 Non-goals: "TLS handshake library"）——这里只是累积字节
// 并暴露一个满足frame.Sink的适配器，供internal/packet.Parse分发CRYPTO帧。
//
// 教师版CryptoSetup（本文件的前身）还承担了0-RTT、会话票据和手写HKDF
// 密钥派生；那些都被移走了：密钥派生现在属于internal/secrets和
// internal/handshake，0-RTT/会话恢复是显式非目标（spec.md §1）。
package crypto

import (
	"sync"

	"quictransport/internal/qerr"
)

// CryptoLevel 标识CRYPTO帧所属的加密级别。
type CryptoLevel uint8

const (
	LevelInitial CryptoLevel = iota
	LevelHandshake
	LevelOneRTT
)

func (l CryptoLevel) String() string {
	switch l {
	case LevelInitial:
		return "Initial"
	case LevelHandshake:
		return "Handshake"
	case LevelOneRTT:
		return "OneRTT"
	default:
		return "Unknown"
	}
}

// CryptoSetup 按级别累积CRYPTO帧字节，并记录握手是否完成。
type CryptoSetup struct {
	mutex sync.RWMutex

	data              map[CryptoLevel][]byte
	handshakeComplete bool
}

// NewCryptoSetup 创建一个空的握手状态持有者。
func NewCryptoSetup() *CryptoSetup {
	return &CryptoSetup{data: make(map[CryptoLevel][]byte)}
}

// appendData把收到的CRYPTO帧字节追加到对应级别的累积缓冲区。
func (c *CryptoSetup) appendData(level CryptoLevel, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data[level] = append(c.data[level], data...)
	return nil
}

// DataFor返回某个级别目前累积到的全部CRYPTO字节，供握手层消费。
func (c *CryptoSetup) DataFor(level CryptoLevel) []byte {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]byte{}, c.data[level]...)
}

// SetHandshakeComplete 标记握手已完成。
func (c *CryptoSetup) SetHandshakeComplete() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handshakeComplete = true
}

// HandshakeComplete 报告握手是否已完成。
func (c *CryptoSetup) HandshakeComplete() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.handshakeComplete
}

// ForLevel返回一个满足frame.Sink的适配器，把解析出的CRYPTO帧字节记到
// 给定级别——每种长包头子类型在调用packet.Parse时各自传入自己级别的
// sink（Initial包用LevelInitial，Handshake包用LevelHandshake）。
func (c *CryptoSetup) ForLevel(level CryptoLevel) *LevelSink {
	return &LevelSink{setup: c, level: level}
}

// LevelSink把某个固定加密级别的CRYPTO帧字节转交给底层CryptoSetup。
type LevelSink struct {
	setup *CryptoSetup
	level CryptoLevel
}

// HandleCryptoFrame实现frame.Sink。
func (s *LevelSink) HandleCryptoFrame(offset uint64, data []byte) error {
	if s.setup == nil {
		return qerr.Configuration("crypto_setup", nil)
	}
	return s.setup.appendData(s.level, data)
}
