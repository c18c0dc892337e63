// Package protocol 定义QUIC长包头核心用到的基本常量和类型。
package protocol

import "fmt"

// Version 表示一个32位的QUIC版本号。
type Version uint32

// VersionDraft29 是本实现认可的唯一版本号，取自IETF草案29。
// 真实部署时应替换为目标草案对应的编号。
const VersionDraft29 Version = 0xff00001d

// SupportedVersion 是本实现唯一认可的版本号。收到其它版本号的长包头时
// 解析必须以ProtocolError失败（spec.md §3）。
const SupportedVersion = VersionDraft29

// AtLeast 报告v是否不早于other，用于草案版本比较（例如ACK帧码点随
// 草案变化，参见internal/frame）。
func (v Version) AtLeast(other Version) bool {
	return v >= other
}

func (v Version) String() string {
	return fmt.Sprintf("0x%08x", uint32(v))
}

// ConnectionID 是目标/源连接标识符，长度必须落在[3,18]区间内
// （spec.md §3）。线上用半个字节记录 len-3。
type ConnectionID []byte

// MinConnectionIDLen 和 MaxConnectionIDLen 是连接ID允许的字节数边界。
const (
	MinConnectionIDLen = 3
	MaxConnectionIDLen = 18
)

// Validate 检查连接ID长度是否落在协议允许的范围内。
func (c ConnectionID) Validate() error {
	if len(c) < MinConnectionIDLen || len(c) > MaxConnectionIDLen {
		return fmt.Errorf("connection id length %d out of range [%d,%d]", len(c), MinConnectionIDLen, MaxConnectionIDLen)
	}
	return nil
}

// LengthNibble 返回 (len-3) 编码后的半字节，调用前必须先Validate。
func (c ConnectionID) LengthNibble() byte {
	return byte(len(c) - MinConnectionIDLen)
}

// PacketType 标记长包头的包类型，是build/parse多态的标签。
// 只涵盖spec.md范围内的三种长包头：Initial、Handshake、0-RTT。
// Retry和1-RTT短包头不在本实现范围内。
type PacketType uint8

const (
	// PacketTypeInitial 标识Initial包。
	PacketTypeInitial PacketType = iota
	// PacketTypeHandshake 标识Handshake包。
	PacketTypeHandshake
	// PacketTypeZeroRTT 标识0-RTT包；仅用于首字节类型位的拼装，
	// 0-RTT的建连语义本身超出范围（spec.md §1 Non-goals）。
	PacketTypeZeroRTT
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeInitial:
		return "Initial"
	case PacketTypeHandshake:
		return "Handshake"
	case PacketTypeZeroRTT:
		return "0-RTT"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// StreamID 表示QUIC流标识符。
type StreamID uint64

// ByteCount 表示字节计数，用于拥塞窗口、已发送字节等度量。
type ByteCount uint64

// PacketNumber 表示数据包编号，由发送端按包单调递增分配。
type PacketNumber int64

// InvalidPacketNumber 标记一个从不会被发送的包号，用作"尚无最大已确认
// 包号"的哨兵值（参见DecodePacketNumber）。
const InvalidPacketNumber PacketNumber = -1
