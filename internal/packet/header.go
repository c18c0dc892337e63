// Package packet 实现长包头QUIC数据包的封装与解析：buffer布局、
// 变长整数、关联数据构造、AEAD密封/打开、包号保护的施加/剥离
// （spec.md §4.1）。
//
// 教师实现（luzhuzai-LQUIC/internal/packet/packet.go）给出了Header/Packet
// 的结构和Pack/Unpack的命名习惯；具体的构建顺序和帧分发取自
// LongHeaderPacket.java。三种长包头子类型（Initial/Handshake/0-RTT）
// 不用继承表达，而是按spec.md §9的设计笔记，用一个标签变体加一张
// 小函数表来区分首字节标记、附加字段和首字节校验这三个钩子。
package packet

import (
	"quictransport/internal/protocol"
	"quictransport/internal/qerr"
)

const (
	// MaxDatagramSize 是单个数据报允许的最大字节数（spec.md §4.1）。
	MaxDatagramSize = 1500
	// MinInitialSize 是Initial数据报必须达到的最小字节数（spec.md §6）。
	MinInitialSize = 1200
	// aeadTagLen 是AEAD认证标签的固定长度。
	aeadTagLen = 16
	// minSampleWindow 是包头保护采样需要的字节数：样本从包号位置之后
	// 4字节开始（无论实际包号长度），取16字节（RFC 9001 §5.4.4）。
	minSampleWindow = 4 + 16
)

// Header 是build/parse共同操作的长包头字段集合（spec.md §3）。
type Header struct {
	Type         protocol.PacketType
	Version      protocol.Version
	DestConnID   protocol.ConnectionID
	SrcConnID    protocol.ConnectionID
	PacketNumber protocol.PacketNumber
	Token        []byte // 仅Initial包使用
}

// PeekDestConnID读出目标连接ID，不触碰包头保护或AEAD——DCID排在首字节
// 类型标记和版本号之后，属于完全不受保护的前缀。服务端在还没有为一个
// 新连接派生出密钥之前，得先看一眼DCID才能调用handshake.DeriveInitialSecrets，
// 这个函数就是为了补上Parse要求先有Secrets才能工作留下的这个空当。
func PeekDestConnID(data []byte) (protocol.ConnectionID, error) {
	if len(data) < 6 {
		return nil, qerr.Protocol("datagram_length", len(data))
	}
	offset := 1 + 4 // 首字节 + 版本号
	dcil := int(data[offset]>>4) + protocol.MinConnectionIDLen
	offset++
	if offset+dcil > len(data) {
		return nil, qerr.Protocol("dest_conn_id", nil)
	}
	return protocol.ConnectionID(append([]byte{}, data[offset:offset+dcil]...)), nil
}
