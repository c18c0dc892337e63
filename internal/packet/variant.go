package packet

import (
	"quictransport/internal/protocol"
	"quictransport/internal/qerr"
)

// variant是spec.md §9设计笔记里说的"tagged variant"：每种长包头子类型
// 贡献三个钩子——首字节的类型标记、额外的类型相关字段、以及解析时对
// 首字节的校验谓词。build/parse的通用骨架只写一次，住在build.go/parse.go里。
type variant struct {
	// typeMarker是首字节中2比特的包类型标记（长包头位之后的两位）。
	typeMarker byte
	// writeAdditional在DCID/SCID之后追加该子类型特有的字段，返回新的buf。
	writeAdditional func(buf []byte, h *Header) ([]byte, error)
	// parseAdditional从data[offset:]读取该子类型特有的字段，填入h，
	// 返回消耗后的新offset。
	parseAdditional func(data []byte, offset int, h *Header) (int, error)
}

// checkFirstByte校验首字节是否满足长包头不变式，并且类型位与该变体匹配。
func checkFirstByte(b byte, want *variant) error {
	if b&0x80 == 0 {
		return qerr.Protocol("first_byte", b)
	}
	marker := (b >> 2) & 0x3
	if marker != want.typeMarker {
		return qerr.Protocol("packet_type_marker", marker)
	}
	return nil
}

// firstByte组出未施加包头保护前的首字节：长包头位、2比特类型标记、
// 2比特包号长度（pnLen-1）。
func firstByte(v *variant, pnLen int) byte {
	return 0x80 | (v.typeMarker << 2) | byte(pnLen-1)
}

// variantFor按包类型查出对应的钩子表；未知类型是构建前置条件错误。
func variantFor(t protocol.PacketType) (*variant, error) {
	switch t {
	case protocol.PacketTypeInitial:
		return initialVariant, nil
	case protocol.PacketTypeHandshake:
		return handshakeVariant, nil
	case protocol.PacketTypeZeroRTT:
		return zeroRTTVariant, nil
	default:
		return nil, qerr.Configuration("packet_type", t)
	}
}

// variantByMarker在解析时用首字节里可见的2比特类型标记反查钩子表
// （这2比特不受包头保护覆盖，可以在剥离保护之前读取）。
func variantByMarker(marker byte) (protocol.PacketType, *variant, error) {
	switch marker {
	case initialVariant.typeMarker:
		return protocol.PacketTypeInitial, initialVariant, nil
	case handshakeVariant.typeMarker:
		return protocol.PacketTypeHandshake, handshakeVariant, nil
	case zeroRTTVariant.typeMarker:
		return protocol.PacketTypeZeroRTT, zeroRTTVariant, nil
	default:
		return 0, nil, qerr.Protocol("packet_type_marker", marker)
	}
}

var (
	// initialVariant的附加字段是token：varint长度加token本身
	// （spec.md §6 wire diagram）。
	initialVariant = &variant{
		typeMarker: 0,
		writeAdditional: func(buf []byte, h *Header) ([]byte, error) {
			lenBytes, err := protocol.EncodeVarInt(uint64(len(h.Token)))
			if err != nil {
				return nil, err
			}
			buf = append(buf, lenBytes...)
			buf = append(buf, h.Token...)
			return buf, nil
		},
		parseAdditional: func(data []byte, offset int, h *Header) (int, error) {
			tokenLen, n, err := protocol.DecodeVarInt(data[offset:])
			if err != nil {
				return 0, qerr.Wrap(qerr.KindProtocolError, err, "token_len", nil)
			}
			offset += n
			if offset+int(tokenLen) > len(data) {
				return 0, qerr.Protocol("token", tokenLen)
			}
			h.Token = append([]byte{}, data[offset:offset+int(tokenLen)]...)
			offset += int(tokenLen)
			return offset, nil
		},
	}

	// handshakeVariant没有额外字段。
	handshakeVariant = &variant{
		typeMarker:      2,
		writeAdditional: func(buf []byte, h *Header) ([]byte, error) { return buf, nil },
		parseAdditional: func(data []byte, offset int, h *Header) (int, error) { return offset, nil },
	}

	// zeroRTTVariant也没有额外字段；0-RTT的建连语义本身超出范围
	// （spec.md §1 Non-goals），这里只保留第一字节类型位的拼装能力，
	// 好让build/parse骨架能认出这个长包头变体。
	zeroRTTVariant = &variant{
		typeMarker:      1,
		writeAdditional: func(buf []byte, h *Header) ([]byte, error) { return buf, nil },
		parseAdditional: func(data []byte, offset int, h *Header) (int, error) { return offset, nil },
	}
)
