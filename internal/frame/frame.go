// Package frame 实现spec.md §4.1"Frame dispatch"一节描述的骨架：
// 对明文载荷里的每一帧按首字节做一次switch，只消费到足以跳到下一帧，
// 不实现帧体的业务语义（除了把CRYPTO字节转交给TLS状态持有者）。
// 每种帧类型完整的语义实现都是本核心范围之外的事（spec.md §1 Non-goals）。
//
// 取自LongHeaderPacket.java的parseFrames：一个while循环，对缓冲区剩余
// 部分按frameType分发，直到消费完。
package frame

import (
	"quictransport/internal/protocol"
	"quictransport/internal/qerr"
)

// 帧类型码点（spec.md §4.1）。ACK的码点随草案版本变化。
const (
	typePadding  = 0x00
	typeCrypto   = 0x18
	typeAckEarly = 0x0d // IETF draft-14及更早
	typeAck      = 0x1a // draft-15及之后
	typeAckECN   = 0x1b
)

// versionDraft15 是ACK码点从0x0d切换到0x1a/0x1b的分水岭草案版本。
const versionDraft15 = protocol.Version(0xff00000f)

// Sink是帧分发器唯一需要的外部协作者：TLS状态持有者，用来接收CRYPTO
// 帧里的字节（spec.md §6 "TLS state holder: opaque recipient of CRYPTO
// frame bytes"）。
type Sink interface {
	HandleCryptoFrame(offset uint64, data []byte) error
}

// EncodeCryptoFrame把data包成一个CRYPTO帧（类型码点+offset+length+数据），
// 是Dispatch对CRYPTO分支的逆操作。核心只生产这一种帧体——其它帧类型的
// 构造仍然超出范围（spec.md §1 Non-goals），这里只为了让发送方能把
// TLS握手字节交给编解码核心。
func EncodeCryptoFrame(offset uint64, data []byte) []byte {
	buf := []byte{typeCrypto}
	offBytes, _ := protocol.EncodeVarInt(offset)
	lenBytes, _ := protocol.EncodeVarInt(uint64(len(data)))
	buf = append(buf, offBytes...)
	buf = append(buf, lenBytes...)
	buf = append(buf, data...)
	return buf
}

// Dispatch消费plaintext里的全部帧，直到缓冲区耗尽。
func Dispatch(plaintext []byte, version protocol.Version, sink Sink) error {
	buf := plaintext
	for len(buf) > 0 {
		frameType := buf[0]
		buf = buf[1:]

		switch frameType {
		case typePadding:
			// PADDING没有帧体，直接跳过。
			continue

		case typeCrypto:
			offset, n, err := protocol.DecodeVarInt(buf)
			if err != nil {
				return qerr.Wrap(qerr.KindProtocolError, err, "crypto_offset", nil)
			}
			buf = buf[n:]

			length, n, err := protocol.DecodeVarInt(buf)
			if err != nil {
				return qerr.Wrap(qerr.KindProtocolError, err, "crypto_length", nil)
			}
			buf = buf[n:]

			if uint64(len(buf)) < length {
				return qerr.Protocol("crypto_data", length)
			}
			data := buf[:length]
			buf = buf[length:]

			if err := sink.HandleCryptoFrame(offset, data); err != nil {
				return err
			}

		case typeAckEarly:
			if version.AtLeast(versionDraft15) {
				return qerr.NotYetImplemented("frame_type", frameType)
			}
			consumed, err := skipAckFrame(buf, false)
			if err != nil {
				return err
			}
			buf = buf[consumed:]

		case typeAck, typeAckECN:
			if !version.AtLeast(versionDraft15) {
				return qerr.NotYetImplemented("frame_type", frameType)
			}
			consumed, err := skipAckFrame(buf, frameType == typeAckECN)
			if err != nil {
				return err
			}
			buf = buf[consumed:]

		default:
			return qerr.NotYetImplemented("frame_type", frameType)
		}
	}
	return nil
}

// skipAckFrame解析出一个ACK帧体占用的字节数并跳过，不保留其内容——
// ACK的语义交给本核心之外的丢包检测层（spec.md §1 Non-goals:
// "implementing every frame type's body"）。结构取自RFC 9000 §19.3：
// Largest Acked、ACK Delay、ACK Range Count、First ACK Range，随后
// ACK Range Count个(Gap, ACK Range Length)对，ECN变体再加三个计数。
func skipAckFrame(buf []byte, ecn bool) (int, error) {
	cursor := 0

	readVarInt := func(field string) (uint64, error) {
		v, n, err := protocol.DecodeVarInt(buf[cursor:])
		if err != nil {
			return 0, qerr.Wrap(qerr.KindProtocolError, err, field, nil)
		}
		cursor += n
		return v, nil
	}

	if _, err := readVarInt("largest_acked"); err != nil {
		return 0, err
	}
	if _, err := readVarInt("ack_delay"); err != nil {
		return 0, err
	}
	rangeCount, err := readVarInt("ack_range_count")
	if err != nil {
		return 0, err
	}
	if _, err := readVarInt("first_ack_range"); err != nil {
		return 0, err
	}

	for i := uint64(0); i < rangeCount; i++ {
		if _, err := readVarInt("ack_gap"); err != nil {
			return 0, err
		}
		if _, err := readVarInt("ack_range_length"); err != nil {
			return 0, err
		}
	}

	if ecn {
		for _, field := range []string{"ect0_count", "ect1_count", "ecn_ce_count"} {
			if _, err := readVarInt(field); err != nil {
				return 0, err
			}
		}
	}

	return cursor, nil
}
