package frame

import (
	"testing"

	"quictransport/internal/protocol"
)

type fakeSink struct {
	offsets [][2]interface{}
	fail    bool
}

func (s *fakeSink) HandleCryptoFrame(offset uint64, data []byte) error {
	s.offsets = append(s.offsets, [2]interface{}{offset, append([]byte{}, data...)})
	return nil
}

func appendVarInt(buf []byte, n uint64) []byte {
	enc, err := protocol.EncodeVarInt(n)
	if err != nil {
		panic(err)
	}
	return append(buf, enc...)
}

func TestDispatchPadding(t *testing.T) {
	sink := &fakeSink{}
	if err := Dispatch([]byte{0x00, 0x00, 0x00}, protocol.SupportedVersion, sink); err != nil {
		t.Fatalf("分发PADDING失败: %v", err)
	}
}

func TestDispatchCrypto(t *testing.T) {
	var buf []byte
	buf = append(buf, typeCrypto)
	buf = appendVarInt(buf, 0) // offset
	buf = appendVarInt(buf, 5) // length
	buf = append(buf, []byte("hello")...)

	sink := &fakeSink{}
	if err := Dispatch(buf, protocol.SupportedVersion, sink); err != nil {
		t.Fatalf("分发CRYPTO失败: %v", err)
	}
	if len(sink.offsets) != 1 {
		t.Fatalf("期望收到1个CRYPTO帧，实际%d", len(sink.offsets))
	}
	if string(sink.offsets[0][1].([]byte)) != "hello" {
		t.Errorf("CRYPTO数据错误: %v", sink.offsets[0][1])
	}
}

func TestDispatchAckLaterDraft(t *testing.T) {
	var buf []byte
	buf = append(buf, typeAck)
	buf = appendVarInt(buf, 10) // largest acked
	buf = appendVarInt(buf, 0)  // ack delay
	buf = appendVarInt(buf, 1)  // range count
	buf = appendVarInt(buf, 2)  // first ack range
	buf = appendVarInt(buf, 0)  // gap
	buf = appendVarInt(buf, 1)  // ack range length

	sink := &fakeSink{}
	if err := Dispatch(buf, protocol.SupportedVersion, sink); err != nil {
		t.Fatalf("分发ACK失败: %v", err)
	}
}

func TestDispatchAckWrongDraftRejected(t *testing.T) {
	var buf []byte
	buf = append(buf, typeAckEarly)
	buf = appendVarInt(buf, 10)
	buf = appendVarInt(buf, 0)
	buf = appendVarInt(buf, 0)
	buf = appendVarInt(buf, 0)

	sink := &fakeSink{}
	// SupportedVersion是draft-29，晚于draft-15，所以0x0d应该被拒绝。
	if err := Dispatch(buf, protocol.SupportedVersion, sink); err == nil {
		t.Error("draft-29下使用0x0d这个ACK码点应该返回NotYetImplemented")
	}
}

func TestDispatchUnknownFrameType(t *testing.T) {
	sink := &fakeSink{}
	if err := Dispatch([]byte{0x7f}, protocol.SupportedVersion, sink); err == nil {
		t.Error("未知帧类型应该返回错误")
	}
}

func TestEncodeCryptoFrameRoundTrip(t *testing.T) {
	encoded := EncodeCryptoFrame(7, []byte("client hello"))

	sink := &fakeSink{}
	if err := Dispatch(encoded, protocol.SupportedVersion, sink); err != nil {
		t.Fatalf("分发自编码的CRYPTO帧失败: %v", err)
	}
	if len(sink.offsets) != 1 {
		t.Fatalf("期望收到1个CRYPTO帧，实际%d", len(sink.offsets))
	}
	if sink.offsets[0][0].(uint64) != 7 {
		t.Errorf("offset不匹配，期望7，实际%v", sink.offsets[0][0])
	}
	if string(sink.offsets[0][1].([]byte)) != "client hello" {
		t.Errorf("数据不匹配，实际%v", sink.offsets[0][1])
	}
}

func TestDispatchMultipleFrames(t *testing.T) {
	var buf []byte
	buf = append(buf, 0x00, 0x00) // 两个PADDING
	buf = append(buf, typeCrypto)
	buf = appendVarInt(buf, 3)
	buf = appendVarInt(buf, 2)
	buf = append(buf, []byte("hi")...)

	sink := &fakeSink{}
	if err := Dispatch(buf, protocol.SupportedVersion, sink); err != nil {
		t.Fatalf("分发混合帧失败: %v", err)
	}
	if len(sink.offsets) != 1 || sink.offsets[0][0].(uint64) != 3 {
		t.Errorf("CRYPTO帧的offset应为3，实际%v", sink.offsets)
	}
}
