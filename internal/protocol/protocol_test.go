package protocol

import (
	"testing"
)

func TestConnectionIDValidate(t *testing.T) {
	// 测试长度不足的ConnectionID
	short := ConnectionID{1, 2}
	if err := short.Validate(); err == nil {
		t.Error("长度为2的ConnectionID应该被拒绝")
	}

	// 测试有效的ConnectionID
	id := ConnectionID{1, 2, 3, 4}
	if err := id.Validate(); err != nil {
		t.Errorf("长度为4的ConnectionID应该有效: %v", err)
	}

	// 测试超长的ConnectionID
	long := make(ConnectionID, 19)
	if err := long.Validate(); err == nil {
		t.Error("长度为19的ConnectionID应该被拒绝")
	}

	// 测试ConnectionID的比较
	id2 := ConnectionID{1, 2, 3, 4}
	if string(id) != string(id2) {
		t.Error("相同内容的ConnectionID应该相等")
	}
}

func TestConnectionIDLengthNibble(t *testing.T) {
	id := ConnectionID{1, 2, 3, 4} // len=4 -> nibble 1
	if got := id.LengthNibble(); got != 1 {
		t.Errorf("长度4的nibble错误，期望1，实际%d", got)
	}
}

func TestPacketType(t *testing.T) {
	// 测试长包头范围内的数据包类型
	tests := []struct {
		name     string
		pType    PacketType
		expected PacketType
	}{
		{"Initial包类型", PacketTypeInitial, 0},
		{"Handshake包类型", PacketTypeHandshake, 1},
		{"0-RTT包类型", PacketTypeZeroRTT, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.pType != tt.expected {
				t.Errorf("%s值错误，期望%d，实际%d", tt.name, tt.expected, tt.pType)
			}
		})
	}
}

func TestVersionAtLeast(t *testing.T) {
	if !SupportedVersion.AtLeast(SupportedVersion) {
		t.Error("版本号应该不小于自身")
	}
	if Version(1).AtLeast(SupportedVersion) {
		t.Error("草案版本1不应该不小于SupportedVersion")
	}
}

func TestStreamID(t *testing.T) {
	var sid StreamID = 1
	if sid != 1 {
		t.Errorf("StreamID值错误，期望1，实际%d", sid)
	}
}

func TestByteCount(t *testing.T) {
	var count ByteCount = 1024
	if count != 1024 {
		t.Errorf("ByteCount值错误，期望1024，实际%d", count)
	}
}

func TestPacketNumber(t *testing.T) {
	var pn PacketNumber = 100
	if pn != 100 {
		t.Errorf("PacketNumber值错误，期望100，实际%d", pn)
	}
}
