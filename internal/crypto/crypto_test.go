package crypto

import (
	"bytes"
	"testing"
)

func TestHandleCryptoFrameAccumulatesPerLevel(t *testing.T) {
	cs := NewCryptoSetup()

	initialSink := cs.ForLevel(LevelInitial)
	if err := initialSink.HandleCryptoFrame(0, []byte("client hello part 1")); err != nil {
		t.Fatalf("处理Initial级别CRYPTO帧失败: %v", err)
	}
	if err := initialSink.HandleCryptoFrame(19, []byte(" part 2")); err != nil {
		t.Fatalf("处理Initial级别CRYPTO帧失败: %v", err)
	}

	handshakeSink := cs.ForLevel(LevelHandshake)
	if err := handshakeSink.HandleCryptoFrame(0, []byte("certificate bytes")); err != nil {
		t.Fatalf("处理Handshake级别CRYPTO帧失败: %v", err)
	}

	if got := cs.DataFor(LevelInitial); !bytes.Equal(got, []byte("client hello part 1 part 2")) {
		t.Errorf("Initial级别累积数据不匹配，实际%q", got)
	}
	if got := cs.DataFor(LevelHandshake); !bytes.Equal(got, []byte("certificate bytes")) {
		t.Errorf("Handshake级别累积数据不匹配，实际%q", got)
	}
	if got := cs.DataFor(LevelOneRTT); len(got) != 0 {
		t.Errorf("未写入的级别应该返回空，实际%q", got)
	}
}

func TestHandshakeCompleteTransition(t *testing.T) {
	cs := NewCryptoSetup()

	if cs.HandshakeComplete() {
		t.Error("初始状态握手不应完成")
	}

	cs.SetHandshakeComplete()

	if !cs.HandshakeComplete() {
		t.Error("握手完成状态设置失败")
	}
}

func TestForLevelRejectsNilSetup(t *testing.T) {
	var sink LevelSink
	if err := sink.HandleCryptoFrame(0, []byte("x")); err == nil {
		t.Error("空的CryptoSetup应该返回ConfigurationError")
	}
}
