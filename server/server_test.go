package server

import (
	"bytes"
	"net"
	"testing"
	"time"

	"quictransport/internal/connection"
	"quictransport/internal/handshake"
	"quictransport/internal/packet"
	"quictransport/internal/protocol"
)

// buildClientInitial构造一个客户端发往服务端的Initial数据报，密钥按
// destConnID用handshake.DeriveInitialSecrets派生，和服务端收到后重新
// 派生出的一套完全一致。
func buildClientInitial(t *testing.T, destConnID, srcConnID protocol.ConnectionID, pn protocol.PacketNumber) []byte {
	t.Helper()
	cs, err := handshake.DeriveInitialSecrets(destConnID)
	if err != nil {
		t.Fatalf("派生Initial密钥失败: %v", err)
	}
	data, err := packet.Build(packet.BuildInput{
		Header: packet.Header{
			Type:         protocol.PacketTypeInitial,
			Version:      protocol.SupportedVersion,
			DestConnID:   destConnID,
			SrcConnID:    srcConnID,
			PacketNumber: pn,
		},
		LargestAcked: protocol.InvalidPacketNumber,
		Secrets:      cs.ClientSecrets,
	})
	if err != nil {
		t.Fatalf("构建Initial包失败: %v", err)
	}
	return data
}

func TestNewServer(t *testing.T) {
	config := Config{
		Addr:           ":12345",
		MaxConnections: 100,
	}

	server, err := New(config)
	if err != nil {
		t.Fatalf("创建服务器失败: %v", err)
	}

	if server.config.Addr != config.Addr {
		t.Errorf("地址配置错误，期望 %s，实际 %s", config.Addr, server.config.Addr)
	}
	if server.config.MaxConnections != config.MaxConnections {
		t.Errorf("最大连接数配置错误，期望 %d，实际 %d", config.MaxConnections, server.config.MaxConnections)
	}
	if server.idGenerator == nil {
		t.Error("连接ID生成器未初始化")
	}
	if server.connections == nil {
		t.Error("连接管理映射未初始化")
	}
}

func TestStartServer(t *testing.T) {
	server, err := New(Config{Addr: ":0"})
	if err != nil {
		t.Fatalf("创建服务器失败: %v", err)
	}

	if err := server.Start(); err != nil {
		t.Fatalf("启动服务器失败: %v", err)
	}
	defer server.Close()

	time.Sleep(50 * time.Millisecond)

	if server.conn == nil {
		t.Error("UDP连接未建立")
	}
}

func TestHandleDatagramCreatesConnection(t *testing.T) {
	server, err := New(Config{Addr: ":0"})
	if err != nil {
		t.Fatalf("创建服务器失败: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("启动服务器失败: %v", err)
	}
	defer server.Close()

	clientConn, err := net.DialUDP("udp", nil, server.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("创建客户端连接失败: %v", err)
	}
	defer clientConn.Close()

	destConnID := protocol.ConnectionID{1, 2, 3, 4}
	srcConnID := protocol.ConnectionID{9, 9, 9, 9}
	data := buildClientInitial(t, destConnID, srcConnID, 0)

	if _, err := clientConn.Write(data); err != nil {
		t.Fatalf("发送数据包失败: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	server.connectionsMux.RLock()
	conn, exists := server.connections[string(destConnID)]
	server.connectionsMux.RUnlock()

	if !exists {
		t.Fatal("服务器未创建连接")
	}
	if conn.GetState() != connection.StateHandshaking {
		t.Errorf("收到Initial包后状态应为握手中，实际%v", conn.GetState())
	}
	if !bytes.Equal(conn.GetDestConnID(), destConnID) {
		t.Error("目标连接ID不匹配")
	}
}

func TestMaxConnections(t *testing.T) {
	server, err := New(Config{Addr: ":0", MaxConnections: 1})
	if err != nil {
		t.Fatalf("创建服务器失败: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("启动服务器失败: %v", err)
	}
	defer server.Close()

	clientConn1, err := net.DialUDP("udp", nil, server.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("创建第一个客户端连接失败: %v", err)
	}
	defer clientConn1.Close()

	clientConn2, err := net.DialUDP("udp", nil, server.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("创建第二个客户端连接失败: %v", err)
	}
	defer clientConn2.Close()

	data1 := buildClientInitial(t, protocol.ConnectionID{1, 2, 3, 4}, protocol.ConnectionID{9, 9, 9, 9}, 0)
	if _, err := clientConn1.Write(data1); err != nil {
		t.Fatalf("发送第一个数据包失败: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	data2 := buildClientInitial(t, protocol.ConnectionID{5, 6, 7, 8}, protocol.ConnectionID{8, 8, 8, 8}, 0)
	if _, err := clientConn2.Write(data2); err != nil {
		t.Fatalf("发送第二个数据包失败: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	server.connectionsMux.RLock()
	connCount := len(server.connections)
	server.connectionsMux.RUnlock()

	if connCount > 1 {
		t.Errorf("超出最大连接数限制，当前连接数: %d", connCount)
	}
}
