package client

import (
	"net"
	"testing"
	"time"

	"quictransport/internal/connection"
)

func TestNewClient(t *testing.T) {
	config := Config{RemoteAddr: "localhost:12345"}

	client, err := New(config)
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}

	if client.config.RemoteAddr != config.RemoteAddr {
		t.Errorf("远程地址配置错误，期望 %s，实际 %s", config.RemoteAddr, client.config.RemoteAddr)
	}
	if client.idGenerator == nil {
		t.Error("连接ID生成器未初始化")
	}
	if client.log == nil {
		t.Error("日志记录器未初始化")
	}
}

func TestConnect(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("创建模拟服务器失败: %v", err)
	}
	defer listener.Close()

	serverAddr := listener.LocalAddr().String()

	client, err := New(Config{RemoteAddr: serverAddr})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}

	received := make(chan struct{})
	go func() {
		buf := make([]byte, 2048)
		_, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			return
		}
		close(received)
	}()

	if err := client.Connect(); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer client.Close()

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Error("服务器没有收到初始数据报")
	}

	if client.conn == nil {
		t.Error("UDP连接未建立")
	}
	if client.Connection() == nil {
		t.Error("连接对象未建立")
	}
}

func TestHandleDatagramWithoutConnectionIsNoop(t *testing.T) {
	client, err := New(Config{RemoteAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}

	// 还没调用Connect，connection为nil，handleDatagram应该安全地什么都不做。
	client.handleDatagram([]byte{0x00})

	if client.Connection() != nil {
		t.Error("未连接时不应该存在连接对象")
	}
}

func TestClosePropagatesToConnection(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("创建模拟服务器失败: %v", err)
	}
	defer listener.Close()

	client, err := New(Config{RemoteAddr: listener.LocalAddr().String()})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	if err := client.Connect(); err != nil {
		t.Fatalf("连接失败: %v", err)
	}

	conn := client.Connection()
	if err := client.Close(); err != nil {
		t.Fatalf("关闭客户端失败: %v", err)
	}
	if conn.GetState() != connection.StateClosed {
		t.Error("关闭客户端应该同时关闭底层连接")
	}
}
