// Package client 实现QUIC客户端功能：生成连接ID，派生Initial密钥，
// 用编解码核心构建Initial数据报并发出去，再把收到的应答交回连接层。
package client

import (
	"fmt"
	"net"
	"sync"

	"quictransport/internal/connection"
	"quictransport/internal/handshake"
	"quictransport/internal/logging"
	"quictransport/internal/qerr"
)

// Config 客户端配置
type Config struct {
	RemoteAddr string
	Logger     logging.Logger
}

// Client QUIC客户端
type Client struct {
	config Config
	conn   *net.UDPConn

	connection    *connection.Connection
	connectionMux sync.RWMutex

	idGenerator *connection.IDGenerator
	log         logging.Logger

	closeChan chan struct{}
	closeOnce sync.Once
}

// New 创建新的QUIC客户端
func New(config Config) (*Client, error) {
	gen, err := connection.NewIDGenerator(connection.DefaultIDLength)
	if err != nil {
		return nil, err
	}
	log := config.Logger
	if log == nil {
		log = logging.NoOp()
	}
	return &Client{
		config:      config,
		idGenerator: gen,
		log:         log,
		closeChan:   make(chan struct{}),
	}, nil
}

// Connect 连接到服务器：拨号、派生Initial密钥、建立连接对象并发出
// 第一个Initial数据报。
func (c *Client) Connect() error {
	addr, err := net.ResolveUDPAddr("udp", c.config.RemoteAddr)
	if err != nil {
		return qerr.Wrap(qerr.KindConfigurationError, err, "remote_addr", c.config.RemoteAddr)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return qerr.Wrap(qerr.KindConfigurationError, err, "dial", addr)
	}
	c.conn = conn

	destConnID, err := c.idGenerator.GenerateConnectionID()
	if err != nil {
		return err
	}
	srcConnID, err := c.idGenerator.GenerateConnectionID()
	if err != nil {
		return err
	}

	cs, err := handshake.DeriveInitialSecrets(destConnID)
	if err != nil {
		return err
	}

	conn2 := connection.NewConnection(destConnID, srcConnID, addr, c.conn)
	conn2.InstallSecrets(cs)
	conn2.SetLogger(c.log)

	c.connectionMux.Lock()
	c.connection = conn2
	c.connectionMux.Unlock()

	if err := c.sendInitialPacket(); err != nil {
		return err
	}

	go c.readLoop()
	return nil
}

// sendInitialPacket 发出不带任何握手数据的首个Initial数据报。
func (c *Client) sendInitialPacket() error {
	c.connectionMux.RLock()
	conn := c.connection
	c.connectionMux.RUnlock()
	if conn == nil {
		return qerr.Configuration("connection", nil)
	}

	data, err := conn.BuildInitialPacket(nil, nil)
	if err != nil {
		return err
	}
	_, err = c.conn.Write(data)
	return err
}

// readLoop 读取数据包
func (c *Client) readLoop() {
	buf := make([]byte, 2048)
	for {
		select {
		case <-c.closeChan:
			return
		default:
			n, _, err := c.conn.ReadFromUDP(buf)
			if err != nil {
				continue
			}
			data := append([]byte{}, buf[:n]...)
			go c.handleDatagram(data)
		}
	}
}

// handleDatagram 把收到的数据报交给连接层处理。
func (c *Client) handleDatagram(data []byte) {
	c.connectionMux.RLock()
	conn := c.connection
	c.connectionMux.RUnlock()

	if conn == nil {
		return
	}
	if _, err := conn.HandleDatagram(data); err != nil {
		c.log.Debug(fmt.Sprintf("处理数据报失败: %v", err))
	}
}

// Connection暴露底层连接对象，供调用方驱动握手或查询状态。
func (c *Client) Connection() *connection.Connection {
	c.connectionMux.RLock()
	defer c.connectionMux.RUnlock()
	return c.connection
}

// Close 关闭客户端
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closeChan) })
	c.connectionMux.RLock()
	conn := c.connection
	c.connectionMux.RUnlock()
	if conn != nil {
		_ = conn.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
