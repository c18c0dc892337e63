// Package server 实现QUIC服务器功能
package server

import (
	"net"
	"sync"

	"quictransport/internal/connection"
	"quictransport/internal/handshake"
	"quictransport/internal/logging"
	"quictransport/internal/packet"
	"quictransport/internal/qerr"
)

// Config 服务器配置
type Config struct {
	Addr   string
	Logger logging.Logger
	// 最大并发连接数
	MaxConnections int
}

// Server QUIC服务器
type Server struct {
	config Config
	conn   *net.UDPConn
	// 连接管理
	connections    map[string]*connection.Connection
	connectionsMux sync.RWMutex
	// 连接ID生成器
	idGenerator *connection.IDGenerator
	log         logging.Logger
	// 关闭通道
	closeChan chan struct{}
	closeOnce sync.Once
}

// New 创建新的QUIC服务器
func New(config Config) (*Server, error) {
	if config.MaxConnections <= 0 {
		config.MaxConnections = 1000 // 默认最大连接数
	}

	gen, err := connection.NewIDGenerator(connection.DefaultIDLength)
	if err != nil {
		return nil, err
	}
	log := config.Logger
	if log == nil {
		log = logging.NoOp()
	}

	return &Server{
		config:      config,
		connections: make(map[string]*connection.Connection),
		idGenerator: gen,
		log:         log,
		closeChan:   make(chan struct{}),
	}, nil
}

// Start 启动服务器
func (s *Server) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.config.Addr)
	if err != nil {
		return qerr.Wrap(qerr.KindConfigurationError, err, "addr", s.config.Addr)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return qerr.Wrap(qerr.KindConfigurationError, err, "listen", addr)
	}
	s.conn = conn

	go s.acceptLoop()
	return nil
}

// acceptLoop 接受新连接
func (s *Server) acceptLoop() {
	buf := make([]byte, 2048)
	for {
		select {
		case <-s.closeChan:
			return
		default:
			n, remoteAddr, err := s.conn.ReadFromUDP(buf)
			if err != nil {
				continue
			}
			data := append([]byte{}, buf[:n]...)
			go s.handleDatagram(data, remoteAddr)
		}
	}
}

// handleDatagram 处理接收到的数据报：先只读出明文的目标连接ID，找到
// 既有连接就直接转交，找不到就尝试按Initial包新建一条。
func (s *Server) handleDatagram(data []byte, remoteAddr *net.UDPAddr) {
	destConnID, err := packet.PeekDestConnID(data)
	if err != nil {
		s.log.Debug("丢弃无法识别连接ID的数据报", data)
		return
	}

	connKey := string(destConnID)
	s.connectionsMux.RLock()
	conn, exists := s.connections[connKey]
	s.connectionsMux.RUnlock()

	if !exists {
		var err error
		conn, err = s.acceptNewConnection(destConnID, remoteAddr)
		if err != nil {
			s.log.Debug("接受新连接失败")
			return
		}
		if conn == nil {
			// 达到最大连接数，丢弃数据报。
			return
		}
	}

	if _, err := conn.HandleDatagram(data); err != nil {
		s.log.Debug("处理数据报失败")
	}
}

// acceptNewConnection 为一个此前未见过的目标连接ID派生Initial密钥并
// 登记一条新连接；超出MaxConnections时返回(nil, nil)表示丢弃。
func (s *Server) acceptNewConnection(destConnID []byte, remoteAddr *net.UDPAddr) (*connection.Connection, error) {
	cs, err := handshake.DeriveInitialSecrets(destConnID)
	if err != nil {
		return nil, err
	}

	srcConnID, err := s.idGenerator.GenerateConnectionID()
	if err != nil {
		return nil, err
	}

	// Connection总是用ClientSecrets密封、用ServerSecrets打开；服务端收的是
	// 客户端方向密封的包、发的是服务端方向的包，所以安装前把两个方向对调。
	cs.ClientSecrets, cs.ServerSecrets = cs.ServerSecrets, cs.ClientSecrets

	conn := connection.NewConnection(destConnID, srcConnID, remoteAddr, s.conn)
	conn.InstallSecrets(cs)
	conn.SetLogger(s.log)

	s.connectionsMux.Lock()
	defer s.connectionsMux.Unlock()
	if len(s.connections) >= s.config.MaxConnections {
		return nil, nil
	}
	if existing, ok := s.connections[string(destConnID)]; ok {
		return existing, nil
	}
	s.connections[string(destConnID)] = conn
	return conn, nil
}

// Close 关闭服务器
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.closeChan) })
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
