// Package connection 实现QUIC连接管理相关功能：把编解码核心
// （internal/packet）、密钥（internal/secrets）、拥塞控制器
// （internal/congestion）和连接层自己记的流级流量控制窗口绑在一起。
// 这层是spec.md §1所说的"connection lifecycle scaffolding"——核心本身
// 只通过narrow interfaces被这层消费，核心的语义不在这里重新实现。
package connection

import (
	"net"
	"sync"
	"time"

	"quictransport/internal/congestion"
	"quictransport/internal/crypto"
	"quictransport/internal/frame"
	"quictransport/internal/logging"
	"quictransport/internal/packet"
	"quictransport/internal/protocol"
	"quictransport/internal/qerr"
	"quictransport/internal/secrets"
)

// streamFlowControlWindow是应用数据层的流级流量控制窗口，与拥塞窗口
// 独立（spec.md §1之外的配套限制：对端通过MAX_STREAM_DATA授予的信用，
// 这里先给一个固定窗口，真正的信用帧不在本实现范围内）。
const streamFlowControlWindow protocol.ByteCount = 1048576

// defaultMaxActiveConnectionIDs限制一条连接同时持有的自发IDManager
// 条目数——对齐RFC 9000 §5.1.1 active_connection_id_limit的典型小值，
// 预留给未来的NEW_CONNECTION_ID/RETIRE_CONNECTION_ID帧（本实现尚未
// 编解码那两种帧，§1把完整的帮派管理排除在核心范围之外）。
const defaultMaxActiveConnectionIDs = 4

// ConnectionState 表示连接状态
type ConnectionState int

const (
	// StateInitial 初始状态
	StateInitial ConnectionState = iota
	// StateHandshaking 握手中
	StateHandshaking
	// StateEstablished 已建立
	StateEstablished
	// StateClosed 已关闭
	StateClosed
)

// Connection 表示一个QUIC连接。
type Connection struct {
	state      ConnectionState
	stateMutex sync.RWMutex

	destConnID protocol.ConnectionID
	srcConnID  protocol.ConnectionID

	remoteAddr *net.UDPAddr
	conn       *net.UDPConn

	secrets     *secrets.ConnectionSecrets
	cryptoSetup *crypto.CryptoSetup
	controller  *congestion.Controller
	idManager   *IDManager
	log         logging.Logger

	largestAckedSent protocol.PacketNumber // 对端确认过的、我方发出的最大包号
	packetNumberMux  sync.Mutex
	nextPacketNumber protocol.PacketNumber

	streamFlowMux       sync.Mutex
	streamBytesInFlight protocol.ByteCount
}

// GetDestConnID 返回目标连接ID
func (c *Connection) GetDestConnID() protocol.ConnectionID {
	return c.destConnID
}

// GetSrcConnID 返回源连接ID
func (c *Connection) GetSrcConnID() protocol.ConnectionID {
	return c.srcConnID
}

// NewConnection 创建新的QUIC连接，停留在StateInitial，没有安装任何
// 密钥，直到调用方通过InstallSecrets补上（spec.md §3 "installed by
// the handshake layer before any protected packet is produced"）——
// 构造和密钥安装分两步，是因为真实部署里目标连接ID往往要等到第一个
// 数据报到达才知道，而srcConnID和UDP端点在那之前就已经确定。
// idManager以srcConnID为第一个活跃ID起步，供未来的连接迁移/
// NEW_CONNECTION_ID流程（IssueConnectionID/RetireConnectionID）使用。
func NewConnection(destConnID, srcConnID protocol.ConnectionID, remoteAddr *net.UDPAddr, conn *net.UDPConn) *Connection {
	gen, _ := NewIDGenerator(DefaultIDLength) // DefaultIDLength恒落在合法区间内
	idManager := NewIDManager(gen, defaultMaxActiveConnectionIDs)
	_ = idManager.AddConnectionID(srcConnID)

	return &Connection{
		state:            StateInitial,
		destConnID:       destConnID,
		srcConnID:        srcConnID,
		remoteAddr:       remoteAddr,
		conn:             conn,
		cryptoSetup:      crypto.NewCryptoSetup(),
		controller:       congestion.New(nil, nil),
		idManager:        idManager,
		log:              logging.NoOp(),
		largestAckedSent: protocol.InvalidPacketNumber,
	}
}

// InstallSecrets安装握手层派生出的密钥（例如internal/handshake的
// DeriveInitialSecrets结果）——由client.go/server.go在NewConnection之后
// 立即调用一次。
func (c *Connection) InstallSecrets(cs *secrets.ConnectionSecrets) {
	c.secrets = cs
}

// IssueConnectionID生成一个新的连接ID并登记进idManager的活跃集合，
// 供未来签发NEW_CONNECTION_ID帧时使用；超过defaultMaxActiveConnectionIDs
// 时返回ConfigurationError。
func (c *Connection) IssueConnectionID() (protocol.ConnectionID, error) {
	id, err := c.idManager.generator.GenerateConnectionID()
	if err != nil {
		return nil, err
	}
	if err := c.idManager.AddConnectionID(id); err != nil {
		return nil, err
	}
	return id, nil
}

// RetireConnectionID把一个连接ID从活跃集合移除，对应对端发出
// RETIRE_CONNECTION_ID后的本地记账。
func (c *Connection) RetireConnectionID(id protocol.ConnectionID) {
	c.idManager.RemoveConnectionID(id)
}

// ActiveConnectionIDs返回当前登记在idManager里的全部连接ID。
func (c *Connection) ActiveConnectionIDs() []protocol.ConnectionID {
	return c.idManager.GetActiveIDs()
}

// SetLogger替换默认的空日志实现。
func (c *Connection) SetLogger(log logging.Logger) {
	if log != nil {
		c.log = log
	}
}

// GetState 获取连接状态
func (c *Connection) GetState() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

// setState 设置连接状态
func (c *Connection) setState(state ConnectionState) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	c.state = state
}

// nextOutboundPacketNumber分配下一个单调递增的发送包号。
func (c *Connection) nextOutboundPacketNumber() protocol.PacketNumber {
	c.packetNumberMux.Lock()
	defer c.packetNumberMux.Unlock()
	pn := c.nextPacketNumber
	c.nextPacketNumber++
	return pn
}

// Controller暴露底层拥塞控制器，供发送方在入队前查询CanSend。
func (c *Connection) Controller() *congestion.Controller {
	return c.controller
}

// BuildInitialPacket把握手字节包成CRYPTO帧，交给编解码核心构建一个
// 完整的Initial数据报（spec.md §4.1 Build contract）。
func (c *Connection) BuildInitialPacket(cryptoData []byte, token []byte) ([]byte, error) {
	if c.secrets == nil {
		return nil, qerr.Configuration("secrets", nil)
	}
	// 在真正编码之前先问拥塞控制器：Initial包会被填充到至少1200字节
	// （= kMaxDatagramSize；算上Length字段本身，实际数据报会比它多出一两个
	// 字节），用kMaxDatagramSize做放行判断，和CanSendApplicationData一样
	// 把controller.CanSend当闸门。
	if !c.controller.CanSend(congestion.KMaxDatagramSize) {
		return nil, qerr.CongestionBlocked("cwnd", nil)
	}
	pn := c.nextOutboundPacketNumber()
	data, err := packet.Build(packet.BuildInput{
		Header: packet.Header{
			Type:         protocol.PacketTypeInitial,
			Version:      protocol.SupportedVersion,
			DestConnID:   c.destConnID,
			SrcConnID:    c.srcConnID,
			PacketNumber: pn,
			Token:        token,
		},
		LargestAcked: c.largestAckedSent,
		Payload:      frame.EncodeCryptoFrame(0, cryptoData),
		Secrets:      c.secrets.ClientSecrets,
		Log:          c.log,
	})
	if err != nil {
		return nil, err
	}
	c.controller.OnPacketSent(congestion.PacketInfo{
		PacketNumber: pn,
		TimeSent:     time.Now(),
		Size:         protocol.ByteCount(len(data)),
		InFlight:     true,
	})
	return data, nil
}

// BuildHandshakePacket镜像BuildInitialPacket，用于Handshake级别的
// CRYPTO数据。
func (c *Connection) BuildHandshakePacket(cryptoData []byte) ([]byte, error) {
	if c.secrets == nil {
		return nil, qerr.Configuration("secrets", nil)
	}
	if !c.controller.CanSend(congestion.KMaxDatagramSize) {
		return nil, qerr.CongestionBlocked("cwnd", nil)
	}
	pn := c.nextOutboundPacketNumber()
	data, err := packet.Build(packet.BuildInput{
		Header: packet.Header{
			Type:         protocol.PacketTypeHandshake,
			Version:      protocol.SupportedVersion,
			DestConnID:   c.destConnID,
			SrcConnID:    c.srcConnID,
			PacketNumber: pn,
		},
		LargestAcked: c.largestAckedSent,
		Payload:      frame.EncodeCryptoFrame(0, cryptoData),
		Secrets:      c.secrets.ClientSecrets,
		Log:          c.log,
	})
	if err != nil {
		return nil, err
	}
	c.controller.OnPacketSent(congestion.PacketInfo{
		PacketNumber: pn,
		TimeSent:     time.Now(),
		Size:         protocol.ByteCount(len(data)),
		InFlight:     true,
	})
	return data, nil
}

// HandleDatagram解析一个收到的数据报，用c.secrets.ServerSecrets打开AEAD
// （客户端一侧即服务端方向密钥；server包安装密钥时已把两个方向对调），把
// CRYPTO帧交给对应级别的TLS状态持有者，并驱动连接状态机前进
// （spec.md §4.1 Parse contract; §6 "TLS state holder"）。
func (c *Connection) HandleDatagram(data []byte) (*packet.Header, error) {
	if c.secrets == nil {
		return nil, qerr.Configuration("secrets", nil)
	}

	// 首字节里可见的2比特类型标记不受包头保护覆盖，用它先选出正确级别
	// 的sink，真正的字段解析仍整体交给packet.Parse。
	level := crypto.LevelInitial
	if len(data) > 0 && (data[0]>>2)&0x3 == 2 {
		level = crypto.LevelHandshake
	}

	h, err := packet.Parse(packet.ParseInput{
		Data:         data,
		Secrets:      c.secrets.ServerSecrets,
		LargestAcked: c.largestAckedSent,
		Sink:         c.cryptoSetup.ForLevel(level),
		Log:          c.log,
	})
	if err != nil {
		return nil, err
	}

	switch h.Type {
	case protocol.PacketTypeInitial:
		if c.GetState() == StateInitial {
			c.setState(StateHandshaking)
		}
	case protocol.PacketTypeHandshake:
		if c.cryptoSetup.HandshakeComplete() {
			c.setState(StateEstablished)
		}
	}

	return h, nil
}

// CompleteHandshake标记握手完成并把连接状态推进到已建立——由外部的
// 握手层在TLS状态机判定完成时调用。
func (c *Connection) CompleteHandshake() {
	c.cryptoSetup.SetHandshakeComplete()
	c.setState(StateEstablished)
}

// CanSendApplicationData报告在拥塞窗口和流级流量控制窗口的联合约束下，
// 是否还能发送给定大小的应用数据（拥塞控制是核心范围内的闸门，流级
// 窗口是连接层在核心之外维护的配套限制）。
func (c *Connection) CanSendApplicationData(size protocol.ByteCount) bool {
	c.streamFlowMux.Lock()
	withinStreamWindow := c.streamBytesInFlight+size <= streamFlowControlWindow
	c.streamFlowMux.Unlock()
	return withinStreamWindow && c.controller.CanSend(size)
}

// OnStreamDataSent记录一段刚发出的应用数据，计入流级流量控制窗口。
func (c *Connection) OnStreamDataSent(size protocol.ByteCount) {
	c.streamFlowMux.Lock()
	defer c.streamFlowMux.Unlock()
	c.streamBytesInFlight += size
}

// OnStreamDataAcked为一段被对端确认的应用数据腾出流级窗口空间。
func (c *Connection) OnStreamDataAcked(size protocol.ByteCount) {
	c.streamFlowMux.Lock()
	defer c.streamFlowMux.Unlock()
	if size > c.streamBytesInFlight {
		c.streamBytesInFlight = 0
		return
	}
	c.streamBytesInFlight -= size
}

// Close 关闭连接
func (c *Connection) Close() error {
	c.setState(StateClosed)
	return nil
}
