// Package congestion 实现spec.md §4.2描述的NewReno式拥塞控制器：
// 维护拥塞窗口、慢启动阈值和在途字节数，对发送方暴露一个放行谓词，
// 对确认/丢包事件做出反应。
//
// 教师（luzhuzai-LQUIC）没有拥塞控制层；算法和常量取自
// NewRenoCongestionController.java，状态字段名对齐其父类
// AbstractCongestionController未展示的部分（bytesInFlight/congestionWindow）。
package congestion

import (
	"strconv"
	"sync"
	"time"

	"quictransport/internal/logging"
	"quictransport/internal/protocol"
)

// 常量取自spec.md §4.2，与NewRenoCongestionController.java的字段注释一致
// （draft-ietf-quic-recovery-23 appendix B.1）。
const (
	// KMaxDatagramSize是一个数据报的假定大小，用作拥塞避免阶段的增量单位。
	KMaxDatagramSize protocol.ByteCount = 1200
	// KMinimumWindow是拥塞窗口允许收缩到的下限。
	KMinimumWindow protocol.ByteCount = 2 * KMaxDatagramSize
	// kLossReductionFactor是发生拥塞事件时窗口的收缩倍数（减半）。
	kLossReductionFactor protocol.ByteCount = 2
	// initialWindow是连接刚建立时的拥塞窗口，spec.md §9的开放问题选择
	// 10倍数据报大小。
	initialWindow protocol.ByteCount = 10 * KMaxDatagramSize
	// infiniteThreshold代表ssthresh的初始"无穷大"状态：任何真实cwnd都小于它，
	// 所以控制器永远处在慢启动模式直到第一次拥塞事件。
	infiniteThreshold protocol.ByteCount = 1<<63 - 1
)

// Mode是cwnd与ssthresh关系派生出的只读状态，不单独存储（spec.md §4.2）。
type Mode int

const (
	SlowStart Mode = iota
	CongestionAvoidance
)

func (m Mode) String() string {
	if m == SlowStart {
		return "SlowStart"
	}
	return "CongestionAvoidance"
}

// Clock是控制器对"当前时间"的唯一依赖，测试用固定/可推进的实现替换
// 真实时钟（spec.md §9 "Tests inject a clock"）。
type Clock interface {
	Now() time.Time
}

// realClock用标准库time.Now()实现Clock，是生产环境下的默认实现。
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// PacketInfo是发送方在包离开时产生、控制器在ack/loss时消费的记录
// （spec.md §3）。
type PacketInfo struct {
	PacketNumber protocol.PacketNumber
	TimeSent     time.Time
	Size         protocol.ByteCount
	InFlight     bool
}

// CongestionControllerState是控制器内部计数器的一份只读快照，供测试和
// 可观测性使用（spec.md §3）。
type CongestionControllerState struct {
	BytesInFlight protocol.ByteCount
	Cwnd          protocol.ByteCount
	Ssthresh      protocol.ByteCount
	RecoveryStart time.Time
}

// Controller是spec.md §4.2的NewReno控制器。所有状态变更在单一互斥锁下
// 发生（spec.md §5：bytes_in_flight/cwnd/ssthresh/recovery_start的变更必须
// 可线性化）。
type Controller struct {
	mu sync.Mutex

	bytesInFlight protocol.ByteCount
	cwnd          protocol.ByteCount
	ssthresh      protocol.ByteCount
	recoveryStart time.Time // 零值代表spec.md §4.2的"-∞"

	clock Clock
	log   logging.Logger
}

// New构造一个初始状态的控制器：cwnd=10*kMaxDatagramSize，ssthresh=无穷，
// recovery_start=-∞，bytes_in_flight=0（spec.md §4.2）。clock为nil时使用
// 真实时钟，log为nil时使用空实现。
func New(clock Clock, log logging.Logger) *Controller {
	if clock == nil {
		clock = realClock{}
	}
	if log == nil {
		log = logging.NoOp()
	}
	return &Controller{
		cwnd:     initialWindow,
		ssthresh: infiniteThreshold,
		clock:    clock,
		log:      log,
	}
}

// CanSend报告再发送一个given大小的包是否仍在拥塞窗口内（spec.md §4.2）。
func (c *Controller) CanSend(nextPacketSize protocol.ByteCount) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesInFlight+nextPacketSize <= c.cwnd
}

// OnPacketSent记录一个刚发出且计入在途的包（spec.md §4.2）。
func (c *Controller) OnPacketSent(info PacketInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info.InFlight {
		c.bytesInFlight += info.Size
	}
	c.log.CC("packet sent, inflight: " + itoa(c.bytesInFlight))
}

// OnPacketsAcked消费一批确认：先扣减在途字节，再对recovery_start之后
// 发出的包按慢启动/拥塞避免规则增长窗口（spec.md §4.2，按输入顺序处理，
// 满足§5的顺序保证）。
func (c *Controller) OnPacketsAcked(acked []PacketInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range acked {
		c.bytesInFlight = subtractFloored(c.bytesInFlight, p.Size)
	}

	previousCwnd := c.cwnd
	for _, p := range acked {
		if !p.TimeSent.After(c.recoveryStart) {
			continue // 恢复开始之前发出的包的确认不得增长窗口
		}
		if c.cwnd < c.ssthresh {
			c.cwnd += p.Size
		} else {
			c.cwnd += protocol.ByteCount(uint64(KMaxDatagramSize) * uint64(p.Size) / uint64(c.cwnd))
		}
	}
	if c.cwnd != previousCwnd {
		c.log.CC("Cwnd(+): " + itoa(c.cwnd) + " (" + c.modeLocked().String() + "); inflight: " + itoa(c.bytesInFlight))
	}
}

// OnPacketsLost消费一批丢包：扣减在途字节，并用其中包号最大者的
// time_sent触发一次拥塞事件（spec.md §4.2）。
func (c *Controller) OnPacketsLost(lost []PacketInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range lost {
		c.bytesInFlight = subtractFloored(c.bytesInFlight, p.Size)
	}

	if len(lost) == 0 {
		return
	}
	largest := lost[0]
	for _, p := range lost[1:] {
		if p.PacketNumber > largest.PacketNumber {
			largest = p
		}
	}
	c.fireCongestionEventLocked(largest.TimeSent)
}

// fireCongestionEventLocked要求已持有c.mu。只有t（触发事件的丢包的
// time_sent）晚于当前recovery_start时才生效——这是"同一恢复期内第二次
// 丢包被忽略"的全部逻辑（spec.md §4.2, S4）。
func (c *Controller) fireCongestionEventLocked(t time.Time) {
	if !t.After(c.recoveryStart) {
		return
	}
	c.recoveryStart = c.clock.Now()
	c.cwnd /= kLossReductionFactor
	if c.cwnd < KMinimumWindow {
		c.cwnd = KMinimumWindow
	}
	c.ssthresh = c.cwnd
	c.log.CC("Cwnd(-): " + itoa(c.cwnd) + "; inflight: " + itoa(c.bytesInFlight))
}

// Mode派生当前拥塞状态，不单独存储（spec.md §4.2）。
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modeLocked()
}

func (c *Controller) modeLocked() Mode {
	if c.cwnd < c.ssthresh {
		return SlowStart
	}
	return CongestionAvoidance
}

// State返回内部计数器的一份快照，便于测试断言和可观测性导出。
func (c *Controller) State() CongestionControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CongestionControllerState{
		BytesInFlight: c.bytesInFlight,
		Cwnd:          c.cwnd,
		Ssthresh:      c.ssthresh,
		RecoveryStart: c.recoveryStart,
	}
}

// subtractFloored做c-size，但不允许结果降到0以下——spec.md §8性质5
// 要求bytes_in_flight永不为负，哪怕调用方传入了不一致的记录。
func subtractFloored(current, size protocol.ByteCount) protocol.ByteCount {
	if size > current {
		return 0
	}
	return current - size
}

func itoa(b protocol.ByteCount) string {
	return strconv.FormatUint(uint64(b), 10)
}
