// Package connection 实现QUIC连接管理相关功能
package connection

import (
	"crypto/rand"

	"quictransport/internal/protocol"
	"quictransport/internal/qerr"
)

// DefaultIDLength是新连接ID生成时使用的默认长度，落在
// protocol.ConnectionID允许的[3,18]区间内（spec.md §3）。
const DefaultIDLength = 8

// IDGenerator 用于生成连接ID
type IDGenerator struct {
	length int
}

// NewIDGenerator 创建一个新的连接ID生成器；length必须落在
// [protocol.MinConnectionIDLen, protocol.MaxConnectionIDLen]区间内。
func NewIDGenerator(length int) (*IDGenerator, error) {
	probe := protocol.ConnectionID(make([]byte, length))
	if err := probe.Validate(); err != nil {
		return nil, qerr.Wrap(qerr.KindConfigurationError, err, "id_length", length)
	}
	return &IDGenerator{length: length}, nil
}

// GenerateConnectionID 生成一个新的连接ID
func (g *IDGenerator) GenerateConnectionID() (protocol.ConnectionID, error) {
	id := make([]byte, g.length)
	if _, err := rand.Read(id); err != nil {
		return nil, qerr.Wrap(qerr.KindConfigurationError, err, "conn_id", nil)
	}
	return protocol.ConnectionID(id), nil
}

// IDManager 管理连接ID的生命周期。Connection在构造时用它登记自己的
// srcConnID，之后通过IssueConnectionID/RetireConnectionID/
// ActiveConnectionIDs这三个方法驱动它——本实现还没有编解码
// NEW_CONNECTION_ID/RETIRE_CONNECTION_ID帧，所以目前只有本地记账，
// 没有把新ID真的通知给对端。
type IDManager struct {
	activeIDs    map[string]protocol.ConnectionID
	generator    *IDGenerator
	maxActiveIDs int
}

// NewIDManager 创建一个新的连接ID管理器
func NewIDManager(generator *IDGenerator, maxActiveIDs int) *IDManager {
	return &IDManager{
		activeIDs:    make(map[string]protocol.ConnectionID),
		generator:    generator,
		maxActiveIDs: maxActiveIDs,
	}
}

// AddConnectionID 添加一个新的连接ID
func (m *IDManager) AddConnectionID(id protocol.ConnectionID) error {
	if err := id.Validate(); err != nil {
		return qerr.Wrap(qerr.KindConfigurationError, err, "conn_id", id)
	}
	if len(m.activeIDs) >= m.maxActiveIDs {
		return qerr.Configuration("active_id_count", len(m.activeIDs))
	}
	m.activeIDs[string(id)] = id
	return nil
}

// RemoveConnectionID 移除一个连接ID
func (m *IDManager) RemoveConnectionID(id protocol.ConnectionID) {
	delete(m.activeIDs, string(id))
}

// GetActiveIDs 获取所有活跃的连接ID
func (m *IDManager) GetActiveIDs() []protocol.ConnectionID {
	ids := make([]protocol.ConnectionID, 0, len(m.activeIDs))
	for _, id := range m.activeIDs {
		ids = append(ids, id)
	}
	return ids
}
