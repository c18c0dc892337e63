package packet

import (
	"encoding/binary"

	"quictransport/internal/logging"
	"quictransport/internal/protocol"
	"quictransport/internal/qerr"
	"quictransport/internal/secrets"
)

// BuildInput收集构建一个长包头数据报所需的全部输入（spec.md §4.1
// "Build contract"）。
type BuildInput struct {
	Header
	// LargestAcked用于决定包号编码长度；没有历史记录时传
	// protocol.InvalidPacketNumber。
	LargestAcked protocol.PacketNumber
	Payload      []byte
	// Secrets是客户端方向的密钥，Build只读借用（spec.md §3 Ownership）。
	Secrets *secrets.DirectionSecrets
	Log     logging.Logger
}

// Build按spec.md §4.1列出的严格顺序拼出一个数据报：首字节、版本号、
// DCIL/SCIL半字节、DCID、SCID、子类型附加字段、包号编码、Length字段、
// 包号字节、AEAD密封、包头保护。Initial包会被填充到至少1200字节；
// 所有类型都会被填充到足以安全采样包头保护掩码所需的最少字节数。
func Build(in BuildInput) ([]byte, error) {
	if in.Log == nil {
		in.Log = logging.NoOp()
	}
	if err := in.DestConnID.Validate(); err != nil {
		return nil, qerr.Wrap(qerr.KindConfigurationError, err, "dest_conn_id", in.DestConnID)
	}
	if err := in.SrcConnID.Validate(); err != nil {
		return nil, qerr.Wrap(qerr.KindConfigurationError, err, "src_conn_id", in.SrcConnID)
	}
	if in.Secrets == nil {
		return nil, qerr.Configuration("secrets", nil)
	}

	v, err := variantFor(in.Type)
	if err != nil {
		return nil, err
	}

	pnLen := protocol.EncodedPacketNumberLen(in.PacketNumber, in.LargestAcked)

	buf := make([]byte, 0, MaxDatagramSize)

	// (1) 首字节
	buf = append(buf, firstByte(v, pnLen))

	// (2) 版本号，4字节大端
	var versionBytes [4]byte
	binary.BigEndian.PutUint32(versionBytes[:], uint32(in.Version))
	buf = append(buf, versionBytes[:]...)

	// (3) DCIL/SCIL半字节
	buf = append(buf, in.DestConnID.LengthNibble()<<4|in.SrcConnID.LengthNibble())

	// (4) DCID, 然后SCID
	buf = append(buf, in.DestConnID...)
	buf = append(buf, in.SrcConnID...)

	// (5) 子类型附加字段
	buf, err = v.writeAdditional(buf, &in.Header)
	if err != nil {
		return nil, err
	}

	// (6) 包号编码为1-4字节（长度已在上面决定）
	pnBytes := protocol.EncodePacketNumber(in.PacketNumber, pnLen)

	paddingLen := computePadding(in.Type, len(buf), pnLen, len(in.Payload))

	// (7) Length字段 = pn长度 + payload长度 + 填充长度 + AEAD标签(16)
	packetLength := pnLen + len(in.Payload) + paddingLen + aeadTagLen

	// (8) 把Length写成QUIC变长整数
	lengthBytes, err := protocol.EncodeVarInt(uint64(packetLength))
	if err != nil {
		return nil, qerr.Wrap(qerr.KindConfigurationError, err, "length", packetLength)
	}
	buf = append(buf, lengthBytes...)

	// (9) 记住包号在buffer中的位置，供后面施加保护时回填
	pnOffset := len(buf)

	// (10) 写入包号字节
	buf = append(buf, pnBytes...)

	// (11) 当前buffer前缀就是AEAD关联数据（AAD）
	aad := append([]byte{}, buf...)

	// (12) 构造填充后的明文 = payload ∥ 零填充
	paddedPlaintext := make([]byte, len(in.Payload)+paddingLen)
	copy(paddedPlaintext, in.Payload)

	// (13) 密封：ciphertext = Seal(key, nonce=iv⊕pn, aad, plaintext)
	ciphertext, err := in.Secrets.Encrypt(paddedPlaintext, aad, in.PacketNumber)
	if err != nil {
		return nil, err
	}

	// (14) 追加密文
	buf = append(buf, ciphertext...)

	if len(buf) > MaxDatagramSize {
		return nil, qerr.Configuration("datagram_size", len(buf))
	}

	// (15) 从密文采样推导包头保护掩码，异或进首字节低位和包号字节
	sampleStart := pnOffset + 4
	if sampleStart+16 > len(buf) {
		return nil, qerr.Configuration("sample_window", len(buf)-pnOffset)
	}
	mask, err := in.Secrets.HeaderProtectionMask(buf[sampleStart : sampleStart+16])
	if err != nil {
		return nil, err
	}
	buf[0] ^= mask[0] & 0x03
	for i := 0; i < pnLen; i++ {
		buf[pnOffset+i] ^= mask[1+i]
	}

	in.Log.Debug("built packet", buf)
	if in.Type == protocol.PacketTypeInitial {
		in.Log.Debug("initial datagram size", nil)
	}

	return buf, nil
}

// computePadding算出两条规则里较大的那个填充量：Initial包必须凑到
// 至少1200字节（spec.md §6），而所有类型都必须留出足够字节供包头保护
// 采样（从包号位置后4字节起取16字节样本，见minSampleWindow）。
func computePadding(t protocol.PacketType, headerLen, pnLen, payloadLen int) int {
	padding := 0

	if t == protocol.PacketTypeInitial {
		estimated := headerLen + pnLen + payloadLen + aeadTagLen
		if estimated < MinInitialSize {
			padding = MinInitialSize - estimated
		}
	}

	packetLength := pnLen + payloadLen + padding + aeadTagLen
	if packetLength < minSampleWindow {
		padding += minSampleWindow - packetLength
	}

	return padding
}
