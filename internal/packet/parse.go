package packet

import (
	"encoding/binary"

	"quictransport/internal/frame"
	"quictransport/internal/logging"
	"quictransport/internal/protocol"
	"quictransport/internal/qerr"
	"quictransport/internal/secrets"
)

// ParseInput收集解析一个数据报所需的全部输入（spec.md §4.1
// "Parse contract"）。
type ParseInput struct {
	Data []byte
	// Secrets是服务端方向的密钥，Parse只读借用。
	Secrets *secrets.DirectionSecrets
	// LargestAcked是重建完整包号时使用的参照（spec.md §9 open question）。
	LargestAcked protocol.PacketNumber
	// Sink接收解析出的帧载荷，用于分发CRYPTO帧等（spec.md §4.1 Frame dispatch）。
	Sink frame.Sink
	Log  logging.Logger
}

// Parse按spec.md §4.1镜像build的顺序解析一个数据报：先读不受保护的
// 字段（首字节类型位、版本号、连接ID、子类型附加字段、Length），再用
// 密文采样剥离包头保护，恢复真实首字节和包号，最后AEAD打开并把明文
// 交给帧分发器。
func Parse(in ParseInput) (*Header, error) {
	if in.Log == nil {
		in.Log = logging.NoOp()
	}
	data := in.Data
	if len(data) < 7 {
		return nil, qerr.Protocol("datagram_length", len(data))
	}
	if in.Secrets == nil {
		return nil, qerr.Configuration("secrets", nil)
	}

	firstByteRaw := data[0]
	marker := (firstByteRaw >> 2) & 0x3
	pType, v, err := variantByMarker(marker)
	if err != nil {
		return nil, err
	}
	if err := checkFirstByte(firstByteRaw, v); err != nil {
		return nil, err
	}

	offset := 1

	version := protocol.Version(binary.BigEndian.Uint32(data[offset:]))
	offset += 4
	if version != protocol.SupportedVersion {
		return nil, qerr.Protocol("version", version)
	}

	if offset >= len(data) {
		return nil, qerr.Protocol("dcil_scil", nil)
	}
	dcilScil := data[offset]
	offset++
	dstLen := int(dcilScil>>4) + protocol.MinConnectionIDLen
	srcLen := int(dcilScil&0x0f) + protocol.MinConnectionIDLen

	if offset+dstLen > len(data) {
		return nil, qerr.Protocol("dest_conn_id", nil)
	}
	destConnID := protocol.ConnectionID(append([]byte{}, data[offset:offset+dstLen]...))
	offset += dstLen

	if offset+srcLen > len(data) {
		return nil, qerr.Protocol("src_conn_id", nil)
	}
	srcConnID := protocol.ConnectionID(append([]byte{}, data[offset:offset+srcLen]...))
	offset += srcLen

	h := &Header{Type: pType, Version: version, DestConnID: destConnID, SrcConnID: srcConnID}

	offset, err = v.parseAdditional(data, offset, h)
	if err != nil {
		return nil, err
	}

	length, n, err := protocol.DecodeVarInt(data[offset:])
	if err != nil {
		return nil, qerr.Wrap(qerr.KindProtocolError, err, "length", nil)
	}
	offset += n

	pnOffset := offset
	if pnOffset+int(length) > len(data) {
		return nil, qerr.Protocol("length", length)
	}

	sampleStart := pnOffset + 4
	if sampleStart+16 > len(data) {
		return nil, qerr.Protocol("sample_window", len(data)-pnOffset)
	}
	mask, err := in.Secrets.HeaderProtectionMask(data[sampleStart : sampleStart+16])
	if err != nil {
		return nil, err
	}

	unprotectedFirstByte := firstByteRaw ^ (mask[0] & 0x03)
	pnLen := int(unprotectedFirstByte&0x03) + 1

	if pnOffset+pnLen > len(data) {
		return nil, qerr.Protocol("packet_number", nil)
	}
	pnBytes := append([]byte{}, data[pnOffset:pnOffset+pnLen]...)
	for i := 0; i < pnLen; i++ {
		pnBytes[i] ^= mask[1+i]
	}

	var truncated protocol.PacketNumber
	for _, b := range pnBytes {
		truncated = truncated<<8 | protocol.PacketNumber(b)
	}
	h.PacketNumber = protocol.DecodePacketNumber(pnLen, in.LargestAcked, truncated)

	// AAD是包前缀直到并包含未受保护的包号。
	aad := append([]byte{}, data[:pnOffset]...)
	aad[0] = unprotectedFirstByte
	aad = append(aad, pnBytes...)

	ciphertextStart := pnOffset + pnLen
	ciphertextEnd := pnOffset + int(length)
	if ciphertextEnd > len(data) || ciphertextStart > ciphertextEnd {
		return nil, qerr.Protocol("ciphertext", nil)
	}
	ciphertext := data[ciphertextStart:ciphertextEnd]

	plaintext, err := in.Secrets.Decrypt(ciphertext, aad, h.PacketNumber)
	if err != nil {
		return nil, err
	}

	in.Log.Debug("decrypted payload", plaintext)

	if in.Sink != nil {
		if err := frame.Dispatch(plaintext, version, in.Sink); err != nil {
			return nil, err
		}
	}

	return h, nil
}
