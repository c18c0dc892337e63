// Package secrets 实现spec.md §3/§6描述的ConnectionSecrets：每个方向的
// AEAD密钥/IV/包头保护密钥，以及用它们进行Seal/Open和掩码推导的操作。
// 教师（luzhuzai-LQUIC/internal/crypto/crypto.go）用手写的HMAC循环拼出
// 一版HKDF；这里换成生态里真实存在、整个样本仓库都间接依赖的
// golang.org/x/crypto/hkdf与chacha20poly1305/chacha20。
package secrets

import (
	"crypto/cipher"
	"crypto/sha256"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"quictransport/internal/protocol"
	"quictransport/internal/qerr"
)

const (
	keyLen = chacha20poly1305.KeySize   // 32
	ivLen  = chacha20poly1305.NonceSize // 12
	hpLen  = chacha20.KeySize           // 32, header-protection用同一族密码
)

// DirectionSecrets 是单个方向（客户端发出或服务端发出）的全部密钥材料，
// 对编解码核心而言是不透明的，只通过下面的方法访问（spec.md §3）。
type DirectionSecrets struct {
	key   []byte
	iv    []byte
	hpKey []byte
	aead  cipher.AEAD
}

// NewDirectionSecrets 用三段独立的密钥材料构造一个方向的密钥集合。
func NewDirectionSecrets(key, iv, hpKey []byte) (*DirectionSecrets, error) {
	if len(key) != keyLen {
		return nil, qerr.Configuration("key", len(key))
	}
	if len(iv) != ivLen {
		return nil, qerr.Configuration("iv", len(iv))
	}
	if len(hpKey) != hpLen {
		return nil, qerr.Configuration("hpKey", len(hpKey))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindConfigurationError, err, "aead", nil)
	}
	return &DirectionSecrets{key: key, iv: iv, hpKey: hpKey, aead: aead}, nil
}

// nonce 把iv与包号按spec.md §6异或："Nonce = IV XOR left-padded packet number"。
func (d *DirectionSecrets) nonce(pn protocol.PacketNumber) []byte {
	n := make([]byte, len(d.iv))
	copy(n, d.iv)
	pnBytes := make([]byte, len(n))
	v := uint64(pn)
	for i := len(pnBytes) - 1; i >= 0 && v > 0; i-- {
		pnBytes[i] = byte(v)
		v >>= 8
	}
	for i := range n {
		n[i] ^= pnBytes[i]
	}
	return n
}

// Encrypt 对plaintext做AEAD密封，aad是关联数据（未加密但被认证的包头
// 前缀），返回的切片尾部带16字节的认证标签。
func (d *DirectionSecrets) Encrypt(plaintext, aad []byte, pn protocol.PacketNumber) ([]byte, error) {
	return d.aead.Seal(nil, d.nonce(pn), plaintext, aad), nil
}

// Decrypt 打开ciphertext，失败时返回AuthenticationError——按spec.md §7，
// 这类失败必须被视为可恢复错误，而不是协议错误。
func (d *DirectionSecrets) Decrypt(ciphertext, aad []byte, pn protocol.PacketNumber) ([]byte, error) {
	plaintext, err := d.aead.Open(nil, d.nonce(pn), ciphertext, aad)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindAuthenticationError, err, "aead_open", nil)
	}
	return plaintext, nil
}

// HeaderProtectionMask 从sample推导出用于掩蔽首字节低位和包号字节的掩码。
// 按RFC 9001 §5.4.4的ChaCha20构造：取样本的前4字节作为小端计数器，
// 后12字节作为nonce，取得的首5字节密钥流就是掩码。
func (d *DirectionSecrets) HeaderProtectionMask(sample []byte) ([]byte, error) {
	if len(sample) < 16 {
		return nil, qerr.Configuration("sample", len(sample))
	}
	counter := uint32(sample[0]) | uint32(sample[1])<<8 | uint32(sample[2])<<16 | uint32(sample[3])<<24
	nonce := sample[4:16]

	cipherStream, err := chacha20.NewUnauthenticatedCipher(d.hpKey, nonce)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindConfigurationError, err, "hp_cipher", nil)
	}
	cipherStream.SetCounter(counter)

	mask := make([]byte, 5)
	cipherStream.XORKeyStream(mask, mask)
	return mask, nil
}

// ConnectionSecrets 把客户端方向和服务端方向的密钥捆在一起，由连接层
// 在握手完成各级别密钥时安装，核心组件只读借用它（spec.md §3）。
type ConnectionSecrets struct {
	ClientSecrets *DirectionSecrets
	ServerSecrets *DirectionSecrets
}

// ExpandLabel实现TLS 1.3的HKDF-Expand-Label（RFC 8446 §7.1），
// 用真实的hkdf.Expand代替教师那版手写的HMAC计数器循环。导出给
// internal/handshake在派生Initial级别流量密钥时复用。
func ExpandLabel(secret, label, context []byte, length int) ([]byte, error) {
	return hkdfExpandLabel(sha256.New, secret, label, context, length)
}

func hkdfExpandLabel(hashFn func() hash.Hash, secret, label, context []byte, length int) ([]byte, error) {
	fullLabel := append([]byte("tls13 "), label...)

	hkdfLabel := make([]byte, 0, 2+1+len(fullLabel)+1+len(context))
	hkdfLabel = append(hkdfLabel, byte(length>>8), byte(length))
	hkdfLabel = append(hkdfLabel, byte(len(fullLabel)))
	hkdfLabel = append(hkdfLabel, fullLabel...)
	hkdfLabel = append(hkdfLabel, byte(len(context)))
	hkdfLabel = append(hkdfLabel, context...)

	out := make([]byte, length)
	reader := hkdf.Expand(hashFn, secret, hkdfLabel)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveDirectionSecrets 从单个方向的流量密钥secret派生出AEAD密钥、IV
// 和包头保护密钥，标签取自RFC 9001 §5.1（"quic key"/"quic iv"/"quic hp"）。
func DeriveDirectionSecrets(secret []byte) (*DirectionSecrets, error) {
	key, err := ExpandLabel(secret, []byte("quic key"), nil, keyLen)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindConfigurationError, err, "derive_key", nil)
	}
	iv, err := ExpandLabel(secret, []byte("quic iv"), nil, ivLen)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindConfigurationError, err, "derive_iv", nil)
	}
	hp, err := ExpandLabel(secret, []byte("quic hp"), nil, hpLen)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindConfigurationError, err, "derive_hp", nil)
	}
	return NewDirectionSecrets(key, iv, hp)
}
