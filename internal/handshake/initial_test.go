package handshake

import (
	"bytes"
	"testing"

	"quictransport/internal/protocol"
)

func TestDeriveInitialSecretsDeterministic(t *testing.T) {
	dcid := protocol.ConnectionID{1, 2, 3, 4, 5, 6, 7, 8}

	a, err := DeriveInitialSecrets(dcid)
	if err != nil {
		t.Fatalf("派生失败: %v", err)
	}
	b, err := DeriveInitialSecrets(dcid)
	if err != nil {
		t.Fatalf("派生失败: %v", err)
	}

	ciphertextA, err := a.ClientSecrets.Encrypt([]byte("hi"), []byte("aad"), 0)
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	ciphertextB, err := b.ClientSecrets.Encrypt([]byte("hi"), []byte("aad"), 0)
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	if !bytes.Equal(ciphertextA, ciphertextB) {
		t.Error("同一DCID应该派生出同样的密钥")
	}
}

func TestDeriveInitialSecretsDiffersByDCID(t *testing.T) {
	a, err := DeriveInitialSecrets(protocol.ConnectionID{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatalf("派生失败: %v", err)
	}
	b, err := DeriveInitialSecrets(protocol.ConnectionID{8, 7, 6, 5, 4, 3, 2, 1})
	if err != nil {
		t.Fatalf("派生失败: %v", err)
	}

	ciphertextA, err := a.ClientSecrets.Encrypt([]byte("hi"), []byte("aad"), 0)
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	ciphertextB, err := b.ClientSecrets.Encrypt([]byte("hi"), []byte("aad"), 0)
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	if bytes.Equal(ciphertextA, ciphertextB) {
		t.Error("不同DCID应该派生出不同的密钥")
	}
}
