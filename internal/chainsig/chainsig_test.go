package chainsig

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func newTestSigner(t *testing.T) (*Signer, string) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey).Hex()
	return &Signer{priv: priv}, addr
}

func TestSignAndVerifyHeadCID(t *testing.T) {
	signer, addr := newTestSigner(t)
	head := []byte("fake cid bytes for head")

	sig, err := signer.SignHeadCID(head)
	if err != nil {
		t.Fatalf("SignHeadCID: %v", err)
	}
	ok, err := VerifyHeadCID(head, sig, addr)
	if err != nil {
		t.Fatalf("VerifyHeadCID: %v", err)
	}
	if !ok {
		t.Error("expected signature to verify against signer's address")
	}
}

func TestVerifyHeadCID_WrongAddressFails(t *testing.T) {
	signer, _ := newTestSigner(t)
	_, otherAddr := newTestSigner(t)
	head := []byte("another head")

	sig, err := signer.SignHeadCID(head)
	if err != nil {
		t.Fatalf("SignHeadCID: %v", err)
	}
	ok, err := VerifyHeadCID(head, sig, otherAddr)
	if err != nil {
		t.Fatalf("VerifyHeadCID: %v", err)
	}
	if ok {
		t.Error("expected verification against an unrelated address to fail")
	}
}

func TestVerifyHeadCID_TamperedBodyFails(t *testing.T) {
	signer, addr := newTestSigner(t)
	head := []byte("original head bytes")
	sig, err := signer.SignHeadCID(head)
	if err != nil {
		t.Fatalf("SignHeadCID: %v", err)
	}
	ok, err := VerifyHeadCID([]byte("tampered head bytes"), sig, addr)
	if err != nil {
		t.Fatalf("VerifyHeadCID: %v", err)
	}
	if ok {
		t.Error("expected tampered head bytes to fail verification")
	}
}
