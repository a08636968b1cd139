package wallet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func testSeed(start byte) []byte {
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = start + byte(i)
	}
	return seed
}

func TestSignVerify_Schemes(t *testing.T) {
	for _, scheme := range []string{SchemeEd25519, SchemeDilithium3} {
		t.Run(scheme, func(t *testing.T) {
			w, err := FromSeed(scheme, testSeed(1))
			if err != nil {
				t.Fatalf("FromSeed: %v", err)
			}
			if !strings.HasPrefix(string(w.Identity()), scheme+":") {
				t.Fatalf("identity %q lacks scheme prefix", w.Identity())
			}
			if err := w.Identity().Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}

			msg := []byte("append bafk... to gallery")
			sig, err := w.Sign(msg)
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			if err := Verify(w.Identity(), msg, sig); err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if err := Verify(w.Identity(), []byte("something else"), sig); !errors.Is(err, ErrBadSignature) {
				t.Fatalf("expected ErrBadSignature, got %v", err)
			}
		})
	}
}

func TestFromSeed_Deterministic(t *testing.T) {
	a, _ := FromSeed(SchemeEd25519, testSeed(7))
	b, _ := FromSeed(SchemeEd25519, testSeed(7))
	c, _ := FromSeed(SchemeEd25519, testSeed(8))
	if a.Identity() != b.Identity() {
		t.Fatalf("same seed gave different identities")
	}
	if a.Identity() == c.Identity() {
		t.Fatalf("different seeds gave the same identity")
	}
	if _, err := FromSeed("rsa", testSeed(0)); err == nil {
		t.Fatalf("expected unknown scheme error")
	}
	if _, err := FromSeed(SchemeEd25519, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short seed error")
	}
}

func TestIdentityParse_Rejects(t *testing.T) {
	for _, id := range []Identity{"", "ed25519", "ed25519:", "ed25519:!!!", "ed25519:AAAA", "rsa:AAAA"} {
		if err := id.Validate(); !errors.Is(err, ErrBadIdentity) {
			t.Fatalf("%q: expected ErrBadIdentity, got %v", id, err)
		}
	}
}

func TestWithApproval(t *testing.T) {
	inner, _ := FromSeed(SchemeEd25519, testSeed(3))
	var asked []string
	approve := true
	w := WithApproval(inner, func(summary string) bool {
		asked = append(asked, summary)
		return approve
	}, func(msg []byte) string { return "sign " + string(msg) })

	if w.Identity() != inner.Identity() {
		t.Fatalf("wrapper changed identity")
	}
	sig, err := w.Sign([]byte("x"))
	if err != nil || len(sig) == 0 {
		t.Fatalf("approved Sign: %v", err)
	}

	approve = false
	if _, err := w.Sign([]byte("y")); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if len(asked) != 2 || asked[1] != "sign y" {
		t.Fatalf("unexpected approval prompts: %v", asked)
	}
}

func TestKeyStore_GenerateLoadList(t *testing.T) {
	ks, err := CreateKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("CreateKeyStore: %v", err)
	}

	owner, _, err := ks.Generate("owner", SchemeEd25519, &deterministicReader{})
	if err != nil {
		t.Fatalf("Generate owner: %v", err)
	}
	acct, _, err := ks.Generate("account", SchemeDilithium3, &deterministicReader{b: 100})
	if err != nil {
		t.Fatalf("Generate account: %v", err)
	}
	if _, _, err := ks.Generate("owner", SchemeEd25519, nil); !errors.Is(err, ErrKeyExists) {
		t.Fatalf("expected ErrKeyExists, got %v", err)
	}

	loaded, err := ks.Load("owner")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Identity() != owner.Identity() {
		t.Fatalf("loaded identity differs")
	}

	entries, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "account" || entries[1].Name != "owner" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Scheme != SchemeDilithium3 || entries[0].Identity != acct.Identity() {
		t.Fatalf("unexpected account entry: %+v", entries[0])
	}
}

func TestKeyStore_RejectsBadNames(t *testing.T) {
	ks := &KeyStore{Directory: t.TempDir()}
	for _, name := range []string{"", "../x", "a b", "a/b"} {
		if _, _, err := ks.Init(name, SchemeEd25519, testSeed(0), false); err == nil {
			t.Fatalf("%q: expected name error", name)
		}
	}
}

func TestParseSeedHex(t *testing.T) {
	seed := testSeed(0x10)
	got, err := ParseSeedHex("  0x" + hex.EncodeToString(seed) + "\n")
	if err != nil {
		t.Fatalf("ParseSeedHex: %v", err)
	}
	if !bytes.Equal(got, seed) {
		t.Fatalf("seed mismatch")
	}
	if _, err := ParseSeedHex("abcd"); err == nil {
		t.Fatalf("expected length error")
	}
}
