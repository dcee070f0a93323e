package keystore

import (
	"testing"

	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/herumi/bls-eth-go-binary/bls"
)

func randSK(t *testing.T) bls.SecretKey {
	t.Helper()
	var sk bls.SecretKey
	sk.SetByCSPRNG()
	return sk
}

func skBytes(sk bls.SecretKey) []byte {
	return sk.Serialize()
}

func pkOf(sk bls.SecretKey) protocol.G1 {
	var pk protocol.G1
	copy(pk[:], sk.GetPublicKey().Serialize())
	return pk
}

func TestNewRequiresAtLeastOneFarmerKey(t *testing.T) {
	if _, err := New(nil, nil); err != ErrNoKeys {
		t.Fatalf("New with no farmer keys = %v, want ErrNoKeys", err)
	}
}

func TestNewAndFarmerPublicKeys(t *testing.T) {
	farmerSK := randSK(t)
	poolSK := randSK(t)

	ks, err := New([][]byte{skBytes(farmerSK)}, [][]byte{skBytes(poolSK)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pks := ks.FarmerPublicKeys()
	if len(pks) != 1 {
		t.Fatalf("FarmerPublicKeys returned %d keys, want 1", len(pks))
	}
	if pks[0] != pkOf(farmerSK) {
		t.Fatal("FarmerPublicKeys did not return the configured key")
	}

	poolPKs := ks.PoolPublicKeys()
	if len(poolPKs) != 1 || poolPKs[0] != pkOf(poolSK) {
		t.Fatal("PoolPublicKeys did not return the configured key")
	}
}

func TestFarmerSKsFor(t *testing.T) {
	farmerSK := randSK(t)
	otherSK := randSK(t)
	ks, err := New([][]byte{skBytes(farmerSK)}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := ks.FarmerSKsFor(pkOf(farmerSK))
	if len(got) != 1 {
		t.Fatalf("FarmerSKsFor matching key returned %d, want 1", len(got))
	}

	if got := ks.FarmerSKsFor(pkOf(otherSK)); len(got) != 0 {
		t.Fatalf("FarmerSKsFor unknown key returned %d, want 0", len(got))
	}
}

func TestPoolSKFor(t *testing.T) {
	farmerSK := randSK(t)
	poolSK := randSK(t)
	ks, err := New([][]byte{skBytes(farmerSK)}, [][]byte{skBytes(poolSK)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, ok := ks.PoolSKFor(pkOf(poolSK)); !ok {
		t.Fatal("PoolSKFor should find the configured pool key")
	}
	if _, ok := ks.PoolSKFor(pkOf(randSK(t))); ok {
		t.Fatal("PoolSKFor should miss an unconfigured pool key")
	}
}

func TestSignAndVerifyAggregate(t *testing.T) {
	sk := randSK(t)
	aggPK := pkOf(sk)
	msg := []byte("signage point hash")

	sig := Sign(sk, msg, aggPK)
	if !VerifyAggregate(aggPK, msg, sig) {
		t.Fatal("VerifyAggregate should accept a signature produced by Sign")
	}
	if VerifyAggregate(aggPK, []byte("different message"), sig) {
		t.Fatal("VerifyAggregate should reject a mismatched message")
	}
}

func TestAggregateSignatures(t *testing.T) {
	sk1 := randSK(t)
	sk2 := randSK(t)
	aggPK, err := AggregatePublicKeys(pkOf(sk1), pkOf(sk2))
	if err != nil {
		t.Fatalf("AggregatePublicKeys failed: %v", err)
	}

	msg := []byte("block phase message")
	share1 := Sign(sk1, msg, aggPK)
	share2 := Sign(sk2, msg, aggPK)

	aggSig, err := Aggregate(share1, share2)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if !VerifyAggregate(aggPK, msg, aggSig) {
		t.Fatal("VerifyAggregate should accept the aggregated signature over the aggregated key")
	}
}

func TestAggregateEmptyFails(t *testing.T) {
	if _, err := Aggregate(); err == nil {
		t.Fatal("Aggregate with no shares should fail")
	}
	if _, err := AggregatePublicKeys(); err == nil {
		t.Fatal("AggregatePublicKeys with no keys should fail")
	}
}

func TestPoolSign(t *testing.T) {
	sk := randSK(t)
	targetBytes := []byte("pool target payload")
	sig := PoolSign(sk, targetBytes)

	var s bls.Sign
	if err := s.Deserialize(sig[:]); err != nil {
		t.Fatalf("signature did not deserialize: %v", err)
	}
	if !s.VerifyByte(sk.GetPublicKey(), targetBytes) {
		t.Fatal("PoolSign's signature should verify directly against the public key and raw bytes")
	}
}
