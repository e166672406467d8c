package merkle_test

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/kadchain/blockchain/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// data uses the sha256 hashing algorithm for the merkle tree.
type data struct {
	x string
}

// Hash hashes the values using sha256.
func (d data) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(d.x))
	return h[:], nil
}

// Equals tests for equality of two pieces of data.
func (d data) Equals(other data) bool {
	return d.x == other.x
}

func values(n int) []data {
	out := make([]data, n)
	for i := range out {
		out[i] = data{x: fmt.Sprintf("tx-%d", i)}
	}
	return out
}

func pair(a, b []byte) []byte {
	h := sha256.New()
	h.Write(a)
	h.Write(b)
	return h.Sum(nil)
}

// =============================================================================

func Test_Root(t *testing.T) {
	d := values(3)
	h0, _ := d[0].Hash()
	h1, _ := d[1].Hash()
	h2, _ := d[2].Hash()

	tt := []struct {
		name string
		data []data
		root []byte
	}{
		{name: "single", data: d[:1], root: pair(h0, h0)},
		{name: "even", data: d[:2], root: pair(h0, h1)},
		{name: "odd", data: d[:3], root: pair(pair(h0, h1), pair(h2, h2))},
	}

	t.Log("Given the need to compute merkle roots.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				tree, err := merkle.NewTree(tst.data)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to create tree: %v", failed, testID, err)
				}

				if got := tree.RootHex(); got != fmt.Sprintf("0x%x", tst.root) {
					t.Logf("\t\tgot: %s", got)
					t.Logf("\t\texp: 0x%x", tst.root)
					t.Fatalf("\t%s\tTest %d:\tShould get the expected root.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected root.", success, testID)

				if got := len(tree.Values()); got != len(tst.data) {
					t.Fatalf("\t%s\tTest %d:\tShould get back %d values, got %d.", failed, testID, len(tst.data), got)
				}
				t.Logf("\t%s\tTest %d:\tShould get back the original values.", success, testID)
			}
			t.Run(tst.name, f)
		}
	}
}

func Test_Empty(t *testing.T) {
	if _, err := merkle.NewTree([]data{}); err == nil {
		t.Fatalf("\t%s\tShould not be able to create an empty tree.", failed)
	}
	t.Logf("\t%s\tShould not be able to create an empty tree.", success)
}

func Test_Proof(t *testing.T) {
	t.Log("Given the need to prove a value is in the tree.")
	{
		for _, n := range []int{1, 2, 5, 8, 13} {
			f := func(t *testing.T) {
				d := values(n)
				tree, err := merkle.NewTree(d)
				if err != nil {
					t.Fatalf("\t%s\tShould be able to create tree: %v", failed, err)
				}

				for _, v := range d {
					proof, order, err := tree.Proof(v)
					if err != nil {
						t.Fatalf("\t%s\tShould be able to get proof for %s: %v", failed, v.x, err)
					}

					ok, err := tree.VerifyProof(v, proof, order)
					if err != nil || !ok {
						t.Fatalf("\t%s\tShould be able to verify proof for %s: %v", failed, v.x, err)
					}
				}
				t.Logf("\t%s\tShould verify a proof for every value in a tree of %d.", success, n)

				proof, order, _ := tree.Proof(d[0])
				if ok, _ := tree.VerifyProof(data{x: "forged"}, proof, order); ok {
					t.Fatalf("\t%s\tShould reject a proof for a value not in the tree.", failed)
				}
				t.Logf("\t%s\tShould reject a proof for a value not in the tree.", success)
			}
			t.Run(fmt.Sprintf("values-%d", n), f)
		}

		tree, _ := merkle.NewTree(values(4))
		if _, _, err := tree.Proof(data{x: "missing"}); err == nil {
			t.Fatalf("\t%s\tShould fail to build a proof for a missing value.", failed)
		}
		t.Logf("\t%s\tShould fail to build a proof for a missing value.", success)
	}
}

func Test_HashStrategy(t *testing.T) {
	d := values(4)

	def, err := merkle.NewTree(d)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create tree: %v", failed, err)
	}

	alt, err := merkle.NewTree(d, merkle.WithHashStrategy[data](md5.New))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create tree with md5: %v", failed, err)
	}

	if def.RootHex() == alt.RootHex() {
		t.Fatalf("\t%s\tShould get a different root with a different hash strategy.", failed)
	}
	if len(alt.Root()) != md5.Size {
		t.Fatalf("\t%s\tShould get an md5 sized root, got %d bytes.", failed, len(alt.Root()))
	}
	t.Logf("\t%s\tShould honor the hash strategy.", success)

	if err := alt.Verify(); err != nil {
		t.Fatalf("\t%s\tShould verify the md5 tree: %v", failed, err)
	}
	t.Logf("\t%s\tShould verify the md5 tree.", success)
}
