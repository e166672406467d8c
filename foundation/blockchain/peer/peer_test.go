package peer_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/kadchain/blockchain/foundation/blockchain/peer"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// id builds a node id with the specified leading and trailing bytes.
func id(first byte, last byte) peer.NodeID {
	var n peer.NodeID
	n[0] = first
	n[31] = last
	return n
}

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "pending",
			peers: []peer.Peer{peer.New("host1"), peer.New("host2"), peer.New("host3")},
		},
		{
			name:  "identified",
			peers: []peer.Peer{peer.NewWithID("host1", id(0x80, 1)), peer.NewWithID("host2", id(0x40, 1)), peer.NewWithID("host3", id(0x01, 1))},
		},
	}

	for testID, tst := range tt {
		f := func(t *testing.T) {
			tbl := peer.NewTable(peer.NewWithID("self", id(0, 0)), 0)

			for _, p := range tst.peers {
				if _, err := tbl.Add(p); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to add %s: %v", failed, testID, p.Host, err)
				}
			}

			peers := tbl.Copy("")
			if len(peers) != len(tst.peers) {
				t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, len(peers))
				t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, len(tst.peers))
				t.Fatalf("\t%s\tTest %d:\tShould get back the right peers.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould get back the right peers.", success, testID)

			peers = tbl.Copy("host2")
			if len(peers) != len(tst.peers)-1 {
				t.Fatalf("\t%s\tTest %d:\tShould exclude the specified host, got %d.", failed, testID, len(peers))
			}
			t.Logf("\t%s\tTest %d:\tShould exclude the specified host.", success, testID)

			tbl.Remove(peer.New("host1"))
			if tbl.Len() != len(tst.peers)-1 || tbl.Contains("host1") {
				t.Fatalf("\t%s\tTest %d:\tShould remove the peer, len %d.", failed, testID, tbl.Len())
			}
			t.Logf("\t%s\tTest %d:\tShould remove the peer.", success, testID)
		}

		t.Run(tst.name, f)
	}
}

func Test_Buckets(t *testing.T) {
	self := peer.NewWithID("self", id(0, 0))
	tbl := peer.NewTable(self, 2)

	t.Log("Given the need to keep peers in k-buckets.")
	{
		if added, _ := tbl.Add(self); added {
			t.Fatalf("\t%s\tShould never add the local node.", failed)
		}
		other := peer.NewTable(peer.NewWithID("self", id(0x55, 0)), 0)
		if added, _ := other.Add(peer.NewWithID("other", id(0x55, 0))); added {
			t.Fatalf("\t%s\tShould never add the local id.", failed)
		}
		t.Logf("\t%s\tShould never add the local node.", success)

		if idx := tbl.BucketIndex(id(0x80, 0)); idx != 255 {
			t.Fatalf("\t%s\tShould place a far id in the last bucket, got %d.", failed, idx)
		}
		if idx := tbl.BucketIndex(id(0, 1)); idx != 0 {
			t.Fatalf("\t%s\tShould place the closest id in the first bucket, got %d.", failed, idx)
		}
		t.Logf("\t%s\tShould compute bucket indexes.", success)

		for i, p := range []peer.Peer{peer.NewWithID("a", id(0x80, 1)), peer.NewWithID("b", id(0x80, 2))} {
			added, err := tbl.Add(p)
			if err != nil || !added {
				t.Fatalf("\t%s\tShould add peer %d: %v", failed, i, err)
			}
		}

		if _, err := tbl.Add(peer.NewWithID("c", id(0x80, 3))); !errors.Is(err, peer.ErrBucketFull) {
			t.Fatalf("\t%s\tShould get ErrBucketFull, got %v", failed, err)
		}
		t.Logf("\t%s\tShould get ErrBucketFull.", success)

		added, err := tbl.Add(peer.NewWithID("a", id(0x80, 1)))
		if err != nil || added {
			t.Fatalf("\t%s\tShould refresh a known peer: %v", failed, err)
		}
		t.Logf("\t%s\tShould refresh a known peer.", success)

		if _, err := tbl.Add(peer.NewWithID("d", id(0x01, 1))); err != nil {
			t.Fatalf("\t%s\tShould add into another bucket: %v", failed, err)
		}
		if tbl.Len() != 3 {
			t.Fatalf("\t%s\tShould hold 3 peers, got %d.", failed, tbl.Len())
		}
		t.Logf("\t%s\tShould add into another bucket.", success)
	}
}

func Test_Pending(t *testing.T) {
	tbl := peer.NewTable(peer.NewWithID("self", id(0, 0)), 0)

	if added, _ := tbl.Add(peer.New("boot")); !added {
		t.Fatalf("\t%s\tShould add a pending peer.", failed)
	}

	added, err := tbl.Add(peer.NewWithID("boot", id(0x20, 1)))
	if err != nil || added {
		t.Fatalf("\t%s\tShould promote a pending peer without reporting it as new: %v", failed, err)
	}

	if tbl.Len() != 1 {
		t.Fatalf("\t%s\tShould hold one peer after promotion, got %d.", failed, tbl.Len())
	}

	if closest := tbl.Closest(id(0x20, 1), 1); len(closest) != 1 || closest[0].Host != "boot" {
		t.Fatalf("\t%s\tShould find the promoted peer by id, got %v.", failed, closest)
	}
	t.Logf("\t%s\tShould promote a pending peer.", success)

	if added, _ := tbl.Add(peer.New("boot")); added {
		t.Fatalf("\t%s\tShould not demote an identified peer.", failed)
	}
	t.Logf("\t%s\tShould not demote an identified peer.", success)
}

func Test_Closest(t *testing.T) {
	tbl := peer.NewTable(peer.NewWithID("self", id(0, 0)), 0)

	for _, p := range []peer.Peer{
		peer.NewWithID("far", id(0xF0, 0)),
		peer.NewWithID("near", id(0x11, 0)),
		peer.NewWithID("exact", id(0x10, 0)),
		peer.NewWithID("mid", id(0x30, 0)),
		peer.New("pending"),
	} {
		tbl.Add(p)
	}

	got := tbl.Closest(id(0x10, 0), 3)
	exp := []string{"exact", "near", "mid"}

	if len(got) != len(exp) {
		t.Fatalf("\t%s\tShould get %d peers, got %d.", failed, len(exp), len(got))
	}

	for i := range exp {
		if got[i].Host != exp[i] {
			t.Logf("\t%s\tgot: %v", failed, got)
			t.Fatalf("\t%s\tShould get %s at position %d.", failed, exp[i], i)
		}
	}
	t.Logf("\t%s\tShould sort peers by distance to the target.", success)

	if n := len(tbl.Random(2)); n != 2 {
		t.Fatalf("\t%s\tShould get 2 random peers, got %d.", failed, n)
	}
	if n := len(tbl.Random(0)); n != 5 {
		t.Fatalf("\t%s\tShould get every peer, got %d.", failed, n)
	}
	t.Logf("\t%s\tShould pick random peers.", success)
}

func Test_NodeID(t *testing.T) {
	pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load key: %v", failed, err)
	}

	nodeID := peer.NodeIDFromPublicKey(pk.PublicKey)
	if nodeID.IsZero() || nodeID != peer.NodeIDFromPublicKey(pk.PublicKey) {
		t.Fatalf("\t%s\tShould derive a stable id.", failed)
	}
	t.Logf("\t%s\tShould derive a stable id.", success)

	parsed, err := peer.ParseNodeID(nodeID.String())
	if err != nil || parsed != nodeID {
		t.Fatalf("\t%s\tShould parse the id back: %v", failed, err)
	}
	t.Logf("\t%s\tShould parse the id back.", success)

	if _, err := peer.ParseNodeID("0x1234"); err == nil {
		t.Fatalf("\t%s\tShould reject a short id.", failed)
	}
	t.Logf("\t%s\tShould reject a short id.", success)

	if cpl := id(0x0F, 0).CommonPrefixLen(id(0x0E, 0)); cpl != 7 {
		t.Fatalf("\t%s\tShould get a common prefix of 7, got %d.", failed, cpl)
	}
	if d := id(0x0F, 1).Distance(id(0x0E, 1)); d != id(0x01, 0) {
		t.Fatalf("\t%s\tShould get the xor distance, got %s.", failed, d)
	}
	t.Logf("\t%s\tShould compute distances.", success)

	data, err := json.Marshal(peer.NewWithID("host", nodeID))
	if err != nil {
		t.Fatalf("\t%s\tShould marshal a peer: %v", failed, err)
	}

	var p peer.Peer
	if err := json.Unmarshal(data, &p); err != nil || p.ID != nodeID || p.Host != "host" {
		t.Fatalf("\t%s\tShould unmarshal a peer: %v", failed, err)
	}
	t.Logf("\t%s\tShould marshal peers as json.", success)
}
