package api

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestEnvelopeDecode(t *testing.T) {
	raw := []byte(`{"id":"x1","t":5,"p":{"to":"abc","offer":{"type":"offer","sdp":"v=0"}}}`)

	var in In
	if err := json.Unmarshal(raw, &in); err != nil {
		t.Fatal(err)
	}
	if in.T != UserCall || in.Id != "x1" {
		t.Errorf("bad envelope: %+v", in)
	}
	sig := Unwrap[Signal](in.Payload)
	if sig == nil {
		t.Fatal("payload didn't unwrap")
	}
	if sig.To != "abc" || len(sig.Offer) == 0 {
		t.Errorf("bad signal: %+v", sig)
	}
}

func TestUnwrapMalformed(t *testing.T) {
	if p := Unwrap[RoomJoinRequest]([]byte(`"nope"`)); p != nil {
		t.Errorf("want nil for malformed payload, got %+v", p)
	}
}

func TestPacketNames(t *testing.T) {
	for p := RoomJoin; p <= Error; p++ {
		if p.String() == "Unknown" {
			t.Errorf("packet %d has no name", p)
		}
	}
	if PT(200).String() != "Unknown" {
		t.Error("unallocated code should be unknown")
	}
}
