package state

import (
	"encoding/json"
	"fmt"
)

type PacketKind uint8

const (
	// Routing carries protocol state between engines.
	Routing PacketKind = iota + 1
	// Data is host traffic; engines only forward it by table lookup.
	Data
)

func (k PacketKind) String() string {
	switch k {
	case Routing:
		return "routing"
	case Data:
		return "data"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Packet is the envelope the host moves between routers. Src and Dst are
// router addresses; Content is an opaque serialized payload owned by the
// protocol that produced it.
type Packet struct {
	Kind    PacketKind
	Src     Addr
	Dst     Addr
	Content []byte
}

// Payloads are JSON so independently written routers can share a network.
// A distance-vector payload is a bare destination -> cost map; a link-state
// payload is a LinkStateAdvert.

func EncodeVector(v map[Addr]Cost) ([]byte, error) {
	return json.Marshal(v)
}

func DecodeVector(content []byte) (map[Addr]Cost, error) {
	var v map[Addr]Cost
	if err := json.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("invalid vector payload: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("invalid vector payload: no map")
	}
	return v, nil
}

// LinkStateAdvert is one router's origination: its direct neighbour costs,
// stamped with a per-origin monotonic sequence number.
type LinkStateAdvert struct {
	Src       Addr          `json:"src"`
	SeqNum    uint64        `json:"seq_num"`
	Neighbors map[Addr]Cost `json:"neighbors"`
}

func EncodeAdvert(adv *LinkStateAdvert) ([]byte, error) {
	return json.Marshal(adv)
}

func DecodeAdvert(content []byte) (*LinkStateAdvert, error) {
	var adv LinkStateAdvert
	if err := json.Unmarshal(content, &adv); err != nil {
		return nil, fmt.Errorf("invalid advertisement payload: %w", err)
	}
	if adv.Src == "" {
		return nil, fmt.Errorf("invalid advertisement payload: missing src")
	}
	if adv.Neighbors == nil {
		adv.Neighbors = make(map[Addr]Cost)
	}
	return &adv, nil
}
