package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// HeaderLen is the size of the fixed advertisement header: count, sender port, sender address.
	HeaderLen = 8
	// EntryLen is the size of one (address, port, padding, id, cost) tuple.
	EntryLen = 12
	// MaxDatagram is the largest UDP payload carried over IPv4.
	MaxDatagram = 65507
	// MaxEntries is the largest topology a single advertisement can describe.
	MaxEntries = (MaxDatagram - HeaderLen) / EntryLen
)

var LayerTypeAdvertisement = gopacket.RegisterLayerType(2317, gopacket.LayerTypeMetadata{
	Name:    "Advertisement",
	Decoder: gopacket.DecodeFunc(decodeAdvertisement),
})

// Entry is one node of the sender's cost vector
type Entry struct {
	Addr netip.AddrPort
	Id   uint16
	Cost uint16
}

// Advertisement is the distance vector a router sends to its neighbours every interval.
type Advertisement struct {
	layers.BaseLayer
	Sender  netip.AddrPort
	Entries []Entry
}

// DecodeError is returned when a datagram is too short to hold what its header announces.
type DecodeError struct {
	Have int
	Need int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("truncated advertisement: have %d bytes, need %d", e.Have, e.Need)
}

func (a *Advertisement) LayerType() gopacket.LayerType {
	return LayerTypeAdvertisement
}

func (a *Advertisement) CanDecode() gopacket.LayerClass {
	return LayerTypeAdvertisement
}

func (a *Advertisement) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

// DecodeFromBytes parses the header and every announced entry. Anything after the last entry is
// kept as payload and otherwise ignored.
func (a *Advertisement) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < HeaderLen {
		df.SetTruncated()
		return &DecodeError{Have: len(data), Need: HeaderLen}
	}
	count := int(binary.BigEndian.Uint16(data[0:2]))
	port := binary.BigEndian.Uint16(data[2:4])
	addr := netip.AddrFrom4([4]byte(data[4:8]))

	end := HeaderLen + count*EntryLen
	if len(data) < end {
		df.SetTruncated()
		return &DecodeError{Have: len(data), Need: end}
	}

	a.Sender = netip.AddrPortFrom(addr, port)
	a.Entries = make([]Entry, count)
	for i := range a.Entries {
		b := data[HeaderLen+i*EntryLen:]
		a.Entries[i] = Entry{
			Addr: netip.AddrPortFrom(netip.AddrFrom4([4]byte(b[0:4])), binary.BigEndian.Uint16(b[4:6])),
			// b[6:8] is padding
			Id:   binary.BigEndian.Uint16(b[8:10]),
			Cost: binary.BigEndian.Uint16(b[10:12]),
		}
	}
	a.Contents = data[:end]
	a.Payload = data[end:]
	return nil
}

func (a *Advertisement) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if len(a.Entries) > MaxEntries {
		return fmt.Errorf("advertisement has %d entries, at most %d fit in a datagram", len(a.Entries), MaxEntries)
	}
	sender := a.Sender.Addr().Unmap()
	if !sender.Is4() {
		return fmt.Errorf("sender %s is not an IPv4 address", a.Sender)
	}
	bytes, err := b.PrependBytes(HeaderLen + len(a.Entries)*EntryLen)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(bytes[0:2], uint16(len(a.Entries)))
	binary.BigEndian.PutUint16(bytes[2:4], a.Sender.Port())
	ip4 := sender.As4()
	copy(bytes[4:8], ip4[:])

	for i, e := range a.Entries {
		addr := e.Addr.Addr().Unmap()
		if !addr.Is4() {
			return fmt.Errorf("entry for node %d has non-IPv4 address %s", e.Id, e.Addr)
		}
		out := bytes[HeaderLen+i*EntryLen:]
		ip4 = addr.As4()
		copy(out[0:4], ip4[:])
		binary.BigEndian.PutUint16(out[4:6], e.Addr.Port())
		binary.BigEndian.PutUint16(out[6:8], 0)
		binary.BigEndian.PutUint16(out[8:10], e.Id)
		binary.BigEndian.PutUint16(out[10:12], e.Cost)
	}
	return nil
}

func decodeAdvertisement(data []byte, p gopacket.PacketBuilder) error {
	a := &Advertisement{}
	if err := a.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(a)
	return nil
}

// Encode serializes the advertisement into a freshly allocated datagram.
func Encode(a *Advertisement) ([]byte, error) {
	if a == nil {
		return nil, errors.New("nil advertisement")
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, a)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a datagram. A *DecodeError means the datagram must be discarded.
func Decode(data []byte) (*Advertisement, error) {
	a := &Advertisement{}
	err := a.DecodeFromBytes(data, gopacket.NilDecodeFeedback)
	if err != nil {
		return nil, err
	}
	return a, nil
}
