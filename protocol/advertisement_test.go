package protocol

import (
	"errors"
	"fmt"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAdvertisement(n int) *Advertisement {
	adv := &Advertisement{
		Sender: netip.MustParseAddrPort("192.168.0.1:4000"),
	}
	for i := range n {
		cost := uint16(i * 3)
		if i%4 == 3 {
			cost = 0xFFFF
		}
		adv.Entries = append(adv.Entries, Entry{
			Addr: netip.MustParseAddrPort(fmt.Sprintf("192.168.0.%d:%d", i+1, 4000+i)),
			Id:   uint16(i + 1),
			Cost: cost,
		})
	}
	return adv
}

func TestEncodeLayout(t *testing.T) {
	adv := &Advertisement{
		Sender: netip.MustParseAddrPort("10.0.0.1:258"),
		Entries: []Entry{
			{Addr: netip.MustParseAddrPort("10.0.0.2:772"), Id: 2, Cost: 7},
		},
	}
	pkt, err := Encode(adv)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x00, 0x01, // count
		0x01, 0x02, // sender port
		10, 0, 0, 1, // sender address
		10, 0, 0, 2, // node address
		0x03, 0x04, // node port
		0x00, 0x00, // padding
		0x00, 0x02, // id
		0x00, 0x07, // cost
	}, pkt)
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5, 17, 82} {
		t.Run(fmt.Sprintf("%d nodes", n), func(t *testing.T) {
			adv := sampleAdvertisement(n)
			pkt, err := Encode(adv)
			require.NoError(t, err)
			assert.Len(t, pkt, HeaderLen+n*EntryLen)

			got, err := Decode(pkt)
			require.NoError(t, err)
			assert.Equal(t, adv.Sender, got.Sender)
			assert.Len(t, got.Entries, n)
			for i := range adv.Entries {
				assert.Equal(t, adv.Entries[i], got.Entries[i], "entry %d", i)
			}
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	pkt, err := Encode(sampleAdvertisement(3))
	require.NoError(t, err)

	for _, cut := range []int{0, 1, HeaderLen - 1, HeaderLen, HeaderLen + EntryLen, len(pkt) - 1} {
		_, err := Decode(pkt[:cut])
		var de *DecodeError
		require.True(t, errors.As(err, &de), "cut at %d: %v", cut, err)
		assert.Equal(t, cut, de.Have)
	}
}

func TestDecodeIgnoresPaddingAndTrailer(t *testing.T) {
	pkt, err := Encode(sampleAdvertisement(2))
	require.NoError(t, err)

	// old routers send a fixed 1000 byte frame, and padding is not guaranteed to be zero
	frame := make([]byte, 1000)
	copy(frame, pkt)
	frame[HeaderLen+6] = 0xAB
	frame[HeaderLen+7] = 0xCD

	got, err := Decode(frame)
	require.NoError(t, err)
	assert.Len(t, got.Entries, 2)
	assert.Equal(t, uint16(1), got.Entries[0].Id)
	assert.Len(t, got.LayerPayload(), 1000-len(pkt))
}

func TestDecodePassesThroughUnvalidatedFields(t *testing.T) {
	adv := &Advertisement{
		Sender: netip.MustParseAddrPort("10.0.0.9:1"),
		Entries: []Entry{
			{Addr: netip.MustParseAddrPort("0.0.0.0:0"), Id: 0, Cost: 1},
			{Addr: netip.MustParseAddrPort("10.0.0.1:1"), Id: 60000, Cost: 2},
		},
	}
	pkt, err := Encode(adv)
	require.NoError(t, err)
	got, err := Decode(pkt)
	require.NoError(t, err)
	assert.Equal(t, adv.Entries, got.Entries)

	empty, err := Decode([]byte{0, 0, 0, 1, 10, 0, 0, 9})
	require.NoError(t, err)
	assert.Empty(t, empty.Entries)
}

func TestEncodeRejectsIPv6(t *testing.T) {
	_, err := Encode(&Advertisement{Sender: netip.MustParseAddrPort("[::1]:4000")})
	assert.Error(t, err)

	_, err = Encode(&Advertisement{
		Sender:  netip.MustParseAddrPort("10.0.0.1:4000"),
		Entries: []Entry{{Addr: netip.MustParseAddrPort("[fe80::1]:1"), Id: 1}},
	})
	assert.Error(t, err)
}

func TestEncodeAcceptsMappedIPv4(t *testing.T) {
	mapped := netip.AddrPortFrom(netip.AddrFrom16(netip.MustParseAddr("10.1.2.3").As16()), 9)
	pkt, err := Encode(&Advertisement{Sender: mapped})
	require.NoError(t, err)
	got, err := Decode(pkt)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("10.1.2.3:9"), got.Sender)
}

func TestGopacketDecoding(t *testing.T) {
	pkt, err := Encode(sampleAdvertisement(4))
	require.NoError(t, err)

	p := gopacket.NewPacket(pkt, LayerTypeAdvertisement, gopacket.Default)
	require.Nil(t, p.ErrorLayer())
	layer := p.Layer(LayerTypeAdvertisement)
	require.NotNil(t, layer)
	adv := layer.(*Advertisement)
	assert.Len(t, adv.Entries, 4)

	bad := gopacket.NewPacket(pkt[:HeaderLen+3], LayerTypeAdvertisement, gopacket.Default)
	assert.NotNil(t, bad.ErrorLayer())
}
