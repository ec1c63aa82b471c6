package blockchain

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-walletscan/pkg/logger"
)

type staticResolver []net.IP

func (r staticResolver) LookupIP(context.Context, string, string) ([]net.IP, error) {
	return r, nil
}

func TestPeerList(t *testing.T) {
	pl := NewPeerList()
	_, err := pl.RandomPeer()
	require.ErrorIs(t, err, ErrNoPeers)

	now := time.Unix(1_700_000_000, 0)
	assert.True(t, pl.Add("10.0.0.1:8333", now))
	assert.False(t, pl.Add("10.0.0.1:8333", now.Add(time.Hour)))
	assert.True(t, pl.Dirty())

	addr, err := pl.RandomPeer()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8333", addr)

	reloaded, err := PeerListFromDocument(pl.Document())
	require.NoError(t, err)
	assert.False(t, reloaded.Dirty())
	assert.Equal(t, pl.Document(), reloaded.Document())
	assert.Equal(t, now.Unix(), reloaded.Document().Peers[0].FirstSeen)
}

func TestPeerListSeed(t *testing.T) {
	params := chaincfg.MainNetParams
	params.DNSSeeds = []chaincfg.DNSSeed{{Host: "seed.example"}}

	pl := NewPeerList()
	resolver := staticResolver{net.ParseIP("192.0.2.1"), net.ParseIP("192.0.2.2")}

	added, err := pl.Seed(context.Background(), resolver, &params, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"192.0.2.1:8333", "192.0.2.2:8333"}, pl.Addrs())

	added, err = pl.Seed(context.Background(), resolver, &params, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}
