package network

import (
	"context"
	"errors"
	"net"
	"sort"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-walletscan/pkg/logger"
)

type fakeResolver map[string][]net.IP

func (f fakeResolver) LookupIP(_ context.Context, _, host string) ([]net.IP, error) {
	ips, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return ips, nil
}

func TestLookUpPeers(t *testing.T) {
	resolver := fakeResolver{
		"seed-a": {net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2")},
		"seed-b": {net.ParseIP("2001:db8::1"), net.ParseIP("10.0.0.3")},
	}
	seeds := []chaincfg.DNSSeed{{Host: "seed-a"}, {Host: "seed-b"}, {Host: "seed-broken"}}

	addrs := LookUpPeers(context.Background(), resolver, seeds, 8333, logger.NewNop())
	require.Len(t, addrs, 3)

	var got []string
	for _, a := range addrs {
		assert.Equal(t, uint16(8333), a.Port)
		got = append(got, a.ToLegacy().IP.String())
	}
	sort.Strings(got)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, got)
}

func TestLookUpPeersNoSeeds(t *testing.T) {
	assert.Empty(t, LookUpPeers(context.Background(), fakeResolver{}, nil, 8333, logger.NewNop()))
}
