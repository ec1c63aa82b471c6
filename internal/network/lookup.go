package network

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"btc-walletscan/pkg/logger"
)

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// seedAge backdates seeded addresses so a peer heard from directly is
// always fresher.
const seedAge = 3 * 24 * time.Hour

// LookUpPeers queries every DNS seed concurrently and returns the IPv4
// addresses found, tagged with defaultPort. A failing seed is logged and
// skipped.
func LookUpPeers(ctx context.Context, resolver Resolver, seeds []chaincfg.DNSSeed, defaultPort uint16, log *logger.CustomLogger) []*wire.NetAddressV2 {
	peerIPChan := make(chan *wire.NetAddressV2)
	seen := time.Now().Add(-seedAge)

	wg := new(sync.WaitGroup)
	for _, dnsseed := range seeds {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			seedpeers, err := resolver.LookupIP(ctx, "ip4", host)
			if err != nil {
				log.Warn("dns seed lookup failed", zap.String("seed", host), zap.Error(err))
				return
			}

			log.Info("found peers from seed", zap.String("seed", host), zap.Int("count", len(seedpeers)))

			for _, seedpeer := range seedpeers {
				if seedpeer.To4() == nil {
					continue
				}
				peerIPChan <- wire.NetAddressV2FromBytes(seen, 0, seedpeer.To4(), defaultPort)
			}
		}(dnsseed.Host)
	}

	go func() {
		wg.Wait()
		close(peerIPChan)
	}()

	var out []*wire.NetAddressV2
	for addr := range peerIPChan {
		out = append(out, addr)
	}
	return out
}
