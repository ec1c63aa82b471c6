package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	"btc-walletscan/internal/network"
	"btc-walletscan/pkg/logger"
)

const peerDocumentVersion = 1

var ErrNoPeers = errors.New("peer list is empty")

// PeerList is the persisted set of known peer addresses with the time each
// was first seen.
type PeerList struct {
	peers map[string]int64
	dirty bool
}

func NewPeerList() *PeerList {
	return &PeerList{peers: make(map[string]int64)}
}

func (pl *PeerList) Dirty() bool { return pl.dirty }

func (pl *PeerList) ClearDirty() { pl.dirty = false }

func (pl *PeerList) Len() int { return len(pl.peers) }

// Add records addr and reports whether it was new.
func (pl *PeerList) Add(addr string, seen time.Time) bool {
	if _, ok := pl.peers[addr]; ok {
		return false
	}
	pl.peers[addr] = seen.Unix()
	pl.dirty = true
	return true
}

func (pl *PeerList) Addrs() []string {
	out := make([]string, 0, len(pl.peers))
	for a := range pl.peers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// RandomPeer returns a random known address.
func (pl *PeerList) RandomPeer() (string, error) {
	if len(pl.peers) == 0 {
		return "", ErrNoPeers
	}
	addrs := pl.Addrs()
	return addrs[rand.Intn(len(addrs))], nil
}

// Seed resolves the network's DNS seeds and adds every address found. It
// returns the number of new addresses.
func (pl *PeerList) Seed(ctx context.Context, resolver network.Resolver, params *chaincfg.Params, log *logger.CustomLogger) (int, error) {
	port, err := strconv.Atoi(params.DefaultPort)
	if err != nil {
		return 0, fmt.Errorf("default port %q: %w", params.DefaultPort, err)
	}

	added := 0
	for _, na := range network.LookUpPeers(ctx, resolver, params.DNSSeeds, uint16(port), log) {
		addr := net.JoinHostPort(na.ToLegacy().IP.String(), strconv.Itoa(int(na.Port)))
		if pl.Add(addr, na.Timestamp) {
			added++
		}
	}
	log.Info("seeded peer list", zap.Int("added", added), zap.Int("known", pl.Len()))
	return added, nil
}

type PeerDocument struct {
	Version int       `json:"version" bson:"version"`
	Peers   []PeerDoc `json:"peers" bson:"peers"`
}

type PeerDoc struct {
	Addr      string `json:"addr" bson:"addr"`
	FirstSeen int64  `json:"first_seen" bson:"first_seen"`
}

func (pl *PeerList) Document() *PeerDocument {
	doc := &PeerDocument{Version: peerDocumentVersion, Peers: make([]PeerDoc, 0, len(pl.peers))}
	for _, a := range pl.Addrs() {
		doc.Peers = append(doc.Peers, PeerDoc{Addr: a, FirstSeen: pl.peers[a]})
	}
	return doc
}

func PeerListFromDocument(doc *PeerDocument) (*PeerList, error) {
	if doc.Version != peerDocumentVersion {
		return nil, fmt.Errorf("unsupported peer cache version: %d", doc.Version)
	}
	pl := NewPeerList()
	for _, p := range doc.Peers {
		pl.peers[p.Addr] = p.FirstSeen
	}
	return pl, nil
}
