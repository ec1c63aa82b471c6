package blockchain

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/peer"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"btc-walletscan/pkg/headers"
	"btc-walletscan/pkg/logger"
)

func newPeerConfig(params *chaincfg.Params, pl *peerListeners) *peer.Config {
	return &peer.Config{
		Listeners: peer.MessageListeners{
			OnVersion:  pl.OnVersion,
			OnVerAck:   pl.OnVerAck,
			OnHeaders:  pl.OnHeaders,
			OnBlock:    pl.OnBlock,
			OnNotFound: pl.OnNotFound,

			// Note: The reference client currently bans peers that send alerts
			// not signed with its key.
			OnAlert: nil,
		},
		UserAgentName:    "walletscan",
		UserAgentVersion: "1.0.0",
		ChainParams:      params,
		Services:         0,
		ProtocolVersion:  peer.MaxProtocolVersion,
		AllowSelfConns:   true,
	}
}

// peerListeners forwards replies from the peer's input goroutine. Sends
// never block; a reply nobody is waiting for is dropped.
type peerListeners struct {
	logger *logger.CustomLogger

	verAck   chan struct{}
	headers  chan *wire.MsgHeaders
	blocks   chan *wire.MsgBlock
	notFound chan *wire.MsgNotFound

	mu      sync.Mutex
	witness bool
}

func newPeerListeners(log *logger.CustomLogger) *peerListeners {
	return &peerListeners{
		logger:   log,
		verAck:   make(chan struct{}, 1),
		headers:  make(chan *wire.MsgHeaders, 1),
		blocks:   make(chan *wire.MsgBlock, 1),
		notFound: make(chan *wire.MsgNotFound, 1),
	}
}

func (pl *peerListeners) OnVersion(p *peer.Peer, msg *wire.MsgVersion) *wire.MsgReject {
	pl.mu.Lock()
	pl.witness = msg.Services&wire.SFNodeWitness == wire.SFNodeWitness
	pl.mu.Unlock()
	pl.logger.Debug("peer version",
		zap.String("peer", p.Addr()),
		zap.String("agent", msg.UserAgent),
		zap.Int32("last_block", msg.LastBlock))
	return nil
}

func (pl *peerListeners) OnVerAck(p *peer.Peer, msg *wire.MsgVerAck) {
	select {
	case pl.verAck <- struct{}{}:
	default:
	}
}

func (pl *peerListeners) OnHeaders(p *peer.Peer, msg *wire.MsgHeaders) {
	pl.logger.Debug("headers", zap.Int("count", len(msg.Headers)))
	select {
	case pl.headers <- msg:
	default:
		pl.logger.Warn("dropping unsolicited headers", zap.String("peer", p.Addr()))
	}
}

func (pl *peerListeners) OnBlock(p *peer.Peer, msg *wire.MsgBlock, buf []byte) {
	select {
	case pl.blocks <- msg:
	default:
		pl.logger.Warn("dropping unsolicited block", zap.Stringer("hash", msg.BlockHash()))
	}
}

func (pl *peerListeners) OnNotFound(p *peer.Peer, msg *wire.MsgNotFound) {
	select {
	case pl.notFound <- msg:
	default:
	}
}

func (pl *peerListeners) supportsWitness() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.witness
}

// drain discards replies left over from an abandoned request.
func (pl *peerListeners) drain() {
	for {
		select {
		case <-pl.headers:
		case <-pl.blocks:
		case <-pl.notFound:
		default:
			return
		}
	}
}

// PeerSource talks to one peer over the wire protocol. It is a
// HeaderBatchSource and a BlockSource. The connection is dialed on first use
// and torn down whenever a request fails or times out.
type PeerSource struct {
	params  *chaincfg.Params
	addr    string
	timeout time.Duration
	logger  *logger.CustomLogger

	peer      *peer.Peer
	listeners *peerListeners
}

func NewPeerSource(params *chaincfg.Params, addr string, timeout time.Duration, log *logger.CustomLogger) *PeerSource {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PeerSource{
		params:  params,
		addr:    addr,
		timeout: timeout,
		logger:  log.With(zap.String("peer", addr)),
	}
}

func (ps *PeerSource) connect(ctx context.Context) (*peer.Peer, error) {
	if ps.peer != nil && ps.peer.Connected() {
		return ps.peer, nil
	}

	listeners := newPeerListeners(ps.logger)
	p, err := peer.NewOutboundPeer(newPeerConfig(ps.params, listeners), ps.addr)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: ps.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", ps.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ps.addr, err)
	}
	p.AssociateConnection(conn)

	select {
	case <-listeners.verAck:
	case <-ctx.Done():
		p.Disconnect()
		return nil, ctx.Err()
	case <-time.After(ps.timeout):
		p.Disconnect()
		return nil, fmt.Errorf("handshake with %s: %w", ps.addr, context.DeadlineExceeded)
	}

	ps.logger.Info("peer connected", zap.Int32("last_block", p.LastBlock()))
	ps.peer = p
	ps.listeners = listeners
	return p, nil
}

// Close disconnects the current peer, if any.
func (ps *PeerSource) Close() {
	if ps.peer == nil {
		return
	}
	ps.peer.Disconnect()
	ps.peer.WaitForDisconnect()
	ps.peer = nil
	ps.listeners = nil
}

func (ps *PeerSource) GetHeadersSince(ctx context.Context, locator headers.BlockLocator) ([]*wire.BlockHeader, error) {
	p, err := ps.connect(ctx)
	if err != nil {
		return nil, err
	}
	ps.listeners.drain()

	if err := p.PushGetHeadersMsg([]*chainhash.Hash(locator), &chainhash.Hash{}); err != nil {
		ps.Close()
		return nil, err
	}

	select {
	case msg := <-ps.listeners.headers:
		return msg.Headers, nil
	case <-ctx.Done():
		ps.logger.Warn("header request abandoned", zap.Error(ctx.Err()))
		ps.Close()
		return nil, ctx.Err()
	}
}

func (ps *PeerSource) GetBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	ctx, cancel := context.WithTimeout(ctx, ps.timeout)
	defer cancel()

	p, err := ps.connect(ctx)
	if err != nil {
		return nil, err
	}
	ps.listeners.drain()

	invType := wire.InvTypeBlock
	if ps.listeners.supportsWitness() {
		invType = wire.InvTypeWitnessBlock
	}
	getData := wire.NewMsgGetData()
	if err := getData.AddInvVect(wire.NewInvVect(invType, &hash)); err != nil {
		return nil, err
	}
	p.QueueMessage(getData, nil)

	for {
		select {
		case blk := <-ps.listeners.blocks:
			if blk.BlockHash() == hash {
				return blk, nil
			}
		case nf := <-ps.listeners.notFound:
			for _, inv := range nf.InvList {
				if inv.Hash == hash {
					return nil, fmt.Errorf("%w: block %s", ErrNotFound, hash)
				}
			}
		case <-ctx.Done():
			ps.logger.Warn("block request abandoned", zap.Stringer("hash", hash), zap.Error(ctx.Err()))
			ps.Close()
			return nil, ctx.Err()
		}
	}
}
