// Package cache loads the scanner's four caches from a storage backend and
// writes back the ones that changed.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	"btc-walletscan/database"
	"btc-walletscan/pkg/blockchain"
	"btc-walletscan/pkg/headers"
	"btc-walletscan/pkg/keys"
	"btc-walletscan/pkg/logger"
	"btc-walletscan/pkg/wallet"
)

const (
	NameHeaders = "headers"
	NameKeys    = "keys"
	NameWallet  = "wallet"
	NamePeers   = "peers"
)

var ErrNoWallet = errors.New("no wallet created yet")

// Manager owns the in-memory caches of one run.
type Manager struct {
	backend database.Backend
	params  *chaincfg.Params
	logger  *logger.CustomLogger

	Headers *headers.Store
	Wallet  *wallet.State
	Peers   *blockchain.PeerList

	// keys is nil until a wallet is created.
	keys *keys.Keychain
}

// Load reads every cache, substituting defaults for the ones never saved: a
// header store seeded with the network checkpoint, an empty wallet and an
// empty peer list.
func Load(ctx context.Context, backend database.Backend, params *chaincfg.Params, log *logger.CustomLogger) (*Manager, error) {
	m := &Manager{backend: backend, params: params, logger: log}

	cp := headers.DefaultCheckpoint(params)
	var hdoc headers.Document
	found, err := backend.Load(ctx, NameHeaders, &hdoc)
	if err != nil {
		return nil, fmt.Errorf("load %s cache: %w", NameHeaders, err)
	}
	if found {
		if m.Headers, err = headers.StoreFromDocument(&hdoc); err != nil {
			return nil, fmt.Errorf("load %s cache: %w", NameHeaders, err)
		}
		if m.Headers.Checkpoint() != cp.Hash {
			return nil, fmt.Errorf("header cache is rooted at %s, %s expects %s",
				m.Headers.Checkpoint(), params.Name, cp.Hash)
		}
	} else {
		m.Headers = headers.NewStore(cp)
	}

	var kdoc keys.Document
	if found, err = backend.Load(ctx, NameKeys, &kdoc); err != nil {
		return nil, fmt.Errorf("load %s cache: %w", NameKeys, err)
	}
	if found {
		if m.keys, err = keys.FromDocument(params, &kdoc); err != nil {
			return nil, fmt.Errorf("load %s cache: %w", NameKeys, err)
		}
	}

	var wdoc wallet.Document
	if found, err = backend.Load(ctx, NameWallet, &wdoc); err != nil {
		return nil, fmt.Errorf("load %s cache: %w", NameWallet, err)
	}
	if found {
		if m.Wallet, err = wallet.StateFromDocument(&wdoc); err != nil {
			return nil, fmt.Errorf("load %s cache: %w", NameWallet, err)
		}
	} else {
		m.Wallet = wallet.NewState()
	}

	var pdoc blockchain.PeerDocument
	if found, err = backend.Load(ctx, NamePeers, &pdoc); err != nil {
		return nil, fmt.Errorf("load %s cache: %w", NamePeers, err)
	}
	if found {
		if m.Peers, err = blockchain.PeerListFromDocument(&pdoc); err != nil {
			return nil, fmt.Errorf("load %s cache: %w", NamePeers, err)
		}
	} else {
		m.Peers = blockchain.NewPeerList()
	}

	log.Debug("caches loaded",
		zap.Int("headers", m.Headers.Len()),
		zap.Int("watched", m.Wallet.WatchCount()),
		zap.Int("peers", m.Peers.Len()),
		zap.Bool("keys", m.keys != nil))
	return m, nil
}

// Keys returns the keychain or ErrNoWallet.
func (m *Manager) Keys() (*keys.Keychain, error) {
	if m.keys == nil {
		return nil, ErrNoWallet
	}
	return m.keys, nil
}

// SetKeys installs a newly created keychain. It refuses to replace one.
func (m *Manager) SetKeys(k *keys.Keychain) error {
	if m.keys != nil {
		return fmt.Errorf("wallet already exists")
	}
	m.keys = k
	return nil
}

type dirtyCache interface {
	Dirty() bool
	ClearDirty()
}

// Flush saves every dirty cache and clears its flag. A failed save leaves
// that cache dirty and does not stop the others.
func (m *Manager) Flush(ctx context.Context) error {
	type entry struct {
		name  string
		cache dirtyCache
		doc   func() any
	}
	entries := []entry{
		{NameHeaders, m.Headers, func() any { return m.Headers.Document() }},
		{NameWallet, m.Wallet, func() any { return m.Wallet.Document() }},
		{NamePeers, m.Peers, func() any { return m.Peers.Document() }},
	}
	if m.keys != nil {
		entries = append(entries, entry{NameKeys, m.keys, func() any { return m.keys.Document() }})
	}

	var errs []error
	for _, e := range entries {
		if !e.cache.Dirty() {
			continue
		}
		if err := m.backend.Save(ctx, e.name, e.doc()); err != nil {
			errs = append(errs, fmt.Errorf("save %s cache: %w", e.name, err))
			continue
		}
		e.cache.ClearDirty()
		m.logger.Debug("cache flushed", zap.String("cache", e.name))
	}
	return errors.Join(errs...)
}
