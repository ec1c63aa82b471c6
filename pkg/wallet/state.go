package wallet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrIntegrity marks state that can only come from a logic bug or a corrupt
// cache, such as a UTXO whose address has no derivation metadata. Callers
// must stop rather than report a wrong balance.
var ErrIntegrity = errors.New("wallet integrity violation")

// AddressMeta records how a watched address was derived.
type AddressMeta struct {
	Account      string
	AccountIndex uint32
	KeyIndex     uint32
	Change       bool
	CreateTime   int64
}

// WatchSet maps an encoded address to its derivation metadata. Entries are
// only ever added.
type WatchSet map[string]AddressMeta

// OutPointID identifies a transaction output.
type OutPointID struct {
	TxID  chainhash.Hash
	Index uint32
}

func (o OutPointID) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

type UnspentOutput struct {
	OutPoint OutPointID
	Address  string
	Script   []byte
	Value    int64
}

type TxInput struct {
	PrevTxID  chainhash.Hash
	PrevIndex uint32
	IsMine    bool
}

type TxOutput struct {
	Value   int64
	Script  []byte
	Address string
	IsMine  bool
}

// TxRecord is a transaction that touched the wallet. BlockHash is zero for
// transactions that were created locally and not yet seen in a block.
type TxRecord struct {
	TxID      chainhash.Hash
	Raw       []byte
	BlockHash chainhash.Hash
	Inputs    []TxInput
	Outputs   []TxOutput
}

// State holds the watch set, the UTXO index, the wallet transaction log and
// the scan cursor. It is owned by one scan at a time.
type State struct {
	watch       WatchSet
	unspent     map[OutPointID]*UnspentOutput
	txs         map[chainhash.Hash]*TxRecord
	lastScanned chainhash.Hash

	dirty bool
}

func NewState() *State {
	return &State{
		watch:   make(WatchSet),
		unspent: make(map[OutPointID]*UnspentOutput),
		txs:     make(map[chainhash.Hash]*TxRecord),
	}
}

func (s *State) Dirty() bool { return s.dirty }

func (s *State) ClearDirty() { s.dirty = false }

// Watch adds an address to the watch set. Re-adding an address is a no-op;
// existing metadata is never replaced.
func (s *State) Watch(addr string, meta AddressMeta) error {
	if meta.Account == "" {
		return fmt.Errorf("%w: address %s has no account", ErrIntegrity, addr)
	}
	if _, ok := s.watch[addr]; ok {
		return nil
	}
	s.watch[addr] = meta
	s.dirty = true
	return nil
}

func (s *State) Lookup(addr string) (AddressMeta, bool) {
	meta, ok := s.watch[addr]
	return meta, ok
}

func (s *State) WatchCount() int { return len(s.watch) }

func (s *State) Unspent(id OutPointID) (UnspentOutput, bool) {
	u, ok := s.unspent[id]
	if !ok {
		return UnspentOutput{}, false
	}
	return *u, true
}

// UnspentOutputs returns the UTXO set ordered by outpoint.
func (s *State) UnspentOutputs() []UnspentOutput {
	out := make([]UnspentOutput, 0, len(s.unspent))
	for _, u := range s.unspent {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessOutPoint(out[i].OutPoint, out[j].OutPoint)
	})
	return out
}

func (s *State) Tx(txid chainhash.Hash) (*TxRecord, bool) {
	rec, ok := s.txs[txid]
	return rec, ok
}

// TxIDs returns the ids of every recorded wallet transaction, sorted.
func (s *State) TxIDs() []chainhash.Hash {
	out := make([]chainhash.Hash, 0, len(s.txs))
	for id := range s.txs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// LastScanned returns the scan cursor and whether it has been set.
func (s *State) LastScanned() (chainhash.Hash, bool) {
	return s.lastScanned, s.lastScanned != chainhash.Hash{}
}

func (s *State) SetLastScanned(hash chainhash.Hash) {
	if s.lastScanned == hash {
		return
	}
	s.lastScanned = hash
	s.dirty = true
}

// Balances sums unspent value per account. Accounts with no UTXOs are absent.
func (s *State) Balances() (map[string]int64, error) {
	out := make(map[string]int64)
	for id, u := range s.unspent {
		meta, ok := s.watch[u.Address]
		if !ok || meta.Account == "" {
			return nil, fmt.Errorf("%w: utxo %s pays %s which has no metadata", ErrIntegrity, id, u.Address)
		}
		out[meta.Account] += u.Value
	}
	return out, nil
}

func lessOutPoint(a, b OutPointID) bool {
	as, bs := a.TxID.String(), b.TxID.String()
	if as != bs {
		return as < bs
	}
	return a.Index < b.Index
}
