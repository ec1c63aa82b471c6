package wallet

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// TxMatch describes what one transaction did to the wallet.
type TxMatch struct {
	TxID    chainhash.Hash
	Created []OutPointID
	Spent   []OutPointID
	// Recorded is true when a new TxRecord was inserted.
	Recorded bool
}

func (m *TxMatch) Relevant() bool {
	return len(m.Created) > 0 || len(m.Spent) > 0
}

// BlockMatch aggregates the matches of one block.
type BlockMatch struct {
	Txs     int
	Matches []*TxMatch
}

func (b *BlockMatch) Created() int {
	n := 0
	for _, m := range b.Matches {
		n += len(m.Created)
	}
	return n
}

func (b *BlockMatch) Spent() int {
	n := 0
	for _, m := range b.Matches {
		n += len(m.Spent)
	}
	return n
}

// Matcher applies blocks and transactions to a wallet State.
type Matcher struct {
	state  *State
	params *chaincfg.Params
}

func NewMatcher(state *State, params *chaincfg.Params) *Matcher {
	return &Matcher{state: state, params: params}
}

// MatchBlock matches every transaction in block order. The UTXO index is
// updated after each transaction so a later transaction may spend an output
// created earlier in the same block.
func (m *Matcher) MatchBlock(block *wire.MsgBlock) (*BlockMatch, error) {
	blockHash := block.BlockHash()
	res := &BlockMatch{Txs: len(block.Transactions)}
	for _, tx := range block.Transactions {
		match, err := m.MatchTx(tx, &blockHash)
		if err != nil {
			return res, err
		}
		if match.Relevant() {
			res.Matches = append(res.Matches, match)
		}
	}
	return res, nil
}

// MatchTx matches one transaction. blockHash is nil for transactions that
// did not come from a block. Either every mutation of the transaction is
// applied or, on error, none is.
func (m *Matcher) MatchTx(tx *wire.MsgTx, blockHash *chainhash.Hash) (*TxMatch, error) {
	txid := tx.TxHash()
	match := &TxMatch{TxID: txid}

	outputs := make([]TxOutput, len(tx.TxOut))
	created := make([]*UnspentOutput, 0)
	for i, out := range tx.TxOut {
		outputs[i] = TxOutput{Value: out.Value, Script: out.PkScript}

		addr, meta, ok := m.watchedAddress(out.PkScript)
		if !ok {
			continue
		}
		if meta.Account == "" {
			return nil, fmt.Errorf("%w: watched address %s has no account", ErrIntegrity, addr)
		}

		outputs[i].Address = addr
		outputs[i].IsMine = true
		created = append(created, &UnspentOutput{
			OutPoint: OutPointID{TxID: txid, Index: uint32(i)},
			Address:  addr,
			Script:   out.PkScript,
			Value:    out.Value,
		})
	}

	inputs := make([]TxInput, len(tx.TxIn))
	spent := make([]OutPointID, 0)
	for i, in := range tx.TxIn {
		id := OutPointID{TxID: in.PreviousOutPoint.Hash, Index: in.PreviousOutPoint.Index}
		inputs[i] = TxInput{PrevTxID: id.TxID, PrevIndex: id.Index}

		utxo, ok := m.state.unspent[id]
		if !ok {
			continue
		}
		if meta, known := m.state.watch[utxo.Address]; !known || meta.Account == "" {
			return nil, fmt.Errorf("%w: spent utxo %s pays unwatched address %s", ErrIntegrity, id, utxo.Address)
		}
		inputs[i].IsMine = true
		spent = append(spent, id)
	}

	for _, u := range created {
		m.state.unspent[u.OutPoint] = u
		match.Created = append(match.Created, u.OutPoint)
	}
	for _, id := range spent {
		delete(m.state.unspent, id)
		match.Spent = append(match.Spent, id)
	}

	if !match.Relevant() {
		return match, nil
	}
	m.state.dirty = true

	if existing, ok := m.state.txs[txid]; ok {
		// First observation wins; only a missing block hash is filled in.
		if blockHash != nil && existing.BlockHash == (chainhash.Hash{}) {
			existing.BlockHash = *blockHash
		}
		return match, nil
	}

	var raw bytes.Buffer
	if err := tx.Serialize(&raw); err != nil {
		return nil, fmt.Errorf("serialize tx %s: %w", txid, err)
	}
	rec := &TxRecord{
		TxID:    txid,
		Raw:     raw.Bytes(),
		Inputs:  inputs,
		Outputs: outputs,
	}
	if blockHash != nil {
		rec.BlockHash = *blockHash
	}
	m.state.txs[txid] = rec
	match.Recorded = true

	return match, nil
}

// watchedAddress decodes the destination of pkScript and returns the first
// decoded address present in the watch set.
func (m *Matcher) watchedAddress(pkScript []byte) (string, AddressMeta, bool) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, m.params)
	if err != nil {
		return "", AddressMeta{}, false
	}
	for _, a := range addrs {
		enc := a.EncodeAddress()
		if meta, ok := m.state.watch[enc]; ok {
			return enc, meta, true
		}
	}
	return "", AddressMeta{}, false
}
