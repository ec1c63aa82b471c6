package wallet

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const documentVersion = 1

// Document is the persisted wallet cache. Addresses, outputs and transactions
// are sorted slices so the file diffs cleanly and stays valid as a mongo
// document (addresses are not safe map keys there).
type Document struct {
	Version     int          `json:"version" bson:"version"`
	LastScanned string       `json:"last_scanned,omitempty" bson:"last_scanned,omitempty"`
	Addresses   []AddressDoc `json:"addresses" bson:"addresses"`
	Unspent     []UnspentDoc `json:"unspent" bson:"unspent"`
	Txs         []TxDoc      `json:"txs" bson:"txs"`
}

type AddressDoc struct {
	Address      string `json:"address" bson:"address"`
	Account      string `json:"account" bson:"account"`
	AccountIndex uint32 `json:"account_index" bson:"account_index"`
	KeyIndex     uint32 `json:"key_index" bson:"key_index"`
	Change       bool   `json:"change,omitempty" bson:"change,omitempty"`
	CreateTime   int64  `json:"create_time" bson:"create_time"`
}

type UnspentDoc struct {
	TxID    string `json:"txid" bson:"txid"`
	Vout    uint32 `json:"vout" bson:"vout"`
	Address string `json:"address" bson:"address"`
	Script  string `json:"script" bson:"script"`
	Value   int64  `json:"value" bson:"value"`
}

type TxDoc struct {
	TxID      string        `json:"txid" bson:"txid"`
	Raw       string        `json:"raw" bson:"raw"`
	BlockHash string        `json:"block_hash,omitempty" bson:"block_hash,omitempty"`
	Inputs    []TxInputDoc  `json:"inputs" bson:"inputs"`
	Outputs   []TxOutputDoc `json:"outputs" bson:"outputs"`
}

type TxInputDoc struct {
	PrevTxID  string `json:"prev_txid" bson:"prev_txid"`
	PrevIndex uint32 `json:"prev_index" bson:"prev_index"`
	IsMine    bool   `json:"is_mine,omitempty" bson:"is_mine,omitempty"`
}

type TxOutputDoc struct {
	Value   int64  `json:"value" bson:"value"`
	Script  string `json:"script" bson:"script"`
	Address string `json:"address,omitempty" bson:"address,omitempty"`
	IsMine  bool   `json:"is_mine,omitempty" bson:"is_mine,omitempty"`
}

func (s *State) Document() *Document {
	doc := &Document{
		Version:   documentVersion,
		Addresses: make([]AddressDoc, 0, len(s.watch)),
		Unspent:   make([]UnspentDoc, 0, len(s.unspent)),
		Txs:       make([]TxDoc, 0, len(s.txs)),
	}
	if h, ok := s.LastScanned(); ok {
		doc.LastScanned = h.String()
	}

	for addr, meta := range s.watch {
		doc.Addresses = append(doc.Addresses, AddressDoc{
			Address:      addr,
			Account:      meta.Account,
			AccountIndex: meta.AccountIndex,
			KeyIndex:     meta.KeyIndex,
			Change:       meta.Change,
			CreateTime:   meta.CreateTime,
		})
	}
	sort.Slice(doc.Addresses, func(i, j int) bool {
		return doc.Addresses[i].Address < doc.Addresses[j].Address
	})

	for _, u := range s.UnspentOutputs() {
		doc.Unspent = append(doc.Unspent, UnspentDoc{
			TxID:    u.OutPoint.TxID.String(),
			Vout:    u.OutPoint.Index,
			Address: u.Address,
			Script:  hex.EncodeToString(u.Script),
			Value:   u.Value,
		})
	}

	for _, id := range s.TxIDs() {
		rec := s.txs[id]
		td := TxDoc{
			TxID:    rec.TxID.String(),
			Raw:     hex.EncodeToString(rec.Raw),
			Inputs:  make([]TxInputDoc, 0, len(rec.Inputs)),
			Outputs: make([]TxOutputDoc, 0, len(rec.Outputs)),
		}
		if rec.BlockHash != (chainhash.Hash{}) {
			td.BlockHash = rec.BlockHash.String()
		}
		for _, in := range rec.Inputs {
			td.Inputs = append(td.Inputs, TxInputDoc{
				PrevTxID:  in.PrevTxID.String(),
				PrevIndex: in.PrevIndex,
				IsMine:    in.IsMine,
			})
		}
		for _, out := range rec.Outputs {
			td.Outputs = append(td.Outputs, TxOutputDoc{
				Value:   out.Value,
				Script:  hex.EncodeToString(out.Script),
				Address: out.Address,
				IsMine:  out.IsMine,
			})
		}
		doc.Txs = append(doc.Txs, td)
	}

	return doc
}

// StateFromDocument rebuilds a State. The result is clean. A UTXO whose
// address is not watched is rejected as ErrIntegrity.
func StateFromDocument(doc *Document) (*State, error) {
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("unsupported wallet cache version: %d", doc.Version)
	}

	s := NewState()
	s.dirty = false

	if doc.LastScanned != "" {
		h, err := chainhash.NewHashFromStr(doc.LastScanned)
		if err != nil {
			return nil, fmt.Errorf("last_scanned: %w", err)
		}
		s.lastScanned = *h
	}

	for _, a := range doc.Addresses {
		if a.Account == "" {
			return nil, fmt.Errorf("%w: address %s has no account", ErrIntegrity, a.Address)
		}
		s.watch[a.Address] = AddressMeta{
			Account:      a.Account,
			AccountIndex: a.AccountIndex,
			KeyIndex:     a.KeyIndex,
			Change:       a.Change,
			CreateTime:   a.CreateTime,
		}
	}

	for _, u := range doc.Unspent {
		txid, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("unspent txid: %w", err)
		}
		script, err := hex.DecodeString(u.Script)
		if err != nil {
			return nil, fmt.Errorf("unspent %s:%d script: %w", u.TxID, u.Vout, err)
		}
		if _, ok := s.watch[u.Address]; !ok {
			return nil, fmt.Errorf("%w: utxo %s:%d pays unwatched address %s", ErrIntegrity, u.TxID, u.Vout, u.Address)
		}
		id := OutPointID{TxID: *txid, Index: u.Vout}
		s.unspent[id] = &UnspentOutput{OutPoint: id, Address: u.Address, Script: script, Value: u.Value}
	}

	for _, td := range doc.Txs {
		rec, err := txRecordFromDoc(&td)
		if err != nil {
			return nil, err
		}
		s.txs[rec.TxID] = rec
	}

	return s, nil
}

func txRecordFromDoc(td *TxDoc) (*TxRecord, error) {
	txid, err := chainhash.NewHashFromStr(td.TxID)
	if err != nil {
		return nil, fmt.Errorf("tx id: %w", err)
	}
	rec := &TxRecord{TxID: *txid}
	if rec.Raw, err = hex.DecodeString(td.Raw); err != nil {
		return nil, fmt.Errorf("tx %s raw: %w", td.TxID, err)
	}
	if td.BlockHash != "" {
		bh, err := chainhash.NewHashFromStr(td.BlockHash)
		if err != nil {
			return nil, fmt.Errorf("tx %s block hash: %w", td.TxID, err)
		}
		rec.BlockHash = *bh
	}
	for _, in := range td.Inputs {
		prev, err := chainhash.NewHashFromStr(in.PrevTxID)
		if err != nil {
			return nil, fmt.Errorf("tx %s input: %w", td.TxID, err)
		}
		rec.Inputs = append(rec.Inputs, TxInput{PrevTxID: *prev, PrevIndex: in.PrevIndex, IsMine: in.IsMine})
	}
	for _, out := range td.Outputs {
		script, err := hex.DecodeString(out.Script)
		if err != nil {
			return nil, fmt.Errorf("tx %s output script: %w", td.TxID, err)
		}
		rec.Outputs = append(rec.Outputs, TxOutput{Value: out.Value, Script: script, Address: out.Address, IsMine: out.IsMine})
	}
	return rec, nil
}
