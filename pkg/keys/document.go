package keys

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

const documentVersion = 1

type Document struct {
	Version        int          `json:"version" bson:"version"`
	Root           string       `json:"root" bson:"root"`
	DefaultAccount string       `json:"default_account" bson:"default_account"`
	NextIndex      uint32       `json:"next_index" bson:"next_index"`
	CreateTime     int64        `json:"create_time" bson:"create_time"`
	LastAddress    string       `json:"last_address,omitempty" bson:"last_address,omitempty"`
	Accounts       []AccountDoc `json:"accounts" bson:"accounts"`
}

type AccountDoc struct {
	Name         string `json:"name" bson:"name"`
	Index        uint32 `json:"index" bson:"index"`
	NextExternal uint32 `json:"next_external" bson:"next_external"`
	NextChange   uint32 `json:"next_change" bson:"next_change"`
	CreateTime   int64  `json:"create_time" bson:"create_time"`
}

func (k *Keychain) Document() *Document {
	doc := &Document{
		Version:        documentVersion,
		Root:           k.root.String(),
		DefaultAccount: k.defaultAccount,
		NextIndex:      k.nextIndex,
		CreateTime:     k.createTime,
		LastAddress:    k.lastAddress,
	}
	for _, a := range k.Accounts() {
		doc.Accounts = append(doc.Accounts, AccountDoc{
			Name:         a.Name,
			Index:        a.Index,
			NextExternal: a.NextExternal,
			NextChange:   a.NextChange,
			CreateTime:   a.CreateTime,
		})
	}
	return doc
}

// FromDocument restores a keychain. The result is clean; run Check to
// validate it against the network.
func FromDocument(params *chaincfg.Params, doc *Document) (*Keychain, error) {
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("unsupported key cache version: %d", doc.Version)
	}
	root, err := hdkeychain.NewKeyFromString(doc.Root)
	if err != nil {
		return nil, fmt.Errorf("root key: %w", err)
	}

	k := &Keychain{
		params:         params,
		root:           root,
		accounts:       make(map[string]*Account, len(doc.Accounts)),
		defaultAccount: doc.DefaultAccount,
		nextIndex:      doc.NextIndex,
		createTime:     doc.CreateTime,
		lastAddress:    doc.LastAddress,
	}
	for _, a := range doc.Accounts {
		if _, dup := k.accounts[a.Name]; dup {
			return nil, fmt.Errorf("duplicate account %q", a.Name)
		}
		k.accounts[a.Name] = &Account{
			Name:         a.Name,
			Index:        a.Index,
			NextExternal: a.NextExternal,
			NextChange:   a.NextChange,
			CreateTime:   a.CreateTime,
		}
	}
	return k, nil
}
