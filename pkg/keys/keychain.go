// Package keys derives the wallet's watched addresses. It keeps the root
// extended key and per-account counters; the addresses themselves live in the
// wallet's watch set.
package keys

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"btc-walletscan/pkg/wallet"
)

const (
	purposeBIP44 = 44

	DefaultAccountName = "default"
)

var (
	ErrAccountExists  = errors.New("account already exists")
	ErrUnknownAccount = errors.New("unknown account")
	ErrBadKeychain    = errors.New("keychain check failed")
)

// Account holds the derivation counters of one BIP44 account.
type Account struct {
	Name         string
	Index        uint32
	NextExternal uint32
	NextChange   uint32
	CreateTime   int64
}

// Keychain derives P2PKH addresses along m/44'/coin'/account'/change/index.
type Keychain struct {
	params         *chaincfg.Params
	root           *hdkeychain.ExtendedKey
	accounts       map[string]*Account
	defaultAccount string
	nextIndex      uint32
	createTime     int64
	lastAddress    string

	dirty bool
}

// Create generates a fresh seed and returns a keychain holding one default
// account.
func Create(params *chaincfg.Params, now time.Time) (*Keychain, error) {
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		return nil, fmt.Errorf("generate seed: %w", err)
	}
	return FromSeed(params, seed, now)
}

func FromSeed(params *chaincfg.Params, seed []byte, now time.Time) (*Keychain, error) {
	root, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	k := &Keychain{
		params:     params,
		root:       root,
		accounts:   make(map[string]*Account),
		createTime: now.Unix(),
		dirty:      true,
	}
	if err := k.NewAccount(DefaultAccountName, now); err != nil {
		return nil, err
	}
	k.defaultAccount = DefaultAccountName
	return k, nil
}

func (k *Keychain) Dirty() bool { return k.dirty }

func (k *Keychain) ClearDirty() { k.dirty = false }

// CreateTime is the wallet birthday in unix seconds.
func (k *Keychain) CreateTime() int64 { return k.createTime }

func (k *Keychain) DefaultAccount() string { return k.defaultAccount }

func (k *Keychain) LastAddress() string { return k.lastAddress }

func (k *Keychain) NewAccount(name string, now time.Time) error {
	if name == "" {
		return fmt.Errorf("account name is empty")
	}
	if _, ok := k.accounts[name]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, name)
	}
	if k.nextIndex >= hdkeychain.HardenedKeyStart {
		return fmt.Errorf("account index space exhausted")
	}
	k.accounts[name] = &Account{Name: name, Index: k.nextIndex, CreateTime: now.Unix()}
	k.nextIndex++
	k.dirty = true
	return nil
}

func (k *Keychain) SetDefaultAccount(name string) error {
	if _, ok := k.accounts[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, name)
	}
	if k.defaultAccount != name {
		k.defaultAccount = name
		k.dirty = true
	}
	return nil
}

// Accounts returns copies of all accounts ordered by index.
func (k *Keychain) Accounts() []Account {
	out := make([]Account, 0, len(k.accounts))
	for _, a := range k.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// NewAddress derives the next address of account on the external or change
// branch. An empty account name selects the default account. The returned
// metadata is what the caller inserts into the watch set.
func (k *Keychain) NewAddress(account string, change bool, now time.Time) (string, wallet.AddressMeta, error) {
	if account == "" {
		account = k.defaultAccount
	}
	acct, ok := k.accounts[account]
	if !ok {
		return "", wallet.AddressMeta{}, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}

	index := acct.NextExternal
	if change {
		index = acct.NextChange
	}

	addr, err := k.deriveAddress(acct.Index, change, index)
	if err != nil {
		return "", wallet.AddressMeta{}, err
	}

	if change {
		acct.NextChange++
	} else {
		acct.NextExternal++
	}
	k.lastAddress = addr
	k.dirty = true

	return addr, wallet.AddressMeta{
		Account:      acct.Name,
		AccountIndex: acct.Index,
		KeyIndex:     index,
		Change:       change,
		CreateTime:   now.Unix(),
	}, nil
}

func (k *Keychain) deriveAddress(account uint32, change bool, index uint32) (string, error) {
	path := []uint32{
		hdkeychain.HardenedKeyStart + purposeBIP44,
		hdkeychain.HardenedKeyStart + k.params.HDCoinType,
		hdkeychain.HardenedKeyStart + account,
		0,
		index,
	}
	if change {
		path[3] = 1
	}

	key := k.root
	for _, child := range path {
		var err error
		key, err = key.Derive(child)
		if err != nil {
			return "", fmt.Errorf("derive m/44'/%d'/%d'/%d/%d: %w", k.params.HDCoinType, account, path[3], index, err)
		}
	}

	pub, err := key.ECPubKey()
	if err != nil {
		return "", err
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), k.params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// Check verifies that the keychain is usable: the root key is private and
// belongs to the configured network, account indexes are unique and every
// account can derive its first address.
func (k *Keychain) Check() error {
	if !k.root.IsPrivate() {
		return fmt.Errorf("%w: root key is not private", ErrBadKeychain)
	}
	if !k.root.IsForNet(k.params) {
		return fmt.Errorf("%w: root key is not for %s", ErrBadKeychain, k.params.Name)
	}
	if _, ok := k.accounts[k.defaultAccount]; !ok {
		return fmt.Errorf("%w: default account %q missing", ErrBadKeychain, k.defaultAccount)
	}

	seen := make(map[uint32]string, len(k.accounts))
	for _, a := range k.Accounts() {
		if other, dup := seen[a.Index]; dup {
			return fmt.Errorf("%w: accounts %s and %s share index %d", ErrBadKeychain, other, a.Name, a.Index)
		}
		seen[a.Index] = a.Name
		if a.Index >= k.nextIndex {
			return fmt.Errorf("%w: account %s index %d beyond counter %d", ErrBadKeychain, a.Name, a.Index, k.nextIndex)
		}
		if _, err := k.deriveAddress(a.Index, false, 0); err != nil {
			return fmt.Errorf("%w: %v", ErrBadKeychain, err)
		}
	}
	return nil
}
