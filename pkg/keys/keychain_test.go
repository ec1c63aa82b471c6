package keys

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSeed = bytes.Repeat([]byte{0x42}, 32)
	testNow  = time.Unix(1_700_000_000, 0)
)

func newTestKeychain(t *testing.T) *Keychain {
	t.Helper()
	k, err := FromSeed(&chaincfg.RegressionNetParams, testSeed, testNow)
	require.NoError(t, err)
	return k
}

func TestNewAddress(t *testing.T) {
	k := newTestKeychain(t)

	a0, meta0, err := k.NewAddress("", false, testNow)
	require.NoError(t, err)
	a1, meta1, err := k.NewAddress(DefaultAccountName, false, testNow)
	require.NoError(t, err)
	c0, metaC, err := k.NewAddress("", true, testNow)
	require.NoError(t, err)

	assert.NotEqual(t, a0, a1)
	assert.NotEqual(t, a0, c0)
	assert.Equal(t, uint32(0), meta0.KeyIndex)
	assert.Equal(t, uint32(1), meta1.KeyIndex)
	assert.Equal(t, uint32(0), metaC.KeyIndex)
	assert.True(t, metaC.Change)
	assert.Equal(t, DefaultAccountName, meta0.Account)
	assert.Equal(t, testNow.Unix(), meta0.CreateTime)
	assert.Equal(t, c0, k.LastAddress())

	decoded, err := btcutil.DecodeAddress(a0, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	_, ok := decoded.(*btcutil.AddressPubKeyHash)
	assert.True(t, ok, "expected P2PKH address")
	assert.True(t, decoded.IsForNet(&chaincfg.RegressionNetParams))

	// Same seed, same path, same address.
	again := newTestKeychain(t)
	b0, _, err := again.NewAddress("", false, testNow)
	require.NoError(t, err)
	assert.Equal(t, a0, b0)
}

func TestAccounts(t *testing.T) {
	k := newTestKeychain(t)
	require.NoError(t, k.NewAccount("savings", testNow))
	require.ErrorIs(t, k.NewAccount("savings", testNow), ErrAccountExists)

	accts := k.Accounts()
	require.Len(t, accts, 2)
	assert.Equal(t, DefaultAccountName, accts[0].Name)
	assert.Equal(t, uint32(1), accts[1].Index)

	require.ErrorIs(t, k.SetDefaultAccount("nope"), ErrUnknownAccount)
	require.NoError(t, k.SetDefaultAccount("savings"))

	addr, meta, err := k.NewAddress("", false, testNow)
	require.NoError(t, err)
	assert.Equal(t, "savings", meta.Account)
	assert.Equal(t, uint32(1), meta.AccountIndex)

	other, _, err := k.NewAddress(DefaultAccountName, false, testNow)
	require.NoError(t, err)
	assert.NotEqual(t, addr, other, "accounts derive on separate branches")

	_, _, err = k.NewAddress("missing", false, testNow)
	require.ErrorIs(t, err, ErrUnknownAccount)
}

func TestCheck(t *testing.T) {
	k := newTestKeychain(t)
	require.NoError(t, k.Check())

	t.Run("wrong network", func(t *testing.T) {
		doc := k.Document()
		moved, err := FromDocument(&chaincfg.MainNetParams, doc)
		require.NoError(t, err)
		require.ErrorIs(t, moved.Check(), ErrBadKeychain)
	})

	t.Run("duplicate index", func(t *testing.T) {
		k := newTestKeychain(t)
		require.NoError(t, k.NewAccount("a", testNow))
		k.accounts["a"].Index = 0
		require.ErrorIs(t, k.Check(), ErrBadKeychain)
	})

	t.Run("public root", func(t *testing.T) {
		k := newTestKeychain(t)
		pub, err := k.root.Neuter()
		require.NoError(t, err)
		k.root = pub
		require.ErrorIs(t, k.Check(), ErrBadKeychain)
	})
}

func TestDocumentRoundTrip(t *testing.T) {
	k := newTestKeychain(t)
	require.NoError(t, k.NewAccount("savings", testNow))
	_, _, err := k.NewAddress("savings", true, testNow)
	require.NoError(t, err)

	doc := k.Document()
	reloaded, err := FromDocument(&chaincfg.RegressionNetParams, doc)
	require.NoError(t, err)
	assert.False(t, reloaded.Dirty())
	assert.Equal(t, doc, reloaded.Document())
	require.NoError(t, reloaded.Check())

	// Counters survive, so the next address continues the sequence.
	want, _, err := k.NewAddress("savings", true, testNow)
	require.NoError(t, err)
	got, _, err := reloaded.NewAddress("savings", true, testNow)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = FromDocument(&chaincfg.RegressionNetParams, &Document{Version: 2})
	require.Error(t, err)
}
