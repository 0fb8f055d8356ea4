package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	tokenA = common.HexToAddress("0xa1")
	tokenB = common.HexToAddress("0xb1")
	alice  = common.HexToAddress("0x01")
	bob    = common.HexToAddress("0x02")
)

func TestLedger(t *testing.T) {
	l := New(zaptest.NewLogger(t))

	t.Run("MintAndTransfer", func(t *testing.T) {
		require.NoError(t, l.Mint(tokenA, alice, big.NewInt(100)))
		require.NoError(t, l.Transfer(tokenA, alice, bob, big.NewInt(40)))

		assert.Equal(t, "60", l.BalanceOf(tokenA, alice).String())
		assert.Equal(t, "40", l.BalanceOf(tokenA, bob).String())
		assert.Equal(t, "0", l.BalanceOf(tokenB, bob).String())
		assert.Zero(t, l.JournalLength())
	})

	t.Run("TransferInsufficient", func(t *testing.T) {
		err := l.Transfer(tokenA, bob, alice, big.NewInt(41))
		require.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, "40", l.BalanceOf(tokenA, bob).String())
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		require.ErrorIs(t, l.Transfer(tokenA, alice, bob, big.NewInt(-1)), ErrInvalidAmount)
		require.ErrorIs(t, l.Mint(tokenA, alice, nil), ErrInvalidAmount)
	})

	t.Run("ApproveAndTransferFrom", func(t *testing.T) {
		require.NoError(t, l.Approve(tokenA, alice, bob, big.NewInt(30)))
		assert.Equal(t, "30", l.Allowance(tokenA, alice, bob).String())

		err := l.TransferFrom(tokenA, bob, alice, bob, big.NewInt(31))
		require.ErrorIs(t, err, ErrInsufficientAllowance)

		require.NoError(t, l.TransferFrom(tokenA, bob, alice, bob, big.NewInt(30)))
		assert.Equal(t, "0", l.Allowance(tokenA, alice, bob).String())
		assert.Equal(t, "30", l.BalanceOf(tokenA, alice).String())
		assert.Equal(t, "70", l.BalanceOf(tokenA, bob).String())
	})
}

func TestLedgerSnapshots(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	require.NoError(t, l.Mint(tokenA, alice, big.NewInt(100)))

	t.Run("RevertRestoresEverything", func(t *testing.T) {
		snap := l.Snapshot()
		require.NoError(t, l.Transfer(tokenA, alice, bob, big.NewInt(10)))
		require.NoError(t, l.Mint(tokenB, bob, big.NewInt(5)))
		require.NoError(t, l.Approve(tokenA, alice, bob, big.NewInt(7)))
		assert.NotZero(t, l.JournalLength())

		require.NoError(t, l.RevertToSnapshot(snap))
		assert.Equal(t, "100", l.BalanceOf(tokenA, alice).String())
		assert.Equal(t, "0", l.BalanceOf(tokenA, bob).String())
		assert.Equal(t, "0", l.BalanceOf(tokenB, bob).String())
		assert.Equal(t, "0", l.Allowance(tokenA, alice, bob).String())
		assert.Zero(t, l.JournalLength())
	})

	t.Run("NestedRevertKeepsOuter", func(t *testing.T) {
		outer := l.Snapshot()
		require.NoError(t, l.Transfer(tokenA, alice, bob, big.NewInt(10)))

		inner := l.Snapshot()
		require.NoError(t, l.Transfer(tokenA, alice, bob, big.NewInt(20)))
		require.NoError(t, l.RevertToSnapshot(inner))
		assert.Equal(t, "10", l.BalanceOf(tokenA, bob).String())

		require.NoError(t, l.RevertToSnapshot(outer))
		assert.Equal(t, "0", l.BalanceOf(tokenA, bob).String())
	})

	t.Run("CommitIsFinal", func(t *testing.T) {
		snap := l.Snapshot()
		require.NoError(t, l.Transfer(tokenA, alice, bob, big.NewInt(25)))
		require.NoError(t, l.Commit(snap))
		assert.Zero(t, l.JournalLength())

		require.ErrorIs(t, l.RevertToSnapshot(snap), ErrUnknownSnapshot)
		assert.Equal(t, "25", l.BalanceOf(tokenA, bob).String())
	})

	t.Run("InnerCommitStillRevertible", func(t *testing.T) {
		outer := l.Snapshot()
		inner := l.Snapshot()
		require.NoError(t, l.Transfer(tokenA, alice, bob, big.NewInt(5)))
		require.NoError(t, l.Commit(inner))

		require.NoError(t, l.RevertToSnapshot(outer))
		assert.Equal(t, "25", l.BalanceOf(tokenA, bob).String())
	})
}
