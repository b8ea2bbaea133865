package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferMovesBalance(t *testing.T) {
	l := NewMemoryLedger()
	l.Credit("alice", "USD", big.NewInt(100))

	require.NoError(t, l.Transfer(context.Background(), "alice", "bob", "USD", big.NewInt(40)))
	assert.Equal(t, big.NewInt(60), l.Balance("alice", "USD"))
	assert.Equal(t, big.NewInt(40), l.Balance("bob", "USD"))
}

func TestTransferRejectsInsufficientBalance(t *testing.T) {
	l := NewMemoryLedger()
	l.Credit("alice", "USD", big.NewInt(10))
	err := l.Transfer(context.Background(), "alice", "bob", "USD", big.NewInt(11))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, big.NewInt(10), l.Balance("alice", "USD"))
}

func TestTransferZeroAmountIsNoop(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.Transfer(context.Background(), "alice", "bob", "USD", big.NewInt(0)))
	assert.Equal(t, big.NewInt(0), l.Balance("bob", "USD"))
}

func TestBalanceIsIndependentPerAsset(t *testing.T) {
	l := NewMemoryLedger()
	l.Credit("alice", "BTC", big.NewInt(5))
	assert.Equal(t, big.NewInt(0), l.Balance("alice", "USD"))
	assert.Equal(t, big.NewInt(5), l.Balance("alice", "BTC"))
}
