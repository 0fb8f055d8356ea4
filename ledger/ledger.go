package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrUnknownSnapshot       = errors.New("unknown snapshot")
)

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

type balanceKey struct {
	token  common.Address
	holder common.Address
}

// journalEntry restores one slot to the value it held before a mutation.
// A nil prev means the slot did not exist.
type journalEntry struct {
	balance   *balanceKey
	allowance *allowanceKey
	prev      *big.Int
}

type revision struct {
	id           int
	journalIndex int
}

// Ledger is an in-memory ERC20-style token ledger with a geth-style undo journal.
// All balances touched by one unit of execution can be rolled back with
// RevertToSnapshot, which is what makes an arbitrage all-or-nothing.
type Ledger struct {
	mu             sync.Mutex
	balances       map[balanceKey]*big.Int
	allowances     map[allowanceKey]*big.Int
	journal        []journalEntry
	validRevisions []revision
	nextRevisionID int
	logger         *zap.Logger
}

// New creates an empty ledger
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		logger:     logger,
	}
}

// BalanceOf returns a copy of holder's balance of token
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(token, holder))
}

// Allowance returns a copy of what spender may pull from owner
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Mint credits amount of token to holder
func (l *Ledger) Mint(token, holder common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setBalanceLocked(token, holder, new(big.Int).Add(l.balanceLocked(token, holder), amount))
	return nil
}

// Transfer moves amount of token from one holder to another
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(token, from, to, amount)
}

// Approve sets spender's allowance over owner's token balance
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{token, owner, spender}
	l.recordLocked(journalEntry{allowance: &key, prev: copyOrNil(l.allowances[key])})
	l.allowances[key] = new(big.Int).Set(amount)
	return nil
}

// TransferFrom lets spender move amount of owner's token to to, consuming allowance
func (l *Ledger) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{token, owner, spender}
	allowed := l.allowances[key]
	if allowed == nil || allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowed %s, need %s", ErrInsufficientAllowance, spender.Hex(), bigString(allowed), amount)
	}
	if l.balanceLocked(token, owner).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance, owner.Hex(), l.balanceLocked(token, owner), amount)
	}

	l.recordLocked(journalEntry{allowance: &key, prev: copyOrNil(allowed)})
	l.allowances[key] = new(big.Int).Sub(allowed, amount)
	return l.transferLocked(token, owner, to, amount)
}

// Snapshot returns a revision id for the current state
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextRevisionID
	l.nextRevisionID++
	l.validRevisions = append(l.validRevisions, revision{id, len(l.journal)})
	return id
}

// RevertToSnapshot undoes every mutation made after the given snapshot
func (l *Ledger) RevertToSnapshot(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.revisionIndexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	snapshot := l.validRevisions[idx].journalIndex

	for i := len(l.journal) - 1; i >= snapshot; i-- {
		l.undoLocked(l.journal[i])
	}
	l.journal = l.journal[:snapshot]
	l.validRevisions = l.validRevisions[:idx]
	l.compactLocked()

	l.logger.Debug("Ledger reverted", zap.Int("snapshot", id))
	return nil
}

// Commit keeps every mutation made since the snapshot and forgets the revision
// (and any revision taken after it).
func (l *Ledger) Commit(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.revisionIndexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	l.validRevisions = l.validRevisions[:idx]
	l.compactLocked()
	return nil
}

// JournalLength reports the number of undo entries held; zero outside any snapshot
func (l *Ledger) JournalLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journal)
}

func (l *Ledger) transferLocked(token, from, to common.Address, amount *big.Int) error {
	fromBal := l.balanceLocked(token, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, need %s", ErrInsufficientBalance, from.Hex(), fromBal, token.Hex(), amount)
	}
	if from == to {
		return nil
	}
	l.setBalanceLocked(token, from, new(big.Int).Sub(fromBal, amount))
	l.setBalanceLocked(token, to, new(big.Int).Add(l.balanceLocked(token, to), amount))
	return nil
}

func (l *Ledger) balanceLocked(token, holder common.Address) *big.Int {
	if v, ok := l.balances[balanceKey{token, holder}]; ok {
		return v
	}
	return new(big.Int)
}

func (l *Ledger) setBalanceLocked(token, holder common.Address, v *big.Int) {
	key := balanceKey{token, holder}
	l.recordLocked(journalEntry{balance: &key, prev: copyOrNil(l.balances[key])})
	l.balances[key] = v
}

// recordLocked journals an undo entry; writes outside any snapshot are final
func (l *Ledger) recordLocked(e journalEntry) {
	if len(l.validRevisions) == 0 {
		return
	}
	l.journal = append(l.journal, e)
}

func (l *Ledger) undoLocked(e journalEntry) {
	switch {
	case e.balance != nil:
		if e.prev == nil {
			delete(l.balances, *e.balance)
		} else {
			l.balances[*e.balance] = e.prev
		}
	case e.allowance != nil:
		if e.prev == nil {
			delete(l.allowances, *e.allowance)
		} else {
			l.allowances[*e.allowance] = e.prev
		}
	}
}

func (l *Ledger) revisionIndexLocked(id int) int {
	for i := len(l.validRevisions) - 1; i >= 0; i-- {
		if l.validRevisions[i].id == id {
			return i
		}
	}
	return -1
}

// compactLocked drops the journal once nothing can be reverted anymore
func (l *Ledger) compactLocked() {
	if len(l.validRevisions) == 0 {
		l.journal = l.journal[:0]
	}
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func copyOrNil(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
