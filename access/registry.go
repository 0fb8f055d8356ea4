package access

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
)

// Registry holds the owner, the supported DEX whitelist, the authorized
// caller set and the emergency pause flag. Only the owner mutates it.
type Registry struct {
	mu                sync.RWMutex
	owner             common.Address
	supportedDEXs     map[common.Address]struct{}
	authorizedCallers map[common.Address]struct{}
	paused            bool
	logger            *zap.Logger
}

// NewRegistry creates a registry owned by its deployer
func NewRegistry(owner common.Address, logger *zap.Logger) (*Registry, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner cannot be the zero address", types.ErrInvalidRequest)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		owner:             owner,
		supportedDEXs:     make(map[common.Address]struct{}),
		authorizedCallers: make(map[common.Address]struct{}),
		logger:            logger,
	}, nil
}

// Owner returns the current owner
func (r *Registry) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

func (r *Registry) IsSupportedDEX(dex common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.supportedDEXs[dex]
	return ok
}

func (r *Registry) IsAuthorizedCaller(caller common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.authorizedCallers[caller]
	return ok
}

func (r *Registry) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// SupportedDEXs lists the whitelist in address order
func (r *Registry) SupportedDEXs() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.supportedDEXs)
}

// AuthorizedCallers lists the authorized callers in address order
func (r *Registry) AuthorizedCallers() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.authorizedCallers)
}

// AddSupportedDEX whitelists dex. Adding a present entry is a no-op.
func (r *Registry) AddSupportedDEX(sender, dex common.Address) error {
	return r.mutate(sender, "add_supported_dex", dex, func() { r.supportedDEXs[dex] = struct{}{} })
}

// RemoveSupportedDEX drops dex from the whitelist. Removing an absent entry is a no-op.
func (r *Registry) RemoveSupportedDEX(sender, dex common.Address) error {
	return r.mutate(sender, "remove_supported_dex", dex, func() { delete(r.supportedDEXs, dex) })
}

func (r *Registry) AddAuthorizedCaller(sender, caller common.Address) error {
	return r.mutate(sender, "add_authorized_caller", caller, func() { r.authorizedCallers[caller] = struct{}{} })
}

func (r *Registry) RemoveAuthorizedCaller(sender, caller common.Address) error {
	return r.mutate(sender, "remove_authorized_caller", caller, func() { delete(r.authorizedCallers, caller) })
}

// TransferOwnership hands the registry to newOwner
func (r *Registry) TransferOwnership(sender, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return fmt.Errorf("%w: new owner cannot be the zero address", types.ErrInvalidRequest)
	}
	return r.mutate(sender, "transfer_ownership", newOwner, func() { r.owner = newOwner })
}

// Pause blocks new executions until Unpause
func (r *Registry) Pause(sender common.Address) error {
	return r.mutate(sender, "pause", sender, func() { r.paused = true })
}

func (r *Registry) Unpause(sender common.Address) error {
	return r.mutate(sender, "unpause", sender, func() { r.paused = false })
}

// RequireOwner fails with ErrUnauthorized unless sender is the owner
func (r *Registry) RequireOwner(sender common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sender != r.owner {
		return fmt.Errorf("%w: %s is not the owner", types.ErrUnauthorized, sender.Hex())
	}
	return nil
}

func (r *Registry) mutate(sender common.Address, op string, subject common.Address, apply func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sender != r.owner {
		r.logger.Warn("Rejected registry mutation",
			zap.String("op", op),
			zap.String("sender", sender.Hex()))
		return fmt.Errorf("%w: %s is not the owner", types.ErrUnauthorized, sender.Hex())
	}

	apply()
	r.logger.Info("Registry updated",
		zap.String("op", op),
		zap.String("subject", subject.Hex()))
	return nil
}

func sortedKeys(set map[common.Address]struct{}) []common.Address {
	out := make([]common.Address, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
