package sandbox

import (
	"context"

	"bridgeScope/internal/model"
)

// Service provisions ephemeral forked-chain sandboxes.
type Service interface {
	// Create forks chainID at block, or at the current head when block is nil.
	Create(ctx context.Context, chainID uint64, block *uint64) (model.SandboxHandle, error)
	// Clone duplicates the state of an existing sandbox.
	Clone(ctx context.Context, originID string) (model.SandboxHandle, error)
	// Resolve maps an rpc endpoint back to the sandbox that serves it.
	Resolve(rpcEndpoint string) (model.SandboxHandle, bool)
}
