package model

// SandboxHandle identifies one ephemeral forked-chain instance.
type SandboxHandle struct {
	ID          string `json:"id"`
	RPCEndpoint string `json:"rpc_endpoint"`
}
