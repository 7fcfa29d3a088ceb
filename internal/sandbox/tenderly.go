package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"bridgeScope/internal/httpjson"
	"bridgeScope/internal/model"
	"bridgeScope/internal/retry"
)

const (
	adminRPCName       = "Admin RPC"
	statusRunning      = "RUNNING"
	defaultAPIBase     = "https://api.tenderly.co/api/v1"
	defaultHTTPTimeout = 30 * time.Second
)

// TenderlyConfig holds credentials and tuning for the virtual testnet API.
type TenderlyConfig struct {
	APIBase      string
	User         string
	Project      string
	AccessKey    string
	SlugPrefix   string
	CreateRetry  retry.Config
	PollInterval time.Duration
	ReadyTimeout time.Duration
	HTTPClient   *http.Client
}

// DefaultTenderlyConfig returns the API defaults: three create attempts from a
// 2.5s base, and clone readiness polled every 500ms for up to 10s.
func DefaultTenderlyConfig() TenderlyConfig {
	return TenderlyConfig{
		APIBase:      defaultAPIBase,
		SlugPrefix:   "bridgescope",
		CreateRetry:  retry.Attempts(3, 2500*time.Millisecond),
		PollInterval: 500 * time.Millisecond,
		ReadyTimeout: 10 * time.Second,
	}
}

// Tenderly implements Service against Tenderly virtual testnets.
type Tenderly struct {
	cfg    TenderlyConfig
	api    *httpjson.Client
	logger *zap.Logger

	mu    sync.RWMutex
	byRPC map[string]model.SandboxHandle
}

// NewTenderly builds a Tenderly service. Zero config fields take DefaultTenderlyConfig values.
func NewTenderly(cfg TenderlyConfig, logger *zap.Logger) *Tenderly {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultTenderlyConfig()
	if cfg.APIBase == "" {
		cfg.APIBase = defaults.APIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.SlugPrefix == "" {
		cfg.SlugPrefix = defaults.SlugPrefix
	}
	if cfg.CreateRetry.BaseDelay <= 0 {
		cfg.CreateRetry = defaults.CreateRetry
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaults.ReadyTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	api := httpjson.New(client)
	api.Header.Set("X-Access-Key", cfg.AccessKey)
	return &Tenderly{
		cfg:    cfg,
		api:    api,
		logger: logger,
		byRPC:  make(map[string]model.SandboxHandle),
	}
}

type createVnetRequest struct {
	Slug          string           `json:"slug"`
	ForkConfig    forkConfig       `json:"fork_config"`
	VirtualConfig virtualNetConfig `json:"virtual_network_config"`
}

type forkConfig struct {
	NetworkID   uint64  `json:"network_id"`
	BlockNumber *uint64 `json:"block_number,omitempty"`
}

type virtualNetConfig struct {
	ChainConfig struct {
		ChainID uint64 `json:"chain_id"`
	} `json:"chain_config"`
}

type createVnetResponse struct {
	ID   string `json:"id"`
	RPCs []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"rpcs"`
}

type cloneRequest struct {
	SrcContainerID          string  `json:"srcContainerId"`
	DstContainerDisplayName *string `json:"dstContainerDisplayName"`
}

type cloneResponse struct {
	ID                 string `json:"id"`
	ConnectivityConfig struct {
		Endpoints []struct {
			DisplayName string `json:"displayName"`
			URI         string `json:"uri"`
		} `json:"endpoints"`
	} `json:"connectivityConfig"`
}

type containerResponse struct {
	Container struct {
		Status string `json:"status"`
	} `json:"container"`
}

// Create forks chainID into a new virtual testnet.
func (t *Tenderly) Create(ctx context.Context, chainID uint64, block *uint64) (model.SandboxHandle, error) {
	req := createVnetRequest{
		Slug:       fmt.Sprintf("%s-%d", t.cfg.SlugPrefix, time.Now().UnixNano()),
		ForkConfig: forkConfig{NetworkID: chainID, BlockNumber: block},
	}
	req.VirtualConfig.ChainConfig.ChainID = chainID

	var handle model.SandboxHandle
	cfg := t.cfg.CreateRetry
	cfg.OnRetry = func(attempt int, err error) {
		t.logger.Warn("create sandbox failed", zap.Uint64("chain_id", chainID), zap.Int("attempt", attempt), zap.Error(err))
	}
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		var resp createVnetResponse
		if err := t.do(ctx, http.MethodPost, t.projectURL("/vnets"), req, &resp); err != nil {
			return err
		}
		for _, rpc := range resp.RPCs {
			if rpc.Name == adminRPCName {
				handle = model.SandboxHandle{ID: resp.ID, RPCEndpoint: rpc.URL}
				return nil
			}
		}
		return fmt.Errorf("sandbox %s has no admin rpc", resp.ID)
	})
	if err != nil {
		return model.SandboxHandle{}, fmt.Errorf("create sandbox for chain %d: %w", chainID, err)
	}

	t.remember(handle)
	return handle, nil
}

// Clone duplicates originID and waits for the copy to be running.
func (t *Tenderly) Clone(ctx context.Context, originID string) (model.SandboxHandle, error) {
	var resp cloneResponse
	if err := t.do(ctx, http.MethodPost, t.projectURL("/testnet/clone"), cloneRequest{SrcContainerID: originID}, &resp); err != nil {
		return model.SandboxHandle{}, fmt.Errorf("clone sandbox %s: %w", originID, err)
	}

	handle := model.SandboxHandle{ID: resp.ID}
	for _, endpoint := range resp.ConnectivityConfig.Endpoints {
		if endpoint.DisplayName == adminRPCName {
			handle.RPCEndpoint = endpoint.URI
			break
		}
	}
	if handle.RPCEndpoint == "" {
		return model.SandboxHandle{}, fmt.Errorf("clone %s of %s has no admin rpc", resp.ID, originID)
	}

	if err := t.waitRunning(ctx, handle.ID); err != nil {
		return model.SandboxHandle{}, err
	}

	t.remember(handle)
	return handle, nil
}

// Resolve returns the handle of a sandbox created or cloned by this service.
func (t *Tenderly) Resolve(rpcEndpoint string) (model.SandboxHandle, bool) {
	t.mu.RLock()
	handle, ok := t.byRPC[rpcEndpoint]
	t.mu.RUnlock()
	return handle, ok
}

// Track registers a sandbox created outside this process so it can be resolved.
func (t *Tenderly) Track(handle model.SandboxHandle) {
	t.remember(handle)
}

func (t *Tenderly) remember(handle model.SandboxHandle) {
	t.mu.Lock()
	t.byRPC[handle.RPCEndpoint] = handle
	t.mu.Unlock()
}

func (t *Tenderly) waitRunning(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var resp containerResponse
		err := t.do(ctx, http.MethodGet, t.projectURL("/testnet/container/"+id), nil, &resp)
		if err == nil && resp.Container.Status == statusRunning {
			return nil
		}
		if err != nil {
			t.logger.Debug("sandbox status check failed", zap.String("sandbox", id), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("sandbox %s not running: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (t *Tenderly) projectURL(path string) string {
	return fmt.Sprintf("%s/account/%s/project/%s%s", t.cfg.APIBase, t.cfg.User, t.cfg.Project, path)
}

func (t *Tenderly) do(ctx context.Context, method, url string, body, out any) error {
	if err := t.api.Do(ctx, method, url, body, out); err != nil {
		return fmt.Errorf("tenderly: %w", err)
	}
	return nil
}
