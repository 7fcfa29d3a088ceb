package provider

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bridgeScope/internal/chain"
	"bridgeScope/internal/model"
	"bridgeScope/internal/retry"
)

const defaultRelayAPI = "https://api.relay.link"

// Relay only has solver capacity for a handful of currencies.
var relayCurrencies = map[string]bool{
	"degen": true, "eth": true, "usdc": true, "xai": true, "sipher": true,
	"pop": true, "tia": true, "tg7": true, "cgt": true, "omi": true,
}

type RelayConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Retry      retry.Config
}

// RelayProvider quotes reservoir relay bridges.
type RelayProvider struct {
	baseURL string
	api     *apiClient
	logger  *zap.Logger
}

func NewRelay(cfg RelayConfig, logger *zap.Logger) *RelayProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRelayAPI
	}
	api := newAPIClient(Reservoir, cfg.HTTPClient, cfg.Retry, logger)
	return &RelayProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		api:     api,
		logger:  api.logger,
	}
}

type relayQuoteRequest struct {
	User                string `json:"user"`
	Recipient           string `json:"recipient"`
	OriginChainID       uint64 `json:"originChainId"`
	DestinationChainID  uint64 `json:"destinationChainId"`
	OriginCurrency      string `json:"originCurrency"`
	DestinationCurrency string `json:"destinationCurrency"`
	Amount              string `json:"amount"`
	TradeType           string `json:"tradeType"`
}

type relayFee struct {
	Amount string `json:"amount"`
}

type relayQuoteResponse struct {
	Steps []struct {
		Items []struct {
			Data *model.Transaction `json:"data"`
		} `json:"items"`
	} `json:"steps"`
	Fees *struct {
		RelayerService relayFee `json:"relayerService"`
		RelayerGas     relayFee `json:"relayerGas"`
		App            relayFee `json:"app"`
	} `json:"fees"`
}

func (r *RelayProvider) Quote(ctx context.Context, req QuoteRequest) (*model.Quote, error) {
	symbol := strings.ToLower(req.SourceToken.Symbol)
	if !relayCurrencies[symbol] {
		return nil, nil
	}
	// USDC into Base would arrive as USDbC.
	if symbol == "usdc" && req.DestChainID == chain.Base {
		r.logger.Debug("skipping usdc to base")
		return nil, nil
	}

	body := relayQuoteRequest{
		User:                req.Account.Hex(),
		Recipient:           req.Account.Hex(),
		OriginChainID:       req.SourceChainID,
		DestinationChainID:  req.DestChainID,
		OriginCurrency:      tokenParam(req.SourceToken),
		DestinationCurrency: tokenParam(req.DestToken),
		Amount:              req.AmountIn.String(),
		TradeType:           "EXACT_INPUT",
	}

	var resp relayQuoteResponse
	if err := r.api.post(ctx, r.baseURL+"/quote", body, &resp); err != nil {
		return settle(r.logger, req, Reservoir, err)
	}
	if len(resp.Steps) == 0 || len(resp.Steps[0].Items) == 0 || resp.Steps[0].Items[0].Data == nil {
		return settle(r.logger, req, Reservoir, fmt.Errorf("quote has no executable step"))
	}
	if resp.Fees == nil {
		return settle(r.logger, req, Reservoir, fmt.Errorf("quote has no fees"))
	}

	totalFee := new(big.Int)
	for _, fee := range []relayFee{resp.Fees.RelayerService, resp.Fees.RelayerGas, resp.Fees.App} {
		amount, err := model.ParseAmount(fee.Amount)
		if err != nil {
			return settle(r.logger, req, Reservoir, err)
		}
		totalFee.Add(totalFee, amount)
	}
	amountOut := new(big.Int).Sub(req.AmountIn, totalFee)
	if amountOut.Sign() <= 0 {
		return settle(r.logger, req, Reservoir, fmt.Errorf("fees %s exceed amount %s", totalFee, req.AmountIn))
	}

	return &model.Quote{
		AmountOut: amountOut,
		Txs:       []model.Transaction{*resp.Steps[0].Items[0].Data},
		Source:    Reservoir,
		USDFee:    decimal.Zero,
	}, nil
}
