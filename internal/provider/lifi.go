package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bridgeScope/internal/model"
	"bridgeScope/internal/retry"
)

const defaultLiFiAPI = "https://li.quest"

type LiFiConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Retry      retry.Config
}

// LiFiProvider quotes through the LI.FI aggregator.
type LiFiProvider struct {
	baseURL string
	api     *apiClient
	logger  *zap.Logger
}

func NewLiFi(cfg LiFiConfig, logger *zap.Logger) *LiFiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultLiFiAPI
	}
	api := newAPIClient(LiFi, cfg.HTTPClient, cfg.Retry, logger)
	if cfg.APIKey != "" {
		api.header.Set("x-lifi-api-key", cfg.APIKey)
	}
	return &LiFiProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		api:     api,
		logger:  api.logger,
	}
}

type lifiResponse struct {
	Estimate struct {
		ToAmount string `json:"toAmount"`
		FeeCosts []struct {
			AmountUSD string `json:"amountUSD"`
			Included  bool   `json:"included"`
		} `json:"feeCosts"`
	} `json:"estimate"`
	TransactionRequest json.RawMessage `json:"transactionRequest"`
}

func tokenParam(token model.TokenInfo) string {
	if token.Address == nil {
		return common.Address{}.Hex()
	}
	return strings.ToLower(token.Address.Hex())
}

func (p *LiFiProvider) Quote(ctx context.Context, req QuoteRequest) (*model.Quote, error) {
	params := url.Values{}
	params.Set("fromChain", strconv.FormatUint(req.SourceChainID, 10))
	params.Set("toChain", strconv.FormatUint(req.DestChainID, 10))
	params.Set("fromToken", tokenParam(req.SourceToken))
	params.Set("toToken", tokenParam(req.DestToken))
	params.Set("fromAmount", req.AmountIn.String())
	params.Set("fromAddress", req.Account.Hex())

	var resp lifiResponse
	if err := p.api.get(ctx, p.baseURL+"/v1/quote?"+params.Encode(), &resp); err != nil {
		var status *StatusError
		if errors.As(err, &status) && status.Code == http.StatusNotFound && !req.Pinned() {
			p.logger.Info("no lifi route", zap.String("reason", status.Body))
			return nil, nil
		}
		return settle(p.logger, req, LiFi, err)
	}
	if len(resp.TransactionRequest) == 0 {
		return settle(p.logger, req, LiFi, fmt.Errorf("lifi transaction request is undefined"))
	}

	tx, err := decodeLiFiTx(resp.TransactionRequest)
	if err != nil {
		return settle(p.logger, req, LiFi, err)
	}
	amountOut, err := model.ParseAmount(resp.Estimate.ToAmount)
	if err != nil {
		return settle(p.logger, req, LiFi, err)
	}

	fee := decimal.Zero
	for _, cost := range resp.Estimate.FeeCosts {
		if cost.Included || cost.AmountUSD == "" {
			continue
		}
		usd, err := decimal.NewFromString(cost.AmountUSD)
		if err != nil {
			return settle(p.logger, req, LiFi, fmt.Errorf("fee cost %q: %w", cost.AmountUSD, err))
		}
		fee = fee.Add(usd)
	}

	return &model.Quote{
		AmountOut: amountOut,
		Txs:       []model.Transaction{tx},
		Source:    LiFi,
		USDFee:    fee,
	}, nil
}

func decodeLiFiTx(raw json.RawMessage) (model.Transaction, error) {
	var tx model.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return tx, err
	}
	var extra struct {
		GasLimit json.RawMessage `json:"gasLimit"`
	}
	if err := json.Unmarshal(raw, &extra); err != nil {
		return tx, err
	}
	if tx.Gas == nil && len(extra.GasLimit) > 0 {
		gas, err := model.ParseQuantity(extra.GasLimit)
		if err != nil {
			return tx, fmt.Errorf("gas limit: %w", err)
		}
		if gas.Sign() > 0 && gas.IsUint64() {
			g := gas.Uint64()
			tx.Gas = &g
		}
	}
	return tx, nil
}
