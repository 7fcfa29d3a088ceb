package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bridgeScope/internal/model"
	"bridgeScope/internal/retry"
)

const defaultDebridgeAPI = "https://api.dln.trade"

type DebridgeConfig struct {
	BaseURL             string
	AffiliateFeePercent string
	HTTPClient          *http.Client
	Retry               retry.Config
}

// DebridgeProvider quotes DLN orders.
type DebridgeProvider struct {
	baseURL string
	feePct  string
	api     *apiClient
	logger  *zap.Logger
}

func NewDebridge(cfg DebridgeConfig, logger *zap.Logger) *DebridgeProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDebridgeAPI
	}
	if cfg.AffiliateFeePercent == "" {
		cfg.AffiliateFeePercent = "0.1"
	}
	api := newAPIClient(Debridge, cfg.HTTPClient, cfg.Retry, logger)
	return &DebridgeProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		feePct:  cfg.AffiliateFeePercent,
		api:     api,
		logger:  api.logger,
	}
}

type debridgeResponse struct {
	Estimation struct {
		DstChainTokenOut struct {
			Amount string `json:"amount"`
		} `json:"dstChainTokenOut"`
	} `json:"estimation"`
	Tx *model.Transaction `json:"tx"`
}

func (d *DebridgeProvider) Quote(ctx context.Context, req QuoteRequest) (*model.Quote, error) {
	if req.SourceToken.Address == nil || req.DestToken.Address == nil {
		return nil, nil
	}

	account := req.Account.Hex()
	params := url.Values{}
	params.Set("srcChainId", strconv.FormatUint(req.SourceChainID, 10))
	params.Set("srcChainTokenIn", req.SourceToken.Address.Hex())
	params.Set("srcChainTokenInAmount", req.AmountIn.String())
	params.Set("dstChainId", strconv.FormatUint(req.DestChainID, 10))
	params.Set("dstChainTokenOut", req.DestToken.Address.Hex())
	params.Set("dstChainTokenOutRecipient", account)
	params.Set("srcChainOrderAuthorityAddress", account)
	params.Set("dstChainOrderAuthorityAddress", account)
	params.Set("affiliateFeePercent", d.feePct)
	params.Set("affiliateFeeRecipient", account)

	var resp debridgeResponse
	if err := d.api.get(ctx, d.baseURL+"/v1.0/dln/order/create-tx?"+params.Encode(), &resp); err != nil {
		return settle(d.logger, req, Debridge, err)
	}
	if resp.Tx == nil {
		return settle(d.logger, req, Debridge, fmt.Errorf("response has no transaction"))
	}
	amountOut, err := model.ParseAmount(resp.Estimation.DstChainTokenOut.Amount)
	if err != nil {
		return settle(d.logger, req, Debridge, err)
	}

	return &model.Quote{
		AmountOut: amountOut,
		Txs:       []model.Transaction{*resp.Tx},
		Source:    Debridge,
		USDFee:    decimal.Zero,
	}, nil
}
