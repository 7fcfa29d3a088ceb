package erc20

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type stubCaller struct {
	gotTo   common.Address
	gotData []byte
	resp    []byte
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.gotTo = *msg.To
	s.gotData = msg.Data
	return s.resp, nil
}

func TestBalanceOf(t *testing.T) {
	parsed, err := ABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	resp, err := parsed.Methods["balanceOf"].Outputs.Pack(big.NewInt(12345))
	if err != nil {
		t.Fatalf("pack output: %v", err)
	}

	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	account := common.HexToAddress("0x2222222222222222222222222222222222222222")
	caller := &stubCaller{resp: resp}

	balance, err := BalanceOf(context.Background(), caller, token, account)
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if balance.Int64() != 12345 {
		t.Fatalf("balance mismatch: %s", balance)
	}
	if caller.gotTo != token {
		t.Fatalf("call target mismatch: %s", caller.gotTo.Hex())
	}
	if hexutil.Encode(caller.gotData[:4]) != "0x70a08231" {
		t.Fatalf("selector mismatch: %x", caller.gotData[:4])
	}
}

func TestPackApproveUnlimited(t *testing.T) {
	spender := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data, err := PackApprove(spender, MaxUint256)
	if err != nil {
		t.Fatalf("pack approve: %v", err)
	}
	if len(data) != 4+64 {
		t.Fatalf("calldata length mismatch: %d", len(data))
	}
	if hexutil.Encode(data[:4]) != "0x095ea7b3" {
		t.Fatalf("selector mismatch: %x", data[:4])
	}
	amount := new(big.Int).SetBytes(data[36:])
	if amount.Cmp(MaxUint256) != 0 {
		t.Fatalf("amount mismatch: %s", amount)
	}
}
