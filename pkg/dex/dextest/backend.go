package dextest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"flashtrade/pkg/chain"
)

// CallHandler answers one contract method. It receives the unpacked
// inputs and returns the values to pack as outputs.
type CallHandler func(args []interface{}) ([]interface{}, error)

type route struct {
	method abi.Method
	fn     CallHandler
}

// FakeBackend is an in-memory chain.Backend. Contract calls are dispatched
// by address and method selector to handlers registered with Handle.
type FakeBackend struct {
	mu sync.Mutex

	chainID  *big.Int
	code     map[common.Address][]byte
	routes   map[common.Address]map[string]route
	receipts map[common.Hash]*types.Receipt

	// Err, when set, fails every call.
	Err error
	// SendErr, when set, fails SendTransaction only.
	SendErr error
	// ReceiptStatus is applied to receipts of sent transactions.
	ReceiptStatus uint64

	calls int
	sent  []*types.Transaction
}

var _ chain.Backend = (*FakeBackend)(nil)

// NewFakeBackend returns a backend serving chainID.
func NewFakeBackend(chainID uint64) *FakeBackend {
	return &FakeBackend{
		chainID:       new(big.Int).SetUint64(chainID),
		code:          make(map[common.Address][]byte),
		routes:        make(map[common.Address]map[string]route),
		receipts:      make(map[common.Hash]*types.Receipt),
		ReceiptStatus: types.ReceiptStatusSuccessful,
	}
}

// SetCode marks addr as a deployed contract.
func (b *FakeBackend) SetCode(addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code[addr] = []byte{0x60, 0x80}
}

// Handle registers fn for calls of method on the contract at addr. Setting
// a handler also marks addr as deployed.
func (b *FakeBackend) Handle(addr common.Address, contract abi.ABI, method string, fn CallHandler) {
	m, ok := contract.Methods[method]
	if !ok {
		panic(fmt.Sprintf("dextest: unknown method %s", method))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.routes[addr] == nil {
		b.routes[addr] = make(map[string]route)
	}
	b.routes[addr][hex.EncodeToString(m.ID)] = route{method: m, fn: fn}
	b.code[addr] = []byte{0x60, 0x80}
}

// Calls counts every backend call, reads and writes alike.
func (b *FakeBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Sent returns the transactions submitted so far.
func (b *FakeBackend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

func (b *FakeBackend) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.Err
}

func (b *FakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(b.chainID), nil
}

func (b *FakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code[account], nil
}

func (b *FakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("execution reverted")
	}

	b.mu.Lock()
	r, ok := b.routes[*msg.To][hex.EncodeToString(msg.Data[:4])]
	b.mu.Unlock()
	if !ok {
		// Calls to unknown code return no data, as a node does.
		return nil, nil
	}

	args, err := r.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	out, err := r.fn(args)
	if err != nil {
		return nil, err
	}
	return r.method.Outputs.Pack(out...)
}

func (b *FakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := b.begin(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

func (b *FakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	return big.NewInt(1_000_000_000), nil
}

func (b *FakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := b.begin(); err != nil {
		return 0, err
	}
	return 150000, nil
}

func (b *FakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := b.begin(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		return b.SendErr
	}
	b.sent = append(b.sent, tx)
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      b.ReceiptStatus,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas(),
		BlockNumber: big.NewInt(int64(len(b.sent))),
	}
	return nil
}

func (b *FakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (b *FakeBackend) Close() {}
