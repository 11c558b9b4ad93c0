// Package campaigntest 提供内存中的众筹合约，用于测试。
//
// Backend 的只读调用结果经过真实 ABI 编码再解码，与链上返回的数据形态一致。
package campaigntest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/blues/tcf/internal/chain"
	"github.com/blues/tcf/internal/model"
	"github.com/blues/tcf/internal/money"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// 测试用地址
var (
	CrowdfundingAddress = common.HexToAddress("0x49F96B98d04e8F2530C4D667b3534c0401B141AC")
	TokenAddress        = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	Signer              = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

// Tuple 合约 Campaign 结构体
type Tuple struct {
	Owner           common.Address
	Title           string
	Description     string
	Category        string
	Target          *big.Int
	Deadline        *big.Int
	AmountCollected *big.Int
	Image           string
	TokenPrice      *big.Int
	TokensForSale   *big.Int
	TokensSold      *big.Int
	HasEnded        bool
	HasWithdrawed   bool
	IsWithdrawable  bool
	IsSuccessful    bool
	Contributors    []common.Address
	Donations       []*big.Int
}

// Sent 一次 Transact 调用
type Sent struct {
	Contract string
	Method   string
	Value    *big.Int
	Args     []interface{}
	Tx       *types.Transaction
}

// Backend 内存合约，实现 campaign.Backend
type Backend struct {
	mu        sync.Mutex
	abis      map[string]abi.ABI
	campaigns []Tuple
	sent      []Sent
	nonce     uint64

	// 按方法名注入错误
	CallErrors     map[string]error
	TransactErrors map[string]error
	MineErrors     map[string]error

	// ReadOnly 模拟未配置私钥
	ReadOnly bool
}

// NewBackend 创建内存合约
func NewBackend() *Backend {
	return &Backend{
		abis: map[string]abi.ABI{
			chain.ContractCrowdfunding: chain.MustDefaultABI(chain.ContractCrowdfunding),
			chain.ContractToken:        chain.MustDefaultABI(chain.ContractToken),
		},
		CallErrors:     make(map[string]error),
		TransactErrors: make(map[string]error),
		MineErrors:     make(map[string]error),
	}
}

// Add 按人类可读金额添加活动，返回 pId
func (b *Backend) Add(c model.Campaign, donations ...model.Donation) int64 {
	t := Tuple{
		Owner:           common.HexToAddress(c.Owner),
		Title:           c.Title,
		Description:     c.Description,
		Category:        c.Category,
		Image:           c.Image,
		Target:          units(c.Target),
		Deadline:        big.NewInt(c.Deadline.UnixMilli()),
		AmountCollected: units(c.AmountCollected),
		TokenPrice:      units(c.TokenPrice),
		TokensForSale:   units(c.TokensForSale),
		TokensSold:      units(c.TokensSold),
		HasEnded:        c.HasEnded,
		HasWithdrawed:   c.HasWithdrawed,
		IsWithdrawable:  c.IsWithdrawable,
		IsSuccessful:    c.IsSuccessful,
		Contributors:    []common.Address{},
		Donations:       []*big.Int{},
	}
	for _, d := range donations {
		t.Contributors = append(t.Contributors, common.HexToAddress(d.Donator))
		t.Donations = append(t.Donations, units(d.Donation))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.campaigns = append(b.campaigns, t)
	return int64(len(b.campaigns) - 1)
}

// Campaign 返回内部状态的副本
func (b *Backend) Campaign(pId int64) Tuple {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.campaigns[pId]
}

// Sent 返回所有已发送的交易
func (b *Backend) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sent(nil), b.sent...)
}

// Methods 返回已发送交易的方法名
func (b *Backend) Methods() []string {
	methods := make([]string, 0)
	for _, s := range b.Sent() {
		methods = append(methods, s.Method)
	}
	return methods
}

// Address 实现 campaign.Backend
func (b *Backend) Address(contractName string) (common.Address, error) {
	switch contractName {
	case chain.ContractCrowdfunding:
		return CrowdfundingAddress, nil
	case chain.ContractToken:
		return TokenAddress, nil
	}
	return common.Address{}, fmt.Errorf("contract %s not found", contractName)
}

// From 实现 campaign.Backend
func (b *Backend) From() common.Address {
	if b.ReadOnly {
		return common.Address{}
	}
	return Signer
}

// Call 实现 campaign.Backend
func (b *Backend) Call(ctx context.Context, contractName string, result *[]interface{}, method string, args ...interface{}) error {
	if err := b.CallErrors[method]; err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.abis[contractName].Methods[method]
	if !ok {
		return fmt.Errorf("method %s not found on %s", method, contractName)
	}

	var values []interface{}
	switch method {
	case "getCampaigns":
		values = []interface{}{append([]Tuple{}, b.campaigns...)}
	case "getCampaignById":
		id := args[0].(*big.Int).Int64()
		if id >= int64(len(b.campaigns)) {
			values = []interface{}{emptyTuple()}
		} else {
			values = []interface{}{b.campaigns[id]}
		}
	case "getDonators":
		id := args[0].(*big.Int).Int64()
		if id >= int64(len(b.campaigns)) {
			return errors.New("execution reverted: campaign does not exist")
		}
		values = []interface{}{b.campaigns[id].Contributors, b.campaigns[id].Donations}
	default:
		return fmt.Errorf("unsupported call %s", method)
	}

	data, err := m.Outputs.Pack(values...)
	if err != nil {
		return err
	}
	out, err := m.Outputs.Unpack(data)
	if err != nil {
		return err
	}
	*result = out
	return nil
}

// Transact 实现 campaign.Backend，并模拟合约状态变化
func (b *Backend) Transact(ctx context.Context, contractName string, value *big.Int, method string, args ...interface{}) (*types.Transaction, error) {
	if b.ReadOnly {
		return nil, chain.ErrReadOnly
	}
	if err := b.TransactErrors[method]; err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.abis[contractName].Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found on %s", method, contractName)
	}
	if _, err := m.Inputs.Pack(args...); err != nil {
		return nil, err
	}

	if b.MineErrors[method] == nil {
		if err := b.apply(method, value, args); err != nil {
			return nil, err
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce: b.nonce,
		To:    &CrowdfundingAddress,
		Value: valueOrZero(value),
		Data:  []byte(method),
	})
	b.nonce++
	b.sent = append(b.sent, Sent{Contract: contractName, Method: method, Value: value, Args: args, Tx: tx})
	return tx, nil
}

// WaitMined 实现 campaign.Backend
func (b *Backend) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	method := string(tx.Data())
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(100 + tx.Nonce())),
	}
	if err := b.MineErrors[method]; err != nil {
		receipt.Status = types.ReceiptStatusFailed
		return receipt, err
	}
	return receipt, nil
}

func (b *Backend) apply(method string, value *big.Int, args []interface{}) error {
	switch method {
	case "createCampaign":
		b.campaigns = append(b.campaigns, Tuple{
			Owner:           args[0].(common.Address),
			Title:           args[1].(string),
			Description:     args[2].(string),
			Target:          args[3].(*big.Int),
			Deadline:        args[4].(*big.Int),
			Category:        args[5].(string),
			Image:           args[6].(string),
			TokensForSale:   args[7].(*big.Int),
			AmountCollected: big.NewInt(0),
			TokenPrice:      new(big.Int).Quo(new(big.Int).Mul(args[3].(*big.Int), wad()), args[7].(*big.Int)),
			TokensSold:      big.NewInt(0),
			Contributors:    []common.Address{},
			Donations:       []*big.Int{},
		})
	case "donateToCampaign":
		c, err := b.campaignArg(args)
		if err != nil {
			return err
		}
		payment := valueOrZero(value)
		c.Contributors = append(c.Contributors, Signer)
		c.Donations = append(c.Donations, payment)
		c.AmountCollected = new(big.Int).Add(c.AmountCollected, payment)
		if c.TokenPrice.Sign() > 0 {
			bought := new(big.Int).Quo(new(big.Int).Mul(payment, wad()), c.TokenPrice)
			c.TokensSold = new(big.Int).Add(c.TokensSold, bought)
		}
	case "refundDonation":
		c, err := b.campaignArg(args)
		if err != nil {
			return err
		}
		contributors := []common.Address{}
		donations := []*big.Int{}
		for i, d := range c.Contributors {
			if d == Signer {
				c.AmountCollected = new(big.Int).Sub(c.AmountCollected, c.Donations[i])
				continue
			}
			contributors = append(contributors, d)
			donations = append(donations, c.Donations[i])
		}
		c.Contributors, c.Donations = contributors, donations
	case "endCampaign":
		c, err := b.campaignArg(args)
		if err != nil {
			return err
		}
		c.HasEnded = true
		c.IsSuccessful = c.AmountCollected.Cmp(c.Target) >= 0
		c.IsWithdrawable = true
	case "withdrawCampaignMoney":
		c, err := b.campaignArg(args)
		if err != nil {
			return err
		}
		c.HasWithdrawed = true
		c.IsWithdrawable = false
	}
	return nil
}

func (b *Backend) campaignArg(args []interface{}) (*Tuple, error) {
	id := args[0].(*big.Int).Int64()
	if id < 0 || id >= int64(len(b.campaigns)) {
		return nil, errors.New("execution reverted: campaign does not exist")
	}
	return &b.campaigns[id], nil
}

// Campaign 构造测试活动，金额为人类可读字符串
func Campaign(owner, title string, deadline time.Time) model.Campaign {
	return model.Campaign{
		Owner:           owner,
		Title:           title,
		Description:     strings.ToLower(title) + " description",
		Category:        "tech",
		Image:           "https://example.com/" + strings.ToLower(strings.ReplaceAll(title, " ", "-")) + ".png",
		Target:          "10",
		AmountCollected: "0",
		TokenPrice:      "0.001",
		TokensForSale:   "10000",
		TokensSold:      "0",
		Deadline:        deadline,
	}
}

func emptyTuple() Tuple {
	return Tuple{
		Target:          big.NewInt(0),
		Deadline:        big.NewInt(0),
		AmountCollected: big.NewInt(0),
		TokenPrice:      big.NewInt(0),
		TokensForSale:   big.NewInt(0),
		TokensSold:      big.NewInt(0),
		Contributors:    []common.Address{},
		Donations:       []*big.Int{},
	}
}

func units(amount string) *big.Int {
	if amount == "" {
		return big.NewInt(0)
	}
	v, err := money.ParseUnits(amount)
	if err != nil {
		panic(err)
	}
	return v
}

func wad() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(money.Decimals)), nil)
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
