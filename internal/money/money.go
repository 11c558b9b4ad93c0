// Package money 在人类可读的十进制金额与链上定点整数之间转换。
//
// 所有计算都基于 *big.Int 与 decimal.Decimal，不经过 float64。
package money

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/blues/tcf/internal/errs"
	"github.com/shopspring/decimal"
)

// Decimals 链上金额的默认精度
const Decimals int32 = 18

// 整数部分或小数部分可以省略，如 ".5" 与 "1."
var amountPattern = regexp.MustCompile(`^([0-9]+\.?[0-9]*|\.[0-9]+)$`)

// ToFixedPoint 将十进制字符串转换为定点整数
func ToFixedPoint(amount string, decimals int32) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty amount", errs.ErrInvalidAmount)
	}
	if !amountPattern.MatchString(amount) {
		return nil, fmt.Errorf("%w: %q is not a non-negative decimal number", errs.ErrInvalidAmount, amount)
	}

	amount = strings.TrimSuffix(amount, ".")
	if strings.HasPrefix(amount, ".") {
		amount = "0" + amount
	}

	if dot := strings.IndexByte(amount, '.'); dot >= 0 && int32(len(amount)-dot-1) > decimals {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", errs.ErrInvalidAmount, amount, decimals)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidAmount, err)
	}

	return d.Shift(decimals).BigInt(), nil
}

// FromFixedPoint 将定点整数转换为十进制字符串，去掉小数部分末尾的 0
func FromFixedPoint(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

// ParseUnits 按 18 位精度转换
func ParseUnits(amount string) (*big.Int, error) {
	return ToFixedPoint(amount, Decimals)
}

// FormatUnits 按 18 位精度格式化
func FormatUnits(value *big.Int) string {
	return FromFixedPoint(value, Decimals)
}

// ParseFixedPointString 解析链上整数金额的十进制字符串表示
func ParseFixedPointString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is not a fixed-point integer", errs.ErrInvalidAmount, s)
	}
	return v, nil
}

// RequiredPayment 计算购买 tokenAmount 个代币需要支付的定点金额。
//
// 结果为 ParseUnits(tokenAmount) * ParseUnits(tokenPrice) / 10^18，向下取整。
func RequiredPayment(tokenAmount, tokenPrice string) (*big.Int, error) {
	amount, err := ParseUnits(tokenAmount)
	if err != nil {
		return nil, err
	}
	price, err := ParseUnits(tokenPrice)
	if err != nil {
		return nil, err
	}
	return MulFixed(amount, price), nil
}

// MulFixed 定点乘法，向下取整
func MulFixed(a, b *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, unit())
}

// Sub 计算两个十进制字符串之差，返回定点整数
func Sub(a, b string) (*big.Int, error) {
	x, err := ParseUnits(a)
	if err != nil {
		return nil, err
	}
	y, err := ParseUnits(b)
	if err != nil {
		return nil, err
	}
	return x.Sub(x, y), nil
}

// IsZero 判断十进制字符串是否为 0，无法解析时返回 true
func IsZero(amount string) bool {
	v, err := ParseUnits(amount)
	return err != nil || v.Sign() == 0
}

func unit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(Decimals)), nil)
}
