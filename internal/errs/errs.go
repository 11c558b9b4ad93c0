package errs

import (
	"errors"
	"fmt"
)

// 用户输入或前置条件错误
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCampaign    = errors.New("invalid campaign")
	ErrCampaignClosed     = errors.New("campaign is closed")
	ErrCampaignNotEnded   = errors.New("campaign has not ended yet")
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrNotDonator         = errors.New("caller has not donated to this campaign")
	ErrAlreadyFinalized   = errors.New("campaign has already ended or been withdrawn")
	ErrAlreadyWithdrawn   = errors.New("campaign money has already been withdrawn")
	ErrExternalCallFailed = errors.New("external contract call failed")
)

// ErrContractData 合约返回的活动数据无法解析，不属于用户输入错误
var ErrContractData = errors.New("malformed contract data")

// ContractData 包装合约数据错误，内部错误只保留文本，避免被识别为用户输入错误
func ContractData(pId int64, field string, err error) error {
	return fmt.Errorf("%w: campaign %d %s: %v", ErrContractData, pId, field, err)
}

// ExternalCallError 外部合约调用失败
type ExternalCallError struct {
	Method string
	Err    error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("contract call %s failed: %v", e.Method, e.Err)
}

func (e *ExternalCallError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrExternalCallFailed) 命中
func (e *ExternalCallError) Is(target error) bool {
	return target == ErrExternalCallFailed
}

// External 包装合约调用错误，nil 原样返回
func External(method string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalCallError{Method: method, Err: err}
}

// ActionError 携带用户操作名称的错误
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Action 为错误加上操作名称，nil 原样返回
func Action(action string, err error) error {
	if err == nil {
		return nil
	}
	return &ActionError{Action: action, Err: err}
}

// IsUserError 判断错误是否由用户输入或业务前置条件导致
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrInvalidCampaign,
		ErrCampaignClosed,
		ErrCampaignNotEnded,
		ErrNotDonator,
		ErrAlreadyFinalized,
		ErrAlreadyWithdrawn,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
