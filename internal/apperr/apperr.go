package apperr

import (
	"errors"
	"fmt"
)

// Kind 业务错误类型（封闭枚举）
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidArgument
	KindInvalidTransition
	KindInvalidState
	KindAmountMismatch
	KindInsufficientBalance
	KindUnauthorized
	KindProjectNotPublished
	KindSelfPurchase
	KindAlreadyPurchased
	KindDuplicateOrderNumber
	KindPartialSettlementFailure
	KindConflict
)

var kindNames = map[Kind]string{
	KindInternal:                 "INTERNAL",
	KindNotFound:                 "NOT_FOUND",
	KindInvalidArgument:          "INVALID_ARGUMENT",
	KindInvalidTransition:        "INVALID_TRANSITION",
	KindInvalidState:             "INVALID_STATE",
	KindAmountMismatch:           "AMOUNT_MISMATCH",
	KindInsufficientBalance:      "INSUFFICIENT_BALANCE",
	KindUnauthorized:             "UNAUTHORIZED",
	KindProjectNotPublished:      "PROJECT_NOT_PUBLISHED",
	KindSelfPurchase:             "SELF_PURCHASE",
	KindAlreadyPurchased:         "ALREADY_PURCHASED",
	KindDuplicateOrderNumber:     "DUPLICATE_ORDER_NUMBER",
	KindPartialSettlementFailure: "PARTIAL_SETTLEMENT_FAILURE",
	KindConflict:                 "CONFLICT",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

// Error 带类型的业务错误
//
// errors.Is 只比较 Kind，因此任意消息的同类错误都能匹配对应的哨兵值。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// 哨兵错误，用于 errors.Is 判断
var (
	ErrInternal                 = &Error{Kind: KindInternal, Message: "系统内部错误"}
	ErrNotFound                 = &Error{Kind: KindNotFound, Message: "数据不存在"}
	ErrInvalidArgument          = &Error{Kind: KindInvalidArgument, Message: "参数不合法"}
	ErrInvalidTransition        = &Error{Kind: KindInvalidTransition, Message: "订单状态不允许该操作"}
	ErrInvalidState             = &Error{Kind: KindInvalidState, Message: "账户状态不合法"}
	ErrAmountMismatch           = &Error{Kind: KindAmountMismatch, Message: "支付金额与订单金额不一致"}
	ErrInsufficientBalance      = &Error{Kind: KindInsufficientBalance, Message: "余额不足"}
	ErrUnauthorized             = &Error{Kind: KindUnauthorized, Message: "无权操作该订单"}
	ErrProjectNotPublished      = &Error{Kind: KindProjectNotPublished, Message: "项目未上架"}
	ErrSelfPurchase             = &Error{Kind: KindSelfPurchase, Message: "不能购买自己的项目"}
	ErrAlreadyPurchased         = &Error{Kind: KindAlreadyPurchased, Message: "已购买过该项目"}
	ErrDuplicateOrderNumber     = &Error{Kind: KindDuplicateOrderNumber, Message: "订单号重复"}
	ErrPartialSettlementFailure = &Error{Kind: KindPartialSettlementFailure, Message: "组合支付部分失败，已回滚"}
	ErrConflict                 = &Error{Kind: KindConflict, Message: "系统繁忙，请稍后重试"}
)

// New 创建指定类型的错误
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 用指定类型包装底层错误
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 取出错误类型，未分类的错误视为 Internal
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable 判断调用方是否可以原样重试
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindDuplicateOrderNumber:
		return true
	default:
		return false
	}
}
