package executor

import (
	"errors"
	"fmt"
)

// RejectReason 订单被拒绝的原因分类
type RejectReason string

const (
	ReasonInvalidSide            RejectReason = "invalid_side"
	ReasonInvalidQuantity        RejectReason = "invalid_quantity"
	ReasonInvalidPrice           RejectReason = "invalid_price"
	ReasonNoQuote                RejectReason = "no_quote"
	ReasonPriceOutOfBand         RejectReason = "price_out_of_band"
	ReasonInsufficientCollateral RejectReason = "insufficient_collateral"
	ReasonOrderNotFound          RejectReason = "order_not_found"
	ReasonVersionConflict        RejectReason = "version_conflict"
)

var (
	ErrInvalidSide            = errors.New("invalid side")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidPrice           = errors.New("invalid price")
	ErrNoQuote                = errors.New("no quote")
	ErrPriceOutOfBand         = errors.New("price out of band")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrOrderNotFound          = errors.New("order not found")
	ErrVersionConflict        = errors.New("collateral version conflict")
)

// OrderError 校验失败的订单错误; Error() 直接用于界面提示
type OrderError struct {
	Reason     RejectReason
	Message    string
	Underlying error
}

func (e *OrderError) Error() string {
	return e.Message
}

func (e *OrderError) Unwrap() error {
	return e.Underlying
}

func newOrderError(reason RejectReason, sentinel error, format string, args ...interface{}) *OrderError {
	return &OrderError{
		Reason:     reason,
		Message:    fmt.Sprintf(format, args...),
		Underlying: sentinel,
	}
}

// ReasonOf 取出错误中的拒绝原因
func ReasonOf(err error) (RejectReason, bool) {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.Reason, true
	}
	return "", false
}
