package response

import (
	"net/http"

	"pointmarket/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeConflict      = 409
	CodeTooMany       = 429
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码
const (
	CodeOrderStatusInvalid  = 1002
	CodeBalanceNotEnough    = 1003
	CodeAmountMismatch      = 1004
	CodeAccountStateInvalid = 1005
	CodePaymentFailed       = 1006
	CodeProjectNotPublished = 1008
	CodeSelfPurchase        = 1009
	CodeAlreadyPurchased    = 1010
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type PageData struct {
	List     interface{} `json:"list"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Page(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	Success(c, PageData{List: list, Total: total, Page: page, PageSize: pageSize})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// TooManyRequests 限流，HTTP 状态码同为 429
func TooManyRequests(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{Code: CodeTooMany, Message: "请求过于频繁"})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Code: CodeUnauthorized, Message: message})
}

var kindCodes = map[apperr.Kind]int{
	apperr.KindNotFound:                 CodeNotFound,
	apperr.KindInvalidArgument:          CodeParamError,
	apperr.KindInvalidTransition:        CodeOrderStatusInvalid,
	apperr.KindInvalidState:             CodeAccountStateInvalid,
	apperr.KindAmountMismatch:           CodeAmountMismatch,
	apperr.KindInsufficientBalance:      CodeBalanceNotEnough,
	apperr.KindUnauthorized:             CodeForbidden,
	apperr.KindProjectNotPublished:      CodeProjectNotPublished,
	apperr.KindSelfPurchase:             CodeSelfPurchase,
	apperr.KindAlreadyPurchased:         CodeAlreadyPurchased,
	apperr.KindPartialSettlementFailure: CodePaymentFailed,
	apperr.KindConflict:                 CodeConflict,
}

// CodeOf 业务错误类型到响应码的映射，未分类错误为 500
func CodeOf(err error) int {
	if code, ok := kindCodes[apperr.KindOf(err)]; ok {
		return code
	}
	return CodeServerError
}

// FromError 按错误类型输出响应，内部错误不向调用方暴露细节
func FromError(c *gin.Context, err error) {
	code := CodeOf(err)
	if code == CodeServerError {
		ServerError(c, apperr.ErrInternal.Message)
		return
	}
	Error(c, code, err.Error())
}
