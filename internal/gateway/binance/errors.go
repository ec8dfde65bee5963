package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"listingshort/internal/market"

	"github.com/adshao/go-binance/v2/common"
)

// Binance 错误码，见 https://developers.binance.com/docs/derivatives/usds-margined-futures/error-code
const (
	codeUnknown          = -1000
	codeDisconnected     = -1001
	codeTimeout          = -1007
	codeTooManyRequests  = -1003
	codeTooManyOrders    = -1015
	codeServerBusy       = -1008
	codeUnparsableAPIErr = 0 // go-binance 无法解析错误体时 Code 为 0（网关或 WAF 返回的 HTML）
)

// translateError 把 SDK / HTTP 层错误映射到 market 错误分类，保留原始错误链。
// status 为响应状态码（未知时为 0）；错误体无法解析时按状态码分类，与 REST 客户端一致。
func translateError(err error, status int) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == codeUnparsableAPIErr && status > 0 {
			return fmt.Errorf("%w: 状态码 %d: %w", classifyStatus(status), status, err)
		}
		return fmt.Errorf("%w: %w", classifyCode(apiErr.Code), err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %w", market.ErrUnexpectedPayload, err)
	}
	if market.Classify(err) == market.ClassTransient {
		return fmt.Errorf("%w: %w", market.ErrTransient, err)
	}
	return err
}

func classifyCode(code int64) error {
	switch code {
	case codeTooManyRequests, codeTooManyOrders:
		return market.ErrRateLimited
	case codeUnknown, codeDisconnected, codeTimeout, codeServerBusy, codeUnparsableAPIErr:
		return market.ErrTransient
	default:
		return market.ErrUpstream
	}
}

// classifyStatus 按 HTTP 状态码分类：429/418 限频，5xx 临时失败，其余为上游错误。
func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return market.ErrRateLimited
	case status >= http.StatusInternalServerError:
		return market.ErrTransient
	default:
		return market.ErrUpstream
	}
}

// statusError 为 REST 客户端按 HTTP 状态码分类。
func statusError(status int, body []byte) error {
	return fmt.Errorf("%w: binance 返回状态码 %d: %s", classifyStatus(status), status, truncate(body, 200))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
