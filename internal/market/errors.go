package market

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
)

var (
	// ErrCatalogUnavailable 元数据接口不可达，整次回测终止。
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrTransient 网络层临时失败（超时、连接重置、5xx）。
	ErrTransient = errors.New("transient network failure")
	// ErrRateLimited 上游限频拒绝（429/418、-1003）。
	ErrRateLimited = errors.New("rate limit rejection")
	// ErrUpstream 上游返回的其它业务错误。
	ErrUpstream = errors.New("upstream api error")
	// ErrUnexpectedPayload 响应无法解析，放弃当前页。
	ErrUnexpectedPayload = errors.New("unexpected parse failure")
)

// ErrorClass 决定一次失败按哪条重试策略处理。
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassTransient
	ClassRateLimit
	ClassUpstream
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimit:
		return "rate_limit"
	case ClassUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Classify 把任意错误映射到分类。未知错误（含解析失败）不重试。
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	switch {
	case errors.Is(err, ErrUnexpectedPayload):
		return ClassUnknown
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimit
	case errors.Is(err, ErrTransient):
		return ClassTransient
	case errors.Is(err, ErrUpstream):
		return ClassUpstream
	case errors.Is(err, context.Canceled):
		return ClassUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, io.ErrUnexpectedEOF):
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassTransient
	}
	return ClassUnknown
}
