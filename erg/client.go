package erg

import (
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// NewRetryClient builds the http client shared by the explorer and node
// clients. Responses with a non success status are handed back to the caller
// instead of being turned into errors once retries are exhausted.
func NewRetryClient(retryMax int, timeout time.Duration) *retryablehttp.Client {
	t := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 3 * time.Second,
		}).Dial,
		MaxIdleConns:        100,
		MaxConnsPerHost:     100,
		MaxIdleConnsPerHost: 100,
		TLSHandshakeTimeout: 3 * time.Second,
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = t
	retryClient.HTTPClient.Timeout = timeout
	retryClient.Logger = nil
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 250 * time.Millisecond
	retryClient.RetryMax = retryMax
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.RequestLogHook = func(l retryablehttp.Logger, r *http.Request, i int) {
		retryCount := i
		if retryCount > 0 {
			zap.L().Info("retryClient request failed, retrying...",
				zap.String("url", r.URL.String()),
				zap.String("caller", r.Header.Get("forum-func")),
				zap.Int("retryCount", retryCount),
			)
		}
	}

	return retryClient
}
