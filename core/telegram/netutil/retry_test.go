package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(errors.New("telegram: bad request (400)")))
	assert.False(t, ShouldRetry(context.Canceled))

	assert.True(t, ShouldRetry(timeoutErr{}))
	assert.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: timeoutErr{}}))
	assert.False(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: errors.New("no")}))
}
