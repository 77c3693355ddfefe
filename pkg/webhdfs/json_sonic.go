//go:build sonic

package webhdfs

import (
	"github.com/bytedance/sonic"
)

// for imroc/req and envelope decoding
var jsonMarshal = sonic.Marshal
var jsonUnmarshal = sonic.Unmarshal
