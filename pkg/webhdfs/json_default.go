//go:build !sonic

package webhdfs

import (
	"github.com/goccy/go-json"
)

// for imroc/req and envelope decoding
var jsonMarshal = json.Marshal
var jsonUnmarshal = json.Unmarshal
