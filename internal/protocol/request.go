package protocol

import (
	"context"
	"strings"
)

// Request is one inbound device call.
type Request struct {
	Context      context.Context
	Verb         string
	DeviceType   string
	DeviceNumber int
	Method       string
	Params       Params
	ClientIDs    ClientIDs
}

// NewRequest builds a Request. Method names are matched in lower case.
func NewRequest(ctx context.Context, verb, deviceType string, deviceNumber int, method string, params Params) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Request{
		Context:      ctx,
		Verb:         strings.ToUpper(verb),
		DeviceType:   strings.ToLower(deviceType),
		DeviceNumber: deviceNumber,
		Method:       strings.ToLower(method),
		Params:       params,
	}
}
