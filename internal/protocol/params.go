package protocol

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Params gives read access to the parameters of one call.
type Params interface {
	Get(key string) (string, bool)
}

// QueryParams matches keys case-insensitively, as read requests require.
type QueryParams url.Values

func (q QueryParams) Get(key string) (string, bool) {
	for k, vals := range q {
		if strings.EqualFold(k, key) && len(vals) > 0 {
			return vals[0], true
		}
	}
	return "", false
}

// FormParams matches keys case-sensitively, as write requests require.
type FormParams url.Values

func (f FormParams) Get(key string) (string, bool) {
	vals, ok := f[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// ParamsFor selects the parameter surface of a verb: the form body for PUT, the query otherwise.
func ParamsFor(verb string, query, form url.Values) Params {
	if verb == http.MethodPut {
		return FormParams(form)
	}
	return QueryParams(query)
}

// ClientIDs are the mandatory protocol identifiers of a device call.
type ClientIDs struct {
	ClientID            uint32
	ClientTransactionID uint32
}

// ParseClientIDs validates ClientID and ClientTransactionID as non-negative integers.
func ParseClientIDs(p Params) (ClientIDs, error) {
	clientID, ok := parseNonNegative(p, "ClientID")
	if !ok {
		return ClientIDs{}, NewTransportError("Invalid ClientID")
	}
	transactionID, ok := parseNonNegative(p, "ClientTransactionID")
	if !ok {
		return ClientIDs{}, NewTransportError("Invalid ClientTransactionID")
	}
	return ClientIDs{ClientID: clientID, ClientTransactionID: transactionID}, nil
}

func parseNonNegative(p Params, key string) (uint32, bool) {
	raw, ok := p.Get(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
