package protocol

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryParams_CaseInsensitive(t *testing.T) {
	q := QueryParams(url.Values{"id": {"3"}})

	v, ok := q.Get("Id")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	_, ok = q.Get("Value")
	assert.False(t, ok)
}

func TestFormParams_CaseSensitive(t *testing.T) {
	f := FormParams(url.Values{"Value": {"5"}})

	v, ok := f.Get("Value")
	assert.True(t, ok)
	assert.Equal(t, "5", v)

	_, ok = f.Get("value")
	assert.False(t, ok)
}

func TestParamsFor(t *testing.T) {
	query := url.Values{"a": {"query"}}
	form := url.Values{"a": {"form"}}

	v, _ := ParamsFor(http.MethodGet, query, form).Get("A")
	assert.Equal(t, "query", v)

	v, _ = ParamsFor(http.MethodPut, query, form).Get("a")
	assert.Equal(t, "form", v)
}

func TestParseClientIDs(t *testing.T) {
	tests := []struct {
		name    string
		params  url.Values
		wantErr string
	}{
		{name: "valid", params: url.Values{"ClientID": {"1"}, "ClientTransactionID": {"9"}}},
		{name: "missing client id", params: url.Values{"ClientTransactionID": {"9"}}, wantErr: "Invalid ClientID"},
		{name: "negative client id", params: url.Values{"ClientID": {"-1"}, "ClientTransactionID": {"9"}}, wantErr: "Invalid ClientID"},
		{name: "text transaction id", params: url.Values{"ClientID": {"1"}, "ClientTransactionID": {"x"}}, wantErr: "Invalid ClientTransactionID"},
		{name: "negative transaction id", params: url.Values{"ClientID": {"1"}, "ClientTransactionID": {"-4"}}, wantErr: "Invalid ClientTransactionID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := ParseClientIDs(FormParams(tt.params))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, uint32(1), ids.ClientID)
				assert.Equal(t, uint32(9), ids.ClientTransactionID)
				return
			}
			terr, ok := AsTransportError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantErr, terr.Message)
		})
	}
}

func TestAsError(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), RangeError("bad %d", 3))

	perr, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindRange, perr.Kind)
	assert.Equal(t, ErrNumInvalidValue, perr.Number)
	assert.Equal(t, "bad 3", perr.Message)

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)

	assert.Equal(t, ErrNumNotImplemented, NotImplementedError("x").Number)
	assert.Equal(t, KindArgument, ArgumentError("x").Kind)
}
