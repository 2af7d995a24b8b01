package protocol

import (
	"encoding/json"
	"sync/atomic"
)

// Reply is the envelope returned by every device and management call.
type Reply struct {
	ServerTransactionID uint32
	ClientTransactionID *uint32
	ErrorNumber         int
	ErrorMessage        string
	Value               any

	hasValue bool
}

// HasValue reports whether the envelope carries a Value key.
func (r Reply) HasValue() bool {
	return r.hasValue
}

type replyEnvelope struct {
	ClientTransactionID *uint32 `json:"ClientTransactionID,omitempty"`
	ServerTransactionID uint32  `json:"ServerTransactionID"`
	ErrorNumber         int     `json:"ErrorNumber"`
	ErrorMessage        string  `json:"ErrorMessage"`
}

type valueEnvelope struct {
	replyEnvelope
	Value any `json:"Value"`
}

// MarshalJSON emits Value only when the envelope carries one, null included.
func (r Reply) MarshalJSON() ([]byte, error) {
	base := replyEnvelope{
		ClientTransactionID: r.ClientTransactionID,
		ServerTransactionID: r.ServerTransactionID,
		ErrorNumber:         r.ErrorNumber,
		ErrorMessage:        r.ErrorMessage,
	}
	if r.hasValue {
		return json.Marshal(valueEnvelope{replyEnvelope: base, Value: r.Value})
	}
	return json.Marshal(base)
}

// Replier builds reply envelopes and owns the server transaction counter.
//
// The counter is shared by every device and management call of the process and
// is never reset. It is safe for concurrent use.
type Replier struct {
	serverTransactionID atomic.Uint32
}

// NewReplier returns a Replier whose counter starts at 1; the first reply carries 2.
func NewReplier() *Replier {
	r := &Replier{}
	r.serverTransactionID.Store(1)
	return r
}

// LastTransactionID returns the most recently issued server transaction id.
func (r *Replier) LastTransactionID() uint32 {
	return r.serverTransactionID.Load()
}

// Reply builds a success envelope carrying value.
func (r *Replier) Reply(p Params, value any) Reply {
	return r.build(p, value, ErrNumOK, "", false)
}

// Fail builds an envelope carrying the number and message of a domain error.
func (r *Replier) Fail(p Params, err *Error) Reply {
	return r.build(p, nil, err.Number, err.Message, false)
}

// Management builds a management-API envelope. Management replies never echo a client transaction id.
func (r *Replier) Management(value any) Reply {
	return r.build(nil, value, ErrNumOK, "", true)
}

func (r *Replier) build(p Params, value any, errNum int, errMsg string, management bool) Reply {
	reply := Reply{
		ServerTransactionID: r.serverTransactionID.Add(1),
		ErrorNumber:         errNum,
		ErrorMessage:        errMsg,
	}

	if !management {
		if p == nil {
			return reply
		}
		id, ok := parseNonNegative(p, "ClientTransactionID")
		if !ok {
			// Unparsable client transaction id: base envelope only, no Value even on success.
			return reply
		}
		reply.ClientTransactionID = &id
	}

	if errNum == ErrNumOK {
		reply.Value = value
		reply.hasValue = true
	}
	return reply
}
