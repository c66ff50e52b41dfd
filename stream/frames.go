package stream

import (
	"encoding/json"
	"strconv"
)

// Outbound JSON-RPC 2.0 frames sent over the websocket. Tendermint accepts
// string ids, so subscription and ping ids go out verbatim.

type wireParams struct {
	Query string `json:"query"`
}

type wireFrame struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	ID      string      `json:"id"`
	Params  *wireParams `json:"params,omitempty"`
}

func subscribeFrame(id, query string) wireFrame {
	return wireFrame{JSONRPC: "2.0", Method: "subscribe", ID: id, Params: &wireParams{Query: query}}
}

func unsubscribeFrame(id, query string) wireFrame {
	return wireFrame{JSONRPC: "2.0", Method: "unsubscribe", ID: id, Params: &wireParams{Query: query}}
}

func pingFrame(id string) wireFrame {
	return wireFrame{JSONRPC: "2.0", Method: "ping", ID: id}
}

// inboundFrame is the loosely-typed shape of anything the node sends. Frames
// carrying params hold event payloads; frames carrying only a result (or an
// error) are request acknowledgements.
type inboundFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// idString normalizes the frame id to a string. Tendermint echoes back
// whatever id type the request used, so both quoted strings and bare numbers
// appear in the wild.
func (f *inboundFrame) idString() string {
	if len(f.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.ID, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(f.ID, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return string(f.ID)
}

// hasParams reports whether the frame carries an event payload.
func (f *inboundFrame) hasParams() bool {
	return len(f.Params) > 0 && string(f.Params) != "null"
}
