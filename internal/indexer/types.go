package indexer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// StatusError is a non-200 answer from the indexer.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexer %s returned %d: %s", e.Endpoint, e.Code, e.Body)
}

// ServerSide reports a 5xx answer, which is worth retrying.
func (e *StatusError) ServerSide() bool {
	return e.Code >= 500
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

type Item struct {
	ContractAddress string     `json:"contractAddress"`
	TokenID         flexString `json:"tokenId"`
	Name            string     `json:"name"`
}

// Collection is one NFT collection entry. Token-list and direct-contract
// answers are decoded into the same shape.
type Collection struct {
	ContractAddress string `json:"contractAddress"`
	Name            string `json:"name"`
	Items           []Item `json:"items"`
}

type Transaction struct {
	Hash      string     `json:"hash"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Value     flexString `json:"value"`
	Timestamp flexString `json:"timestamp"`
}

// Time parses the indexer timestamp. Millisecond values are expected;
// second-resolution values are detected by magnitude.
func (t Transaction) Time() (time.Time, error) {
	n, err := strconv.ParseInt(string(t.Timestamp), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid transaction timestamp %q: %w", t.Timestamp, err)
	}
	if n < 1_000_000_000_000 {
		return time.Unix(n, 0), nil
	}
	return time.UnixMilli(n), nil
}

type ownedNFT struct {
	Contract struct {
		Address string `json:"address"`
	} `json:"contract"`
	ContractAddress string     `json:"contractAddress"`
	TokenID         flexString `json:"tokenId"`
	Name            string     `json:"name"`
}

// envelope tolerates both the current `{result:{data:[...]}}` shape and the
// legacy `{data:{list:[...]}}` shape.
type envelope struct {
	Code      *int            `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	OwnedNFTs []ownedNFT      `json:"ownedNfts,omitempty"`
}

func (e *envelope) resultData() json.RawMessage {
	if !isJSONObject(e.Result) {
		return nil
	}
	var r struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(e.Result, &r); err != nil {
		return nil
	}
	return r.Data
}

func (e *envelope) legacyList() json.RawMessage {
	if !isJSONObject(e.Data) {
		return nil
	}
	var d struct {
		List json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil
	}
	return d.List
}

// collections returns the collection list and whether the answer carried a
// well-formed list at all.
func (e *envelope) collections() ([]Collection, bool) {
	for _, raw := range []json.RawMessage{e.resultData(), e.legacyList()} {
		if !isJSONArray(raw) {
			continue
		}
		var cols []Collection
		if err := json.Unmarshal(raw, &cols); err == nil {
			return cols, true
		}
	}
	return nil, false
}

// looseCollections also accepts a single object where a list is expected.
func (e *envelope) looseCollections() []Collection {
	if cols, ok := e.collections(); ok {
		return cols
	}
	for _, raw := range []json.RawMessage{e.resultData(), e.Data} {
		if !isJSONObject(raw) {
			continue
		}
		var c Collection
		if err := json.Unmarshal(raw, &c); err == nil && (c.ContractAddress != "" || len(c.Items) > 0) {
			return []Collection{c}
		}
	}
	return nil
}

func (e *envelope) transactions() ([]Transaction, bool) {
	for _, raw := range []json.RawMessage{e.resultData(), e.legacyList()} {
		if !isJSONArray(raw) {
			continue
		}
		var txs []Transaction
		if err := json.Unmarshal(raw, &txs); err == nil {
			return txs, true
		}
	}
	return nil, false
}

func (e *envelope) owned() []Collection {
	cols := make([]Collection, 0, len(e.OwnedNFTs))
	for _, n := range e.OwnedNFTs {
		addr := n.Contract.Address
		if addr == "" {
			addr = n.ContractAddress
		}
		cols = append(cols, Collection{
			ContractAddress: addr,
			Name:            n.Name,
			Items:           []Item{{ContractAddress: addr, TokenID: n.TokenID, Name: n.Name}},
		})
	}
	return cols
}

func isJSONArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
