package blockchain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the timestamp format used by Hive APIs (UTC, no zone suffix).
const TimeLayout = "2006-01-02T15:04:05"

// Post is a community post as returned by the bridge API. It is never mutated
// after fetching.
type Post struct {
	Author        string
	Permlink      string
	Title         string
	Body          string
	Community     string
	Category      string
	Created       time.Time
	RawMetadata   json.RawMessage
	Beneficiaries []Beneficiary
	Extensions    json.RawMessage
}

// Ref returns the (author, permlink) pair identifying the post.
func (p *Post) Ref() PostRef {
	return PostRef{Author: p.Author, Permlink: p.Permlink}
}

type PostRef struct {
	Author   string
	Permlink string
}

func (r PostRef) String() string {
	return fmt.Sprintf("@%s/%s", r.Author, r.Permlink)
}

// PostCursor continues a ranked listing after the given post. The zero value
// requests the newest page.
type PostCursor struct {
	Author   string
	Permlink string
}

func (c PostCursor) IsZero() bool {
	return c.Author == "" && c.Permlink == ""
}

type Beneficiary struct {
	Account string `json:"account"`
	Weight  int    `json:"weight"`
}

// Receipt identifies a broadcast transaction.
type Receipt struct {
	TxID string
}
