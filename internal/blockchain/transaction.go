package blockchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"
)

// HiveChainID is the mainnet chain id mixed into every signature digest.
const HiveChainID = "beeab0de00000000000000000000000000000000000000000000000000000000"

const (
	voteOperationID     = 0
	commentOperationID  = 1
	transferOperationID = 2
)

type operation interface {
	name() string
	id() uint64
	encode(e *encoder)
}

type voteOperation struct {
	Voter    string `json:"voter"`
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Weight   int16  `json:"weight"`
}

func (op *voteOperation) name() string { return "vote" }
func (op *voteOperation) id() uint64   { return voteOperationID }

func (op *voteOperation) encode(e *encoder) {
	e.string(op.Voter)
	e.string(op.Author)
	e.string(op.Permlink)
	e.int16(op.Weight)
}

type commentOperation struct {
	ParentAuthor   string `json:"parent_author"`
	ParentPermlink string `json:"parent_permlink"`
	Author         string `json:"author"`
	Permlink       string `json:"permlink"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	JSONMetadata   string `json:"json_metadata"`
}

func (op *commentOperation) name() string { return "comment" }
func (op *commentOperation) id() uint64   { return commentOperationID }

func (op *commentOperation) encode(e *encoder) {
	e.string(op.ParentAuthor)
	e.string(op.ParentPermlink)
	e.string(op.Author)
	e.string(op.Permlink)
	e.string(op.Title)
	e.string(op.Body)
	e.string(op.JSONMetadata)
}

type transferOperation struct {
	From   string
	To     string
	Amount Asset
	Memo   string
}

func (op *transferOperation) name() string { return "transfer" }
func (op *transferOperation) id() uint64   { return transferOperationID }

func (op *transferOperation) encode(e *encoder) {
	e.string(op.From)
	e.string(op.To)
	e.asset(op.Amount)
	e.string(op.Memo)
}

func (op *transferOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"from":   op.From,
		"to":     op.To,
		"amount": op.Amount.String(),
		"memo":   op.Memo,
	})
}

type transaction struct {
	RefBlockNum    uint16
	RefBlockPrefix uint32
	Expiration     time.Time
	Operations     []operation
	Signatures     []string
}

func (tx *transaction) serialize() []byte {
	e := &encoder{}
	e.uint16(tx.RefBlockNum)
	e.uint32(tx.RefBlockPrefix)
	e.uint32(uint32(tx.Expiration.Unix()))

	e.varint(uint64(len(tx.Operations)))
	for _, op := range tx.Operations {
		e.varint(op.id())
		op.encode(e)
	}

	// extensions
	e.varint(0)
	return e.buf.Bytes()
}

// txID is the hex of the first 20 bytes of sha256 over the unsigned transaction.
func (tx *transaction) txID() string {
	sum := sha256.Sum256(tx.serialize())
	return hex.EncodeToString(sum[:20])
}

func (tx *transaction) digest(chainID []byte) []byte {
	h := sha256.New()
	h.Write(chainID)
	h.Write(tx.serialize())
	return h.Sum(nil)
}

func (tx *transaction) sign(key *PrivateKey, chainID []byte) {
	signature := key.Sign(tx.digest(chainID))
	tx.Signatures = append(tx.Signatures, hex.EncodeToString(signature))
}

func (tx *transaction) MarshalJSON() ([]byte, error) {
	operations := make([][2]any, len(tx.Operations))
	for i, op := range tx.Operations {
		operations[i] = [2]any{op.name(), op}
	}

	signatures := tx.Signatures
	if signatures == nil {
		signatures = []string{}
	}

	return json.Marshal(map[string]any{
		"ref_block_num":    tx.RefBlockNum,
		"ref_block_prefix": tx.RefBlockPrefix,
		"expiration":       tx.Expiration.UTC().Format(TimeLayout),
		"operations":       operations,
		"extensions":       []any{},
		"signatures":       signatures,
	})
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) uint8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *encoder) uint16(v uint16) {
	e.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (e *encoder) int16(v int16) {
	e.uint16(uint16(v))
}

func (e *encoder) uint32(v uint32) {
	e.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (e *encoder) int64(v int64) {
	e.buf.Write(binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

func (e *encoder) varint(v uint64) {
	e.buf.Write(binary.AppendUvarint(nil, v))
}

func (e *encoder) string(s string) {
	e.varint(uint64(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) asset(a Asset) {
	e.int64(a.satoshis())
	e.uint8(assetPrecision)

	symbol := make([]byte, 7)
	copy(symbol, a.wireSymbol())
	e.buf.Write(symbol)
}
