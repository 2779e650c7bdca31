package blockchain

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	DefaultNodeURL = "https://api.hive.blog"

	userAgent            = "checkinbot/1.0"
	transactionLifetime  = time.Minute
	defaultClientTimeout = 30 * time.Second
)

// Client talks to a Hive API node over JSON-RPC and signs write operations
// for a single account.
type Client struct {
	nodeURL    string
	httpClient *http.Client
	account    string
	postingKey *PrivateKey
	activeKey  *PrivateKey
	chainID    []byte
}

type Options struct {
	NodeURL string
	Account string

	// PostingKey and ActiveKey are WIF strings. Empty keys leave the matching
	// write operations unavailable.
	PostingKey string
	ActiveKey  string

	HTTPClient *http.Client
}

func NewClient(options Options) (*Client, error) {
	nodeURL := options.NodeURL
	if nodeURL == "" {
		nodeURL = DefaultNodeURL
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}

	chainID, err := hex.DecodeString(HiveChainID)
	if err != nil {
		return nil, fmt.Errorf("decode chain id: %w", err)
	}

	client := &Client{
		nodeURL:    nodeURL,
		httpClient: httpClient,
		account:    options.Account,
		chainID:    chainID,
	}

	if options.PostingKey != "" {
		client.postingKey, err = ParseWIF(options.PostingKey)
		if err != nil {
			return nil, fmt.Errorf("posting key: %w", err)
		}
	}

	if options.ActiveKey != "" {
		client.activeKey, err = ParseWIF(options.ActiveKey)
		if err != nil {
			return nil, fmt.Errorf("active key: %w", err)
		}
	}

	return client, nil
}

func (c *Client) Account() string {
	return c.account
}

type bridgePost struct {
	Author        string          `json:"author"`
	Permlink      string          `json:"permlink"`
	Title         string          `json:"title"`
	Body          string          `json:"body"`
	Category      string          `json:"category"`
	Community     string          `json:"community"`
	Created       string          `json:"created"`
	JSONMetadata  json.RawMessage `json:"json_metadata"`
	Beneficiaries []Beneficiary   `json:"beneficiaries"`
	Extensions    json.RawMessage `json:"extensions"`
}

// FetchCommunityPosts lists up to limit posts of the community, newest first,
// continuing after cursor when it is set.
func (c *Client) FetchCommunityPosts(ctx context.Context, community string, cursor PostCursor, limit int) ([]Post, error) {
	params := map[string]any{
		"sort":  "created",
		"tag":   community,
		"limit": limit,
	}
	if !cursor.IsZero() {
		params["start_author"] = cursor.Author
		params["start_permlink"] = cursor.Permlink
	}

	var raw []bridgePost
	if err := c.call(ctx, "bridge.get_ranked_posts", params, &raw); err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(raw))
	for _, p := range raw {
		created, err := time.ParseInLocation(TimeLayout, p.Created, time.UTC)
		if err != nil {
			return nil, &RemoteError{
				Op:   "bridge.get_ranked_posts",
				Kind: KindUnknown,
				Err:  fmt.Errorf("post @%s/%s: invalid created time %q: %w", p.Author, p.Permlink, p.Created, err),
			}
		}

		community := p.Community
		if community == "" {
			community = p.Category
		}

		posts = append(posts, Post{
			Author:        p.Author,
			Permlink:      p.Permlink,
			Title:         p.Title,
			Body:          p.Body,
			Community:     community,
			Category:      p.Category,
			Created:       created,
			RawMetadata:   p.JSONMetadata,
			Beneficiaries: p.Beneficiaries,
			Extensions:    p.Extensions,
		})
	}

	return posts, nil
}

type condenserAccount struct {
	Name       string `json:"name"`
	Balance    string `json:"balance"`
	HBDBalance string `json:"hbd_balance"`
}

func (c *Client) getAccount(ctx context.Context, account string) (*condenserAccount, error) {
	var accounts []condenserAccount
	if err := c.call(ctx, "condenser_api.get_accounts", []any{[]string{account}}, &accounts); err != nil {
		return nil, err
	}

	if len(accounts) == 0 {
		return nil, &RemoteError{
			Op:   "condenser_api.get_accounts",
			Kind: KindNotFound,
			Err:  fmt.Errorf("account %q does not exist", account),
		}
	}

	return &accounts[0], nil
}

// FetchBalance returns the liquid balance of account in the given asset.
func (c *Client) FetchBalance(ctx context.Context, account string, symbol string) (Asset, error) {
	acc, err := c.getAccount(ctx, account)
	if err != nil {
		return Asset{}, err
	}

	var raw string
	switch symbol {
	case AssetHBD:
		raw = acc.HBDBalance
	case AssetHIVE:
		raw = acc.Balance
	default:
		return Asset{}, &RemoteError{Op: "condenser_api.get_accounts", Kind: KindUnknown, Err: fmt.Errorf("unsupported asset %q", symbol)}
	}

	balance, err := ParseAsset(raw)
	if err != nil {
		return Asset{}, &RemoteError{Op: "condenser_api.get_accounts", Kind: KindUnknown, Err: err}
	}

	return balance, nil
}

// VerifyAccount checks that the account exists on chain.
func (c *Client) VerifyAccount(ctx context.Context, account string) error {
	_, err := c.getAccount(ctx, account)
	return err
}

// Comment is a reply to an existing post.
type Comment struct {
	Parent       PostRef
	Permlink     string
	Title        string
	Body         string
	JSONMetadata string
}

func (c *Client) SubmitComment(ctx context.Context, comment Comment) (Receipt, error) {
	return c.broadcast(ctx, &commentOperation{
		ParentAuthor:   comment.Parent.Author,
		ParentPermlink: comment.Parent.Permlink,
		Author:         c.account,
		Permlink:       comment.Permlink,
		Title:          comment.Title,
		Body:           comment.Body,
		JSONMetadata:   comment.JSONMetadata,
	}, c.postingKey)
}

func (c *Client) SubmitTransfer(ctx context.Context, to string, amount Asset, memo string) (Receipt, error) {
	return c.broadcast(ctx, &transferOperation{
		From:   c.account,
		To:     to,
		Amount: amount,
		Memo:   memo,
	}, c.activeKey)
}

// SubmitVote votes on post with weightPercent in 1..100.
func (c *Client) SubmitVote(ctx context.Context, post PostRef, weightPercent int) (Receipt, error) {
	if weightPercent < -100 || weightPercent > 100 {
		return Receipt{}, &RemoteError{Op: "vote", Kind: KindUnknown, Err: fmt.Errorf("vote weight %d%% out of range", weightPercent)}
	}

	return c.broadcast(ctx, &voteOperation{
		Voter:    c.account,
		Author:   post.Author,
		Permlink: post.Permlink,
		Weight:   int16(weightPercent * 100),
	}, c.postingKey)
}

type dynamicGlobalProperties struct {
	HeadBlockNumber uint32 `json:"head_block_number"`
	HeadBlockID     string `json:"head_block_id"`
	Time            string `json:"time"`
}

func (c *Client) referenceBlock(ctx context.Context) (*transaction, error) {
	var props dynamicGlobalProperties
	if err := c.call(ctx, "condenser_api.get_dynamic_global_properties", []any{}, &props); err != nil {
		return nil, err
	}

	blockID, err := hex.DecodeString(props.HeadBlockID)
	if err != nil || len(blockID) < 8 {
		return nil, &RemoteError{Op: "condenser_api.get_dynamic_global_properties", Kind: KindUnknown, Err: fmt.Errorf("invalid head block id %q", props.HeadBlockID)}
	}

	headTime, err := time.ParseInLocation(TimeLayout, props.Time, time.UTC)
	if err != nil {
		return nil, &RemoteError{Op: "condenser_api.get_dynamic_global_properties", Kind: KindUnknown, Err: fmt.Errorf("invalid head time %q: %w", props.Time, err)}
	}

	return &transaction{
		RefBlockNum:    uint16(props.HeadBlockNumber & 0xffff),
		RefBlockPrefix: binary.LittleEndian.Uint32(blockID[4:8]),
		Expiration:     headTime.Add(transactionLifetime),
	}, nil
}

func (c *Client) broadcast(ctx context.Context, op operation, key *PrivateKey) (Receipt, error) {
	if key == nil {
		return Receipt{}, &RemoteError{Op: op.name(), Kind: KindAuthorization, Err: errors.New("signing key not configured")}
	}

	tx, err := c.referenceBlock(ctx)
	if err != nil {
		return Receipt{}, err
	}

	tx.Operations = []operation{op}
	tx.sign(key, c.chainID)

	if err := c.call(ctx, "condenser_api.broadcast_transaction", []any{tx}, nil); err != nil {
		return Receipt{}, err
	}

	return Receipt{TxID: tx.txID()}, nil
}
