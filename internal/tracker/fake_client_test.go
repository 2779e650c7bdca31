package tracker

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"text/template"
	"time"

	"checkinbot/internal/blockchain"
	"checkinbot/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu sync.Mutex

	posts      []blockchain.Post
	fetchErr   error
	fetchErrs  []error
	fetchCalls int
	panicOn    string

	balance    string
	balanceErr error

	commentErr  error
	transferErr error
	voteErr     error

	comments  []blockchain.Comment
	transfers []string
	votes     []blockchain.PostRef
	balances  int
}

func (f *fakeClient) FetchCommunityPosts(_ context.Context, _ string, _ blockchain.PostCursor, _ int) ([]blockchain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		return nil, err
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]blockchain.Post(nil), f.posts...), nil
}

func (f *fakeClient) FetchBalance(_ context.Context, _ string, symbol string) (blockchain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.balances++
	if f.balanceErr != nil {
		return blockchain.Asset{}, f.balanceErr
	}
	balance := f.balance
	if balance == "" {
		balance = "100.000"
	}
	return blockchain.ParseAsset(balance + " " + symbol)
}

func (f *fakeClient) SubmitComment(_ context.Context, comment blockchain.Comment) (blockchain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.panicOn != "" && comment.Parent.Author == f.panicOn {
		panic("unexpected node response")
	}
	if f.commentErr != nil {
		return blockchain.Receipt{}, f.commentErr
	}
	f.comments = append(f.comments, comment)
	return blockchain.Receipt{TxID: fmt.Sprintf("comment-%d", len(f.comments))}, nil
}

func (f *fakeClient) SubmitTransfer(_ context.Context, to string, amount blockchain.Asset, memo string) (blockchain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.transferErr != nil {
		return blockchain.Receipt{}, f.transferErr
	}
	f.transfers = append(f.transfers, fmt.Sprintf("%s %s %s", to, amount, memo))
	return blockchain.Receipt{TxID: fmt.Sprintf("transfer-%d", len(f.transfers))}, nil
}

func (f *fakeClient) SubmitVote(_ context.Context, post blockchain.PostRef, _ int) (blockchain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.voteErr != nil {
		return blockchain.Receipt{}, f.voteErr
	}
	f.votes = append(f.votes, post)
	return blockchain.Receipt{TxID: fmt.Sprintf("vote-%d", len(f.votes))}, nil
}

func (f *fakeClient) VerifyAccount(_ context.Context, account string) error {
	if account == "" {
		return &blockchain.RemoteError{Op: "condenser_api.get_accounts", Kind: blockchain.KindNotFound, Err: fmt.Errorf("account does not exist")}
	}
	return nil
}

func (f *fakeClient) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.comments) + len(f.transfers) + len(f.votes)
}

const testCommunity = "hive-115276"

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testRequirements() Requirements {
	return Requirements{
		Community:        testCommunity,
		App:              "checkinecuador/1.0.0",
		Developer:        "menobass",
		Tags:             []string{"introduceyourself", "checkin"},
		Beneficiary:      blockchain.Beneficiary{Account: "hiveecuador", Weight: 8000},
		Country:          "Ecuador",
		RequireOnboarder: true,
		RequireImage:     true,
	}
}

func testSettings() RewardSettings {
	return RewardSettings{
		Account:             "checkinbot",
		Community:           testCommunity,
		Transfer:            blockchain.Asset{Amount: decimal.RequireFromString("1"), Symbol: blockchain.AssetHBD},
		MinBalance:          decimal.RequireFromString("5"),
		VotePercentage:      100,
		MaxDailyTransfers:   10,
		Location:            time.UTC,
		DryRunConsumesSlots: true,
		Welcome:             template.Must(template.New("welcome").Parse("Welcome @{{.Author}}, onboarded by @{{.Onboarder}}")),
		Memo:                template.Must(template.New("memo").Parse("{{.Amount}} {{.Asset}} for @{{.Author}}")),
	}
}

const qualifyingMetadata = `{
	"app": "checkinecuador/1.0.0",
	"developer": "menobass",
	"tags": ["introduceyourself", "checkin", "ecuador"],
	"beneficiaries": [{"account": "hiveecuador", "weight": 8000}],
	"country": "Ecuador",
	"onboarder": "@guide",
	"image": ["https://images.hive.blog/p/1.png"]
}`

func qualifyingPost(author string) blockchain.Post {
	return blockchain.Post{
		Author:      author,
		Permlink:    "checkin-" + author,
		Title:       "Hello Hive",
		Body:        "My first check-in",
		Community:   testCommunity,
		Category:    testCommunity,
		Created:     testNow.Add(-time.Hour),
		RawMetadata: []byte(qualifyingMetadata),
	}
}

func newTestStore(t *testing.T) *storage.SqliteStorage {
	t.Helper()

	store, err := storage.NewSqliteStorage(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestOrchestrator(client LedgerClient, store storage.Storage, settings RewardSettings) *Orchestrator {
	o := NewOrchestrator(client, store, settings)
	o.now = func() time.Time { return testNow }
	return o
}
