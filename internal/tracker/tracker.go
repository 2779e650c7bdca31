package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"checkinbot/internal/blockchain"
	"checkinbot/internal/config"
	"checkinbot/internal/logger"
	"checkinbot/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PollSettings struct {
	Community  string
	Account    string
	Interval   time.Duration
	MaxPostAge time.Duration
	FetchLimit int
	FetchPages int
}

func PollSettingsFromConfig(cfg *config.Config) PollSettings {
	return PollSettings{
		Community:  cfg.Community,
		Account:    cfg.Account,
		Interval:   cfg.CheckInterval,
		MaxPostAge: cfg.MaxPostAge,
		FetchLimit: cfg.FetchLimit,
		FetchPages: cfg.FetchPages,
	}
}

// Heartbeat summarizes the most recent poll cycle.
type Heartbeat struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Fetched    int       `json:"fetched"`
	Known      int       `json:"known"`
	TooOld     int       `json:"too_old"`
	Rejected   int       `json:"rejected"`
	Rewarded   int       `json:"rewarded"`
	Deferred   int       `json:"deferred"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

type postResult int

const (
	resultKnown postResult = iota
	resultTooOld
	resultRejected
	resultRewarded
	resultDeferred
	resultFailed
)

type Func[T any] func() (T, error)

// retryRateLimited repeats fn while the node answers HTTP 429, at most
// rateLimitRetries times. Only reads go through it.
func retryRateLimited[T any](
	ctx context.Context,
	fn Func[T],
) (T, error) {
	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err != nil && blockchain.IsRateLimited(err) && attempt < rateLimitRetries {
			select {
			case <-ctx.Done():
				return result, err
			case <-time.After(rateLimitDelay):
				continue
			}
		}

		return result, err
	}
}

type Tracker struct {
	ctx          context.Context
	storage      storage.Storage
	client       LedgerClient
	evaluator    *Evaluator
	orchestrator *Orchestrator
	settings     PollSettings
	now          func() time.Time

	mu        sync.RWMutex
	heartbeat Heartbeat
}

func NewTracker(ctx context.Context, store storage.Storage, client LedgerClient, evaluator *Evaluator, orchestrator *Orchestrator, settings PollSettings) *Tracker {
	logger.Debug("tracker initialization",
		zap.String("community", settings.Community),
		zap.String("account", settings.Account),
		zap.Duration("interval", settings.Interval),
		zap.Bool("dry run", orchestrator.settings.DryRun))

	return &Tracker{
		ctx:          ctx,
		storage:      store,
		client:       client,
		evaluator:    evaluator,
		orchestrator: orchestrator,
		settings:     settings,
		now:          time.Now,
	}
}

// Run polls until the tracker context is cancelled. The first cycle starts
// immediately.
func (t *Tracker) Run() error {
	logger.Info("tracker: monitoring community", zap.String("community", t.settings.Community))

	for {
		if err := t.RunCycle(); err != nil {
			logger.Error("tracker: cycle aborted", zap.Error(err))
		}

		select {
		case <-t.ctx.Done():
			t.Finalize()
			return nil
		case <-time.After(t.settings.Interval):
		}
	}
}

// RunCycle fetches the latest posts and handles them one at a time. It
// returns an error only when the cycle was aborted because the store is
// unavailable; fetch failures are logged and retried next cycle.
func (t *Tracker) RunCycle() error {
	hb := Heartbeat{CycleID: uuid.NewString(), StartedAt: t.now().UTC()}
	defer func() {
		hb.FinishedAt = t.now().UTC()
		t.mu.Lock()
		t.heartbeat = hb
		t.mu.Unlock()
	}()

	posts, err := t.fetch()
	if err != nil {
		hb.Error = err.Error()
		logger.Warn("tracker: fetch failed, retrying next cycle", zap.String("cycle", hb.CycleID), zap.Error(err))
		return nil
	}
	hb.Fetched = len(posts)

	for i := range posts {
		// shutdown is honoured between posts only
		if t.ctx.Err() != nil {
			break
		}

		result, err := t.processPost(hb.CycleID, &posts[i])
		if err != nil {
			hb.Error = err.Error()
			return err
		}

		switch result {
		case resultKnown:
			hb.Known++
		case resultTooOld:
			hb.TooOld++
		case resultRejected:
			hb.Rejected++
		case resultRewarded:
			hb.Rewarded++
		case resultDeferred:
			hb.Deferred++
		case resultFailed:
			hb.Failed++
		}
	}

	logger.Info("tracker: cycle done",
		zap.String("cycle", hb.CycleID),
		zap.Int("fetched", hb.Fetched),
		zap.Int("known", hb.Known),
		zap.Int("rejected", hb.Rejected),
		zap.Int("rewarded", hb.Rewarded),
		zap.Int("deferred", hb.Deferred),
		zap.Int("failed", hb.Failed))
	return nil
}

func (t *Tracker) fetch() ([]blockchain.Post, error) {
	var (
		cursor blockchain.PostCursor
		all    []blockchain.Post
		seen   = make(map[blockchain.PostRef]struct{})
	)

	for page := 0; page < max(t.settings.FetchPages, 1); page++ {
		posts, err := retryRateLimited(t.ctx, func() ([]blockchain.Post, error) {
			return t.client.FetchCommunityPosts(t.ctx, t.settings.Community, cursor, t.settings.FetchLimit)
		})
		if err != nil {
			if page == 0 {
				return nil, fmt.Errorf("%w: fetch posts: %w", ErrTransient, err)
			}
			logger.Warn("tracker: cannot fetch next page", zap.Int("page", page), zap.Error(err))
			break
		}

		for _, post := range posts {
			if _, ok := seen[post.Ref()]; ok {
				continue
			}
			seen[post.Ref()] = struct{}{}
			all = append(all, post)
		}

		if len(posts) < t.settings.FetchLimit {
			break
		}

		last := posts[len(posts)-1]
		if t.tooOld(&last) {
			break
		}
		cursor = blockchain.PostCursor{Author: last.Author, Permlink: last.Permlink}
	}

	return all, nil
}

func (t *Tracker) tooOld(post *blockchain.Post) bool {
	return t.settings.MaxPostAge > 0 && t.now().Sub(post.Created) > t.settings.MaxPostAge
}

func (t *Tracker) processPost(cycleID string, post *blockchain.Post) (result postResult, err error) {
	fields := []zap.Field{
		zap.String("author", post.Author),
		zap.String("permlink", post.Permlink),
		zap.String("cycle", cycleID),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tracker: unexpected failure while processing post", append(fields, zap.Any("panic", r), zap.Stack("stack"))...)
			result, err = resultFailed, nil
		}
	}()

	// a started reward always runs to finalized, even during shutdown
	ctx := context.WithoutCancel(t.ctx)

	if t.tooOld(post) {
		return resultTooOld, nil
	}

	processed, err := t.storage.HasProcessed(ctx, post.Author, post.Permlink, t.orchestrator.settings.includeSimulated())
	if err != nil {
		return resultFailed, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if processed {
		return resultKnown, nil
	}

	verdict := t.evaluator.Evaluate(post)
	if !verdict.Qualified {
		logger.Info("tracker: post rejected", append(fields, zap.String("reason", verdict.Reason))...)
		return resultRejected, nil
	}

	logger.Info("tracker: post qualified", fields...)
	_, err = t.orchestrator.Reward(ctx, post, verdict, cycleID)
	switch {
	case err == nil:
		return resultRewarded, nil
	case errors.Is(err, ErrAlreadyProcessed):
		return resultKnown, nil
	case errors.Is(err, ErrTransient):
		logger.Warn("tracker: reward deferred to next cycle", append(fields, zap.Error(err))...)
		return resultDeferred, nil
	default:
		return resultFailed, err
	}
}

// Heartbeat returns the summary of the last finished cycle.
func (t *Tracker) Heartbeat() Heartbeat {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.heartbeat
}

func (t *Tracker) Finalize() {
	logger.Info("Tracker stopped.")
}
