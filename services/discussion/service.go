package discussion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/forum"
	"github.com/reputation-systems/forum-application/state"
)

const DefaultPollInterval = 2 * time.Minute

var (
	ErrProofNotFound = errors.New("reputation proof not loaded")
	ErrNoWallet      = errors.New("no wallet connected")
)

type Config struct {
	Discussion           string
	ErgoTreeTemplateHash string
	PageSize             int
	SpamLimit            int
	ComputeDepth         int
	Fanout               int
	PollInterval         time.Duration
	ProfileTotalSupply   int64
	Types                forum.Types
	ProofTypes           []string
	Links                forum.Links
}

// Service is the fetch orchestrator. It is the only writer of the published
// forum state.
type Service struct {
	ctx       context.Context
	cancel    context.CancelFunc
	component string

	indexer   Indexer
	wallet    forum.Wallet
	submitter forum.Submitter
	state     *state.ForumState
	pending   *state.PendingState

	spam      *SpamGate
	assembler *Assembler
	profiles  *ProfileLoader
	depth     atomic.Int64
	cfg       Config

	loadMu    sync.Mutex
	loadingMu sync.Mutex
	loading   int

	logger *zap.Logger
	stop   chan bool
	done   chan bool
	wg     *sync.WaitGroup
}

func NewService(indexer Indexer, resolver Resolver, wallet forum.Wallet, submitter forum.Submitter,
	st *state.ForumState, pending *state.PendingState, cfg Config, wg *sync.WaitGroup) (service *Service, err error) {

	if cfg.Types == nil {
		cfg.Types = forum.BuiltinTypes()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ComputeDepth < 0 {
		cfg.ComputeDepth = forum.DefaultComputeDepth
	}
	if cfg.Links == (forum.Links{}) {
		cfg.Links = forum.DefaultLinks()
	}

	ctx, cancel := context.WithCancel(context.Background())
	query := Query{ErgoTreeTemplateHash: cfg.ErgoTreeTemplateHash, PageSize: cfg.PageSize}
	spam := NewSpamGate(indexer, query, cfg.SpamLimit)

	service = &Service{
		ctx:       ctx,
		cancel:    cancel,
		component: "discussion",
		indexer:   indexer,
		wallet:    wallet,
		submitter: submitter,
		state:     st,
		pending:   pending,
		spam:      spam,
		assembler: NewAssembler(indexer, spam, query, cfg.Fanout),
		profiles:  NewProfileLoader(indexer, resolver, query, cfg.Types, cfg.ProfileTotalSupply, cfg.Fanout),
		cfg:       cfg,
		logger:    zap.L().With(zap.String("component", "discussion")),
		stop:      make(chan bool),
		done:      make(chan bool),
		wg:        wg,
	}
	service.depth.Store(int64(cfg.ComputeDepth))

	if err = pending.DBSync(); err != nil {
		return nil, fmt.Errorf("failed to load pending comments - %s", err.Error())
	}

	return service, nil
}

func (s *Service) State() *state.ForumState {
	return s.state
}

func (s *Service) Links() forum.Links {
	return s.cfg.Links
}

func (s *Service) SetSpamLimit(n int) {
	s.spam.SetThreshold(n)
	s.logger.Info("spam limit updated", zap.Int("spam_limit", s.spam.Threshold()))
}

func (s *Service) SpamLimit() int {
	return s.spam.Threshold()
}

func (s *Service) SetComputeDepth(n int) {
	if n < 0 {
		n = 0
	}
	s.depth.Store(int64(n))
	s.logger.Info("compute depth updated", zap.Int("compute_depth", n))
}

func (s *Service) ComputeDepth() int {
	return int(s.depth.Load())
}

// FetchThread exposes the assembler without touching the published state.
func (s *Service) FetchThread(ctx context.Context, pointer string, isReply bool) ([]forum.Comment, error) {
	return s.assembler.FetchThread(ctx, pointer, isReply)
}

// LoadThreads refreshes the forest of the selected discussion. Top level
// threads are published oldest first, replies stay newest first. Loads run
// one at a time.
func (s *Service) LoadThreads(ctx context.Context) error {
	s.beginLoad()
	defer s.endLoad()

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.loadThreads(ctx)
}

func (s *Service) loadThreads(ctx context.Context) error {
	discussion := s.state.Discussion.Get()
	s.state.Error.Set("")

	start := time.Now()
	threads, err := s.assembler.FetchThread(ctx, discussion, false)
	threadFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("failed to load threads", zap.String("discussion", discussion), zap.Error(err))
		s.state.Error.Set(err.Error())
		return err
	}

	SortOldestFirst(threads)
	threads = s.reconcile(ctx, discussion, threads)

	if current := s.state.Discussion.Get(); current != discussion {
		s.logger.Debug("discarding threads of a deselected discussion",
			zap.String("discussion", discussion),
			zap.String("selected", current))
		return nil
	}
	s.state.Threads.Set(threads)

	s.logger.Debug("threads loaded",
		zap.String("discussion", discussion),
		zap.Int("threads", len(threads)),
		zap.Int64("durationMs", time.Since(start).Milliseconds()),
	)

	return nil
}

// beginLoad and endLoad keep Loading true while any load is queued or running.
func (s *Service) beginLoad() {
	s.loadingMu.Lock()
	defer s.loadingMu.Unlock()
	s.loading++
	s.state.Loading.Set(true)
}

func (s *Service) endLoad() {
	s.loadingMu.Lock()
	defer s.loadingMu.Unlock()
	s.loading--
	if s.loading == 0 {
		s.state.Loading.Set(false)
	}
}

// SelectDiscussion switches the published discussion and reloads it. It waits
// for a load in flight, so the old forest never replaces the new one.
func (s *Service) SelectDiscussion(ctx context.Context, id string) error {
	s.beginLoad()
	defer s.endLoad()

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.state.Discussion.Set(id)
	s.state.Threads.Set([]forum.Comment{})
	return s.loadThreads(ctx)
}

// Threads returns the published forest.
func (s *Service) Threads() []forum.Comment {
	return s.state.Threads.Get()
}

// CommentScore scores a comment of the published forest.
func (s *Service) CommentScore(id string) (int, bool) {
	c, ok := findComment(s.state.Threads.Get(), id)
	if !ok {
		return 0, false
	}
	return forum.Score(c), true
}

func (s *Service) SpamCount(ctx context.Context, id string) (int, bool, error) {
	count, err := s.spam.Count(ctx, id)
	if err != nil {
		return 0, false, err
	}
	return count, count > s.spam.Threshold(), nil
}

// LoadProfile fetches and publishes the profile of the connected wallet.
// The published profile is cleared on any failure.
func (s *Service) LoadProfile(ctx context.Context) (*forum.ReputationProof, error) {
	if s.wallet == nil {
		s.state.Profile.Set(nil)
		return nil, ErrNoWallet
	}

	address, err := s.wallet.ChangeAddress(ctx)
	if err != nil || address == "" {
		s.state.Profile.Set(nil)
		if err == nil {
			err = ErrNoWallet
		}
		return nil, err
	}

	proof, err := s.profiles.FetchProfile(ctx, address)
	if err != nil {
		s.state.Profile.Set(nil)
		if errors.Is(err, forum.ErrProfileNotFound) {
			s.logger.Info("no profile boxes found", zap.String("address", address))
		} else {
			s.logger.Error("failed to fetch profile", zap.String("address", address), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Debug("profile found", zap.String("token_id", proof.TokenId), zap.Int("boxes", proof.NumberOfBoxes))
	s.state.Profile.Set(proof)
	s.state.Proofs.Update(func(cur forum.Proofs) forum.Proofs {
		next := make(forum.Proofs, len(cur)+1)
		for k, v := range cur {
			next[k] = v
		}
		next[proof.TokenId] = proof
		return next
	})

	return proof, nil
}

// LoadProofs fetches every proof of the configured types and publishes the
// catalogue. Partial results are published alongside the aggregated error.
func (s *Service) LoadProofs(ctx context.Context) (forum.Proofs, error) {
	proofs, err := s.profiles.FetchProofs(ctx, s.cfg.ProofTypes)
	if err != nil {
		s.logger.Warn("some reputation proofs failed to load", zap.Error(err))
	}

	if profile := s.state.Profile.Get(); profile != nil {
		if _, ok := proofs[profile.TokenId]; !ok {
			proofs[profile.TokenId] = profile
		}
	}
	s.state.Proofs.Set(proofs)

	return proofs, err
}

// Reputation scores target from the point of view of the proof of tokenId.
func (s *Service) Reputation(tokenId, target string) (float64, error) {
	proofs := s.state.Proofs.Get()
	p, ok := proofs[tokenId]
	if !ok {
		return 0, fmt.Errorf("%w - %s", ErrProofNotFound, tokenId)
	}
	return forum.Compute(proofs, p, target, s.ComputeDepth()), nil
}

func (s *Service) refresh() {
	if err := s.LoadThreads(s.ctx); err != nil {
		return
	}
	if s.wallet != nil {
		s.LoadProfile(s.ctx)
	}
	if len(s.cfg.ProofTypes) > 0 {
		s.LoadProofs(s.ctx)
	}
}

func wait(sleepTime time.Duration, c chan bool) {
	time.Sleep(sleepTime)
	c <- true
}

func (s *Service) poll(stop chan bool) {
	refresh := make(chan bool, 1)
	refresh <- true

loop:
	for {
		select {
		case <-stop:
			s.logger.Info("stopping poll() loop...")
			s.wg.Done()
			break loop
		case <-refresh:
			s.refresh()
		}

		go wait(s.cfg.PollInterval, refresh)
	}
}

func (s *Service) Start() {
	stopPolling := make(chan bool)
	s.wg.Add(1)
	go s.poll(stopPolling)

	// Wait for a "stop" message in the background to stop the service.
	go func() {
		<-s.stop
		stopPolling <- true
		s.done <- true
	}()
}

func (s *Service) Stop() {
	s.cancel()
	s.stop <- true
}

func (s *Service) Wait(wg *sync.WaitGroup) {
	defer wg.Done()
	<-s.done
}
