package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bazaar/internal/domain"
)

const (
	MaxPageSize         = 20
	DefaultFetchTimeout = 10 * time.Second
)

type SessionState int

const (
	SessionRunning SessionState = iota
	SessionSucceeded
	SessionAborted
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionRunning:
		return "running"
	case SessionSucceeded:
		return "succeeded"
	case SessionAborted:
		return "aborted"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// fetchSession is one fetch attempt. It may write the store only while its
// id equals the owning Session's counter.
type fetchSession struct {
	id       uint64
	cursor   *time.Time
	filter   domain.Filter
	append   bool
	ctx      context.Context
	cancel   context.CancelFunc
	deadline time.Time
	started  time.Time
	state    SessionState
}

type SessionConfig struct {
	// ViewerID is the viewer's profile id; zero means anonymous.
	ViewerID     int64
	PageSize     int
	FetchTimeout time.Duration
}

// Session owns the fetch lifecycle of one feed: cursor, supersession,
// per-attempt deadline, enrichment and visibility filtering.
type Session struct {
	repos    Repositories
	joiner   *Joiner
	store    *Store
	viewerID int64
	pageSize int
	timeout  time.Duration
	log      *slog.Logger

	mu          sync.Mutex
	counter     uint64
	current     *fetchSession
	filter      domain.Filter
	cursor      *time.Time
	memberships domain.MembershipSet
	loading     bool
	lastErr     error
	lastState   SessionState
}

func NewSession(repos Repositories, store *Store, cfg SessionConfig, log *slog.Logger) *Session {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	return &Session{
		repos:    repos,
		joiner:   NewJoiner(repos, log),
		store:    store,
		viewerID: cfg.ViewerID,
		pageSize: pageSize,
		timeout:  timeout,
		log:      log,
	}
}

// Refresh fetches the newest page for filter and replaces the stored posts.
// Any in-flight fetch is cancelled and its result discarded. Only a
// rejected page query is returned as an error; timeouts and supersession
// leave the store as it was and return nil.
func (s *Session) Refresh(ctx context.Context, filter domain.Filter) error {
	s.mu.Lock()
	s.filter = filter
	fs := s.startLocked(ctx, filter, nil, false)
	s.mu.Unlock()

	return s.run(fs)
}

// Reload refreshes with the current filter.
func (s *Session) Reload(ctx context.Context) error {
	return s.Refresh(ctx, s.Filter())
}

// LoadMore fetches the page older than the last fetched post and appends it.
// The cursor follows the unfiltered page, so a page the visibility filter
// emptied still moves it. It does nothing while a fetch is in flight, before
// the first page is fetched, or once the previous page signalled the end.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()

	if s.current != nil && s.current.state == SessionRunning {
		s.mu.Unlock()
		return nil
	}

	if s.cursor == nil || !s.store.HasMore() {
		s.mu.Unlock()
		return nil
	}

	cursor := *s.cursor
	fs := s.startLocked(ctx, s.filter, &cursor, true)
	s.mu.Unlock()

	return s.run(fs)
}

func (s *Session) startLocked(
	ctx context.Context,
	filter domain.Filter,
	cursor *time.Time,
	appendMode bool,
) *fetchSession {
	if s.current != nil && s.current.state == SessionRunning {
		s.current.cancel()
	}

	s.counter++

	sessCtx, cancel := context.WithTimeout(ctx, s.timeout)
	deadline, _ := sessCtx.Deadline()

	fs := &fetchSession{
		id:       s.counter,
		cursor:   cursor,
		filter:   filter,
		append:   appendMode,
		ctx:      sessCtx,
		cancel:   cancel,
		deadline: deadline,
		started:  time.Now(),
		state:    SessionRunning,
	}

	s.current = fs
	s.loading = true

	return fs
}

func (s *Session) run(fs *fetchSession) error {
	defer fs.cancel()

	filter := fs.filter

	var memberships domain.MembershipSet
	if s.authenticated() {
		var ok bool
		if memberships, ok = s.resolveMemberships(fs); !ok {
			return s.abort(fs)
		}
	}

	if len(memberships) == 0 {
		filter.WithoutCommunity = true
	}

	raw, err := s.repos.Posts.FetchPage(fs.ctx, filter, fs.cursor, s.pageSize)
	if err != nil {
		if fs.ctx.Err() != nil {
			return s.abort(fs)
		}

		return s.fail(fs, &QueryError{Err: err})
	}

	if fs.ctx.Err() != nil {
		return s.abort(fs)
	}

	var page []domain.DecoratedPost
	if !s.authenticated() {
		page = undecorated(raw)
	} else {
		page = s.joiner.Decorate(fs.ctx, raw, s.viewerID)
		if fs.ctx.Err() != nil {
			return s.abort(fs)
		}

		if len(memberships) != 0 {
			before := len(page)
			page = FilterVisible(page, memberships)
			postsFiltered.Add(float64(before - len(page)))
		}
	}

	page = s.guard(fs, page, filter)

	// The end of the feed is estimated from the unfiltered page, so a page
	// narrowed by the visibility filter still allows loading more.
	hasMore := len(raw) == s.pageSize

	var tail *time.Time
	if len(raw) > 0 {
		last := raw[len(raw)-1].CreatedAt
		tail = &last
	}

	s.commit(fs, page, tail, hasMore)

	return nil
}

func (s *Session) authenticated() bool {
	return s.viewerID != 0
}

// resolveMemberships returns the cached set or fetches it. A failed lookup
// yields an empty set for this fetch only. It reports false when the
// session's context is done.
func (s *Session) resolveMemberships(fs *fetchSession) (domain.MembershipSet, bool) {
	s.mu.Lock()
	known := s.memberships
	s.mu.Unlock()

	if known != nil {
		return known, true
	}

	memberships, err := s.repos.Memberships.MembershipsFor(fs.ctx, s.viewerID)
	if err != nil {
		if fs.ctx.Err() != nil {
			return nil, false
		}

		s.log.WarnContext(fs.ctx, "Failed to fetch memberships, showing community-less posts only",
			"error", err,
			"viewerID", s.viewerID,
			"sessionID", fs.id)

		return domain.MembershipSet{}, true
	}

	if memberships == nil {
		memberships = domain.MembershipSet{}
	}

	s.mu.Lock()
	s.memberships = memberships
	s.mu.Unlock()

	return memberships, true
}

func (s *Session) guard(
	fs *fetchSession,
	page []domain.DecoratedPost,
	filter domain.Filter,
) []domain.DecoratedPost {
	out := page[:0]
	for _, p := range page {
		if !publishable(&p.Post, filter) {
			s.log.WarnContext(fs.ctx, "Dropping post the page query should not have returned",
				"postID", p.ID,
				"visibility", p.Visibility,
				"deleted", p.DeletedAt != nil,
				"sessionID", fs.id)

			continue
		}

		out = append(out, p)
	}

	return out
}

func (s *Session) commit(fs *fetchSession, page []domain.DecoratedPost, tail *time.Time, hasMore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fs.id != s.counter {
		s.finishLocked(fs, SessionAborted)
		s.log.DebugContext(fs.ctx, "Discarding result of superseded fetch",
			"sessionID", fs.id,
			"currentSessionID", s.counter,
			"pageLen", len(page))

		return
	}

	if fs.append {
		s.store.Append(page)
		if tail != nil {
			s.cursor = tail
		}
	} else {
		s.store.Replace(page)
		s.cursor = tail
	}
	s.store.SetHasMore(hasMore)

	s.lastErr = nil
	s.finishLocked(fs, SessionSucceeded)
}

func (s *Session) abort(fs *fetchSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finishLocked(fs, SessionAborted)
	s.log.DebugContext(fs.ctx, "Fetch is aborted",
		"error", fs.ctx.Err(),
		"sessionID", fs.id,
		"deadline", fs.deadline)

	return nil
}

func (s *Session) fail(fs *fetchSession, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fs.id != s.counter {
		s.finishLocked(fs, SessionAborted)
		s.log.DebugContext(fs.ctx, "Discarding failure of superseded fetch",
			"error", err,
			"sessionID", fs.id,
			"currentSessionID", s.counter)

		return nil
	}

	s.lastErr = err
	s.finishLocked(fs, SessionFailed)
	s.log.ErrorContext(fs.ctx, "Failed to fetch feed page",
		"error", err,
		"sessionID", fs.id,
		"viewerID", s.viewerID)

	return err
}

func (s *Session) finishLocked(fs *fetchSession, state SessionState) {
	fs.state = state

	sessionsTotal.WithLabelValues(state.String()).Inc()
	sessionDuration.Observe(time.Since(fs.started).Seconds())

	if fs.id == s.counter {
		s.loading = false
		s.lastState = state
	}
}

// ForgetMemberships makes the next fetch re-resolve the viewer's memberships.
func (s *Session) ForgetMemberships() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memberships = nil
}

func (s *Session) Posts() []domain.DecoratedPost {
	return s.store.Posts()
}

func (s *Session) HasMore() bool {
	return s.store.HasMore()
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loading
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// LastState is the outcome of the most recent fetch that was not superseded.
func (s *Session) LastState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastState
}

func (s *Session) Filter() domain.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filter
}

func (s *Session) ViewerID() int64 {
	return s.viewerID
}
