package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/event"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/reconcile"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/storage"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/subscription"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kindfund/campaignsync/internal/services/campaignsync/app"

// Gateway is the REST surface a view reads and mutates through.
type Gateway interface {
	FetchCampaign(ctx context.Context, campaignID domain.ID) (domain.Campaign, error)
	FetchDonations(ctx context.Context, campaignID domain.ID) ([]domain.Donation, error)
	FetchUpdates(ctx context.Context, campaignID domain.ID) ([]domain.CampaignUpdate, error)
	CreateUpdate(ctx context.Context, campaignID domain.ID, update domain.NewUpdate) (domain.CampaignUpdate, error)
	DeleteUpdate(ctx context.Context, campaignID, updateID domain.ID) error
	FetchWithdrawalRequests(ctx context.Context, campaignID domain.ID) ([]domain.WithdrawalRequest, error)
	CreateWithdrawalRequest(ctx context.Context, campaignID domain.ID, request domain.NewWithdrawalRequest) (domain.WithdrawalRequest, error)
	FetchVotes(ctx context.Context, escrowID domain.ID) ([]domain.Vote, error)
	SubmitVote(ctx context.Context, escrowID domain.ID, vote domain.NewVote) (domain.Vote, error)
	FetchAvailableAmount(ctx context.Context, campaignID domain.ID) (decimal.Decimal, error)
	FetchCompanions(ctx context.Context, campaignID domain.ID) ([]domain.Companion, error)
	JoinCompanion(ctx context.Context, campaignID domain.ID) (domain.Companion, error)
}

// Config configures a View.
type Config struct {
	CampaignID domain.ID
	ViewerID   domain.ID
	Gateway    Gateway
	// Transport is shared with other consumers; the view never closes it.
	Transport subscription.Transport
	// Journal, when set, receives every realtime event the view handles.
	Journal    storage.Journal
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// View is one mounted campaign view.
type View struct {
	gateway Gateway
	journal storage.Journal
	logger  *slog.Logger
	metrics *metrics
	tracer  trace.Tracer
	manager *subscription.Manager

	ctx    context.Context
	cancel context.CancelFunc
	ops    chan func(*viewState)
	done   chan struct{}
	// changes holds at most the latest unread snapshot.
	changes chan Snapshot
	fetches sync.WaitGroup

	closeOnce sync.Once
	lastMu    sync.Mutex
	last      Snapshot
}

// New starts a view and mounts cfg.CampaignID when set.
func New(cfg Config) (*View, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("transport is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		gateway: cfg.Gateway,
		journal: cfg.Journal,
		logger:  logger,
		metrics: newMetrics(cfg.Registerer),
		tracer:  otel.Tracer(tracerName),
		ctx:     ctx,
		cancel:  cancel,
		ops:     make(chan func(*viewState)),
		done:    make(chan struct{}),
		changes: make(chan Snapshot, 1),
	}

	handlers := make([]subscription.Handler, 0, len(event.Names()))
	for _, name := range event.Names() {
		handlers = append(handlers, subscription.Handler{
			Event:  string(name),
			Handle: func(raw json.RawMessage) { v.handleEvent(name, raw) },
		})
	}
	v.manager = subscription.NewManager(cfg.Transport, handlers, subscription.ManagerOptions{
		Logger:   logger,
		Metrics:  subscription.NewMetrics(cfg.Registerer),
		OnRejoin: v.resync,
	})

	state := &viewState{viewerID: cfg.ViewerID, status: StatusLoading, inflight: make(map[resource]bool)}
	go v.loop(state)

	if !cfg.CampaignID.IsZero() {
		if err := v.Navigate(context.Background(), cfg.CampaignID); err != nil {
			v.Close()
			return nil, err
		}
	}
	return v, nil
}

func (v *View) loop(state *viewState) {
	defer close(v.done)
	for {
		select {
		case op := <-v.ops:
			op(state)
		case <-v.ctx.Done():
			state.endMount()
			return
		}
	}
}

// post hands op to the loop. It fails once the view is closed or ctx ends.
func (v *View) post(ctx context.Context, op func(*viewState)) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case v.ops <- op:
		return true
	case <-v.done:
		return false
	case <-v.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// query runs fn on the loop and waits for it to finish.
func (v *View) query(ctx context.Context, fn func(*viewState)) error {
	finished := make(chan struct{})
	if !v.post(ctx, func(s *viewState) {
		defer close(finished)
		fn(s)
	}) {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.New(apperrors.CodeViewClosed, "campaign view is closed")
	}
	<-finished
	return nil
}

// Navigate re-mounts the view on another campaign: the old room is left,
// the new one joined, and every collection re-fetched. Responses for the
// previous campaign are discarded.
func (v *View) Navigate(ctx context.Context, campaignID domain.ID) error {
	if campaignID.IsZero() {
		return apperrors.New(apperrors.CodeInvalidArgument, "campaign id is required")
	}
	return v.query(ctx, func(s *viewState) {
		v.mount(s, campaignID)
	})
}

// Reload re-mounts the current campaign.
func (v *View) Reload(ctx context.Context) error {
	return v.query(ctx, func(s *viewState) {
		if s.campaignID.IsZero() {
			return
		}
		v.mount(s, s.campaignID)
	})
}

// resync re-mounts campaignID after its room was joined again, since events
// pushed while disconnected never reached the view.
func (v *View) resync(campaignID domain.ID) {
	v.post(v.ctx, func(s *viewState) {
		if !domain.SameID(s.campaignID, campaignID) {
			return
		}
		v.logger.Info("campaign room rejoined, refetching", "campaign_id", campaignID.String())
		v.mount(s, campaignID)
	})
}

// SetViewer changes the viewer whose eligibility and vote the snapshot
// reports.
func (v *View) SetViewer(ctx context.Context, viewerID domain.ID) error {
	return v.query(ctx, func(s *viewState) {
		s.viewerID = viewerID
		v.publish(s)
	})
}

// Snapshot returns the current state. After Close it returns the last state
// with StatusClosed.
func (v *View) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := v.query(ctx, func(s *viewState) {
		snap = s.snapshot()
	})
	if err != nil && apperrors.HasCode(err, apperrors.CodeViewClosed) {
		v.lastMu.Lock()
		defer v.lastMu.Unlock()
		snap = v.last
		snap.Status = StatusClosed
		return snap, nil
	}
	return snap, err
}

// Changes delivers the latest snapshot after each state change. Unread
// snapshots are replaced by newer ones. The channel closes with the view.
func (v *View) Changes() <-chan Snapshot {
	return v.changes
}

// Close leaves the room, stops the loop, and discards responses still in
// flight. The transport stays open.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.manager.Close()
		v.cancel()
		<-v.done
		v.fetches.Wait()
		close(v.changes)
	})
}

// mount resets state for campaignID under a new generation.
func (v *View) mount(s *viewState, campaignID domain.ID) {
	s.endMount()
	s.reset(campaignID)
	s.mountCtx, s.mountCancel = context.WithCancel(v.ctx)
	s.mountCtx, s.mountSpan = v.tracer.Start(s.mountCtx, "campaignsync.view.mount", trace.WithAttributes(
		campaignAttr(campaignID),
	))
	v.metrics.mounts.Inc()

	if err := v.manager.SetCampaign(campaignID); err != nil {
		v.logger.Warn("join campaign room", "campaign_id", campaignID.String(), "error", err)
	}

	v.fetchCampaign(s)
	v.fetchDonations(s)
	v.fetchUpdates(s)
	v.fetchWithdrawals(s)
	v.fetchAvailableAmount(s)
	v.fetchCompanions(s)
	v.publish(s)
}

// publish sends the current snapshot to Changes and remembers it for reads
// after Close.
func (v *View) publish(s *viewState) {
	snap := s.snapshot()
	v.metrics.donations.Set(float64(len(snap.Donations)))

	v.lastMu.Lock()
	v.last = snap
	v.lastMu.Unlock()

	select {
	case <-v.changes:
	default:
	}
	select {
	case v.changes <- snap:
	default:
	}
}

// handleEvent decodes, applies, and journals one realtime event. It runs on
// the transport's delivery goroutine and blocks until the loop applied the
// event, so events apply in delivery order.
func (v *View) handleEvent(name event.Name, raw json.RawMessage) {
	ev, decodeErr := event.Decode(name, raw)

	var (
		campaignID domain.ID
		result     reconcile.Result
	)
	err := v.query(v.ctx, func(s *viewState) {
		campaignID = s.campaignID
		if decodeErr != nil {
			return
		}
		result = v.applyEvent(s, ev)
	})
	if err != nil {
		return
	}

	entry := storage.Entry{
		CampaignID: campaignID.String(),
		Event:      string(name),
		Payload:    raw,
		ReceivedAt: time.Now().UTC(),
	}
	switch {
	case decodeErr != nil:
		v.metrics.events.WithLabelValues(string(name), string(storage.StatusRejected)).Inc()
		v.logger.Warn("reject realtime payload", "event", string(name), "error", decodeErr)
		entry.Status = storage.StatusRejected
		entry.Reason = decodeErr.Error()
	case result.Changed():
		v.metrics.events.WithLabelValues(string(name), string(result.Outcome)).Inc()
		entry.Status = storage.StatusApplied
		entry.Outcome = string(result.Outcome)
	default:
		v.metrics.events.WithLabelValues(string(name), string(result.Outcome)).Inc()
		entry.Status = storage.StatusIgnored
		entry.Outcome = string(result.Outcome)
		entry.Reason = result.Reason
	}
	v.journalEntry(entry)
}

func (v *View) journalEntry(entry storage.Entry) {
	if v.journal == nil || entry.CampaignID == "" {
		return
	}
	if _, err := v.journal.Append(v.ctx, entry); err != nil && v.ctx.Err() == nil {
		v.logger.Warn("journal realtime event", "event", entry.Event, "error", err)
	}
}

// applyEvent merges ev into the loop-owned state.
func (v *View) applyEvent(s *viewState, ev event.Event) reconcile.Result {
	if s.status == StatusFailed {
		return reconcile.Result{Outcome: reconcile.Ignored, Reason: "view failed"}
	}

	next, result := reconcile.Apply(s.reconcileState(), ev)
	if result.Foreign() {
		return result
	}
	s.setReconcileState(next)
	if s.replayable() {
		s.pending = append(s.pending, ev)
	}
	if result.Changed() {
		v.publish(s)
	}
	return result
}
