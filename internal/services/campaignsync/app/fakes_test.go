package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/storage"
	"github.com/shopspring/decimal"
)

var errGatewayDown = errors.New("gateway down")

type fakeGateway struct {
	mu sync.Mutex

	campaigns   map[domain.ID]domain.Campaign
	donations   map[domain.ID][]domain.Donation
	updates     map[domain.ID][]domain.CampaignUpdate
	withdrawals map[domain.ID][]domain.WithdrawalRequest
	votes       map[domain.ID][]domain.Vote
	available   map[domain.ID]decimal.Decimal
	companions  map[domain.ID][]domain.Companion

	campaignErr  error
	mutationErr  error
	donationGate chan struct{}
	// held donation fetches block until their channel closes, even after
	// the caller gave up.
	held map[domain.ID]chan struct{}

	calls map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		campaigns:   make(map[domain.ID]domain.Campaign),
		donations:   make(map[domain.ID][]domain.Donation),
		updates:     make(map[domain.ID][]domain.CampaignUpdate),
		withdrawals: make(map[domain.ID][]domain.WithdrawalRequest),
		votes:       make(map[domain.ID][]domain.Vote),
		available:   make(map[domain.ID]decimal.Decimal),
		companions:  make(map[domain.ID][]domain.Companion),
		calls:       make(map[string]int),
	}
}

func (g *fakeGateway) hold(id domain.ID) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held == nil {
		g.held = make(map[domain.ID]chan struct{})
	}
	release := make(chan struct{})
	g.held[id] = release
	return release
}

func (g *fakeGateway) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *fakeGateway) record(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[name]++
}

func (g *fakeGateway) FetchCampaign(ctx context.Context, id domain.ID) (domain.Campaign, error) {
	g.record("fetch_campaign")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.campaignErr != nil {
		return domain.Campaign{}, g.campaignErr
	}
	campaign, ok := g.campaigns[id]
	if !ok {
		return domain.Campaign{}, errGatewayDown
	}
	return campaign, nil
}

func (g *fakeGateway) FetchDonations(ctx context.Context, id domain.ID) ([]domain.Donation, error) {
	g.record("fetch_donations")
	g.mu.Lock()
	gate := g.donationGate
	hold := g.held[id]
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if hold != nil {
		<-hold
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.donations[id], nil
}

func (g *fakeGateway) FetchUpdates(ctx context.Context, id domain.ID) ([]domain.CampaignUpdate, error) {
	g.record("fetch_updates")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.updates[id], nil
}

func (g *fakeGateway) CreateUpdate(ctx context.Context, id domain.ID, update domain.NewUpdate) (domain.CampaignUpdate, error) {
	g.record("create_update")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mutationErr != nil {
		return domain.CampaignUpdate{}, g.mutationErr
	}
	return domain.CampaignUpdate{ID: "u-new", Campaign: id, Content: update.Content}, nil
}

func (g *fakeGateway) DeleteUpdate(ctx context.Context, id, updateID domain.ID) error {
	g.record("delete_update")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mutationErr
}

func (g *fakeGateway) FetchWithdrawalRequests(ctx context.Context, id domain.ID) ([]domain.WithdrawalRequest, error) {
	g.record("fetch_withdrawals")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.withdrawals[id], nil
}

func (g *fakeGateway) CreateWithdrawalRequest(ctx context.Context, id domain.ID, request domain.NewWithdrawalRequest) (domain.WithdrawalRequest, error) {
	g.record("create_withdrawal")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mutationErr != nil {
		return domain.WithdrawalRequest{}, g.mutationErr
	}
	return domain.WithdrawalRequest{ID: "w-new", Status: domain.RequestPendingVoting, Amount: request.Amount}, nil
}

func (g *fakeGateway) FetchVotes(ctx context.Context, escrowID domain.ID) ([]domain.Vote, error) {
	g.record("fetch_votes")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.votes[escrowID], nil
}

func (g *fakeGateway) SubmitVote(ctx context.Context, escrowID domain.ID, vote domain.NewVote) (domain.Vote, error) {
	g.record("submit_vote")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mutationErr != nil {
		return domain.Vote{}, g.mutationErr
	}
	return domain.Vote{ID: "v-new", Escrow: escrowID, Vote: vote.Vote}, nil
}

func (g *fakeGateway) FetchAvailableAmount(ctx context.Context, id domain.ID) (decimal.Decimal, error) {
	g.record("fetch_available")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.available[id], nil
}

func (g *fakeGateway) FetchCompanions(ctx context.Context, id domain.ID) ([]domain.Companion, error) {
	g.record("fetch_companions")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.companions[id], nil
}

func (g *fakeGateway) JoinCompanion(ctx context.Context, id domain.ID) (domain.Companion, error) {
	g.record("join_companion")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mutationErr != nil {
		return domain.Companion{}, g.mutationErr
	}
	return domain.Companion{ID: "cp-new", User: domain.Ref{ID: "viewer"}, ReferralCode: "REF1"}, nil
}

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	calls     []string
	nextID    int
	handlers  map[string]map[int]func(json.RawMessage)
	listeners map[int]func(bool)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected: true,
		handlers:  make(map[string]map[int]func(json.RawMessage)),
		listeners: make(map[int]func(bool)),
	}
}

func (f *fakeTransport) OnStateChange(handler func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.listeners[id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// setConnected flips the connection and notifies listeners without the lock
// held, like the realtime client does after a dial or a read failure.
func (f *fakeTransport) setConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	listeners := make([]func(bool), 0, len(f.listeners))
	for _, listener := range f.listeners {
		listeners = append(listeners, listener)
	}
	f.mu.Unlock()
	for _, listener := range listeners {
		listener(connected)
	}
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, event+" "+payload.(string))
	return nil
}

func (f *fakeTransport) On(event string, handler func(json.RawMessage)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]func(json.RawMessage))
	}
	f.nextID++
	id := f.nextID
	f.handlers[event][id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[event], id)
	}
}

// deliver invokes every handler registered for event, in the caller's
// goroutine, the way the realtime client dispatches frames.
func (f *fakeTransport) deliver(event, payload string) {
	f.mu.Lock()
	handlers := make([]func(json.RawMessage), 0, len(f.handlers[event]))
	for _, handler := range f.handlers[event] {
		handlers = append(handlers, handler)
	}
	f.mu.Unlock()
	for _, handler := range handlers {
		handler(json.RawMessage(payload))
	}
}

func (f *fakeTransport) emitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, handlers := range f.handlers {
		total += len(handlers)
	}
	return total
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []storage.Entry
}

func (j *memoryJournal) Append(ctx context.Context, entry storage.Entry) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return int64(len(j.entries)), nil
}

func (j *memoryJournal) Recent(ctx context.Context, campaignID string, limit int) ([]storage.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]storage.Entry(nil), j.entries...), nil
}

func (j *memoryJournal) Close() error { return nil }

func waitForSnapshot(t *testing.T, view *View, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := view.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, last snapshot: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func loaded(snap Snapshot) bool {
	return snap.Status != StatusLoading && snap.Pending == 0
}
