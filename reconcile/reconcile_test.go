package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	"artmarket-service/model"
	"artmarket-service/provision"
)

// ===== fakes =====

type fakeGateway struct {
	mu            sync.Mutex
	intents       map[string]*stripe.PaymentIntent
	captureErr    error
	captureCalls  int
	retrieveCalls int
	onCapture     func()
}

func (g *fakeGateway) RetrieveIntent(id string) (*stripe.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrieveCalls++
	pi, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such intent %s", id)
	}
	return pi, nil
}

func (g *fakeGateway) Capture(id string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	if g.onCapture != nil {
		g.onCapture()
	}
	if g.captureErr != nil {
		return 0, g.captureErr
	}
	return g.intents[id].Amount, nil
}

type alertRecord struct {
	intentID string
	reason   string
}

// fakeStore keys entitlements by kind/item/intent and remembers which buyer
// owns each one, mirroring the owner columns the real store filters on.
type fakeStore struct {
	mu           sync.Mutex
	entitlements map[string]uint
	donations    map[string]int64
	alerts       []alertRecord
	missingItems map[uint]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entitlements: map[string]uint{},
		donations:    map[string]int64{},
		missingItems: map[uint]bool{},
	}
}

func entKey(kind model.ItemKind, itemID uint, intentID string) string {
	return fmt.Sprintf("%s/%d/%s", kind, itemID, intentID)
}

func (s *fakeStore) EntitlementExists(_ context.Context, kind model.ItemKind, itemID uint, intentID string, userID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.entitlements[entKey(kind, itemID, intentID)]
	return ok && (userID == 0 || owner == userID), nil
}

func (s *fakeStore) RecordDonation(_ context.Context, intentID string, _ uint, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.donations[intentID]; !ok {
		s.donations[intentID] = amount
	}
	return nil
}

func (s *fakeStore) RecordAlert(_ context.Context, intentID, _ string, _ uint, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alertRecord{intentID: intentID, reason: reason})
	return nil
}

// fakeProvisioner writes entitlements into the shared fake store; the
// store's mutex plays the role of the database's conditional create.
type fakeProvisioner struct {
	store          *fakeStore
	provisionCalls int
	rollbackCalls  int
}

func (p *fakeProvisioner) Provision(_ context.Context, ord provision.Order) (*provision.Receipt, error) {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	p.provisionCalls++

	if p.store.missingItems[ord.ItemID] {
		return nil, provision.ErrItemNotFound
	}
	key := entKey(ord.Kind, ord.ItemID, ord.IntentID)
	if _, ok := p.store.entitlements[key]; ok {
		return nil, provision.ErrAlreadyExists
	}
	p.store.entitlements[key] = ord.BuyerID
	return &provision.Receipt{Kind: ord.Kind, ItemID: ord.ItemID, IntentID: ord.IntentID}, nil
}

func (p *fakeProvisioner) Rollback(_ context.Context, rec *provision.Receipt) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	p.rollbackCalls++
	delete(p.store.entitlements, entKey(rec.Kind, rec.ItemID, rec.IntentID))
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *fakeNotifier) PurchaseCompleted(_ provision.Order, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

// ===== helpers =====

func courseIntent(id string) *stripe.PaymentIntent {
	return &stripe.PaymentIntent{
		ID:     id,
		Status: stripe.PaymentIntentStatusRequiresCapture,
		Amount: 4999,
		Metadata: map[string]string{
			"item_id":    "1",
			"item_type":  "course",
			"buyer_id":   "7",
			"artist_id":  "3",
			"item_title": "Gouache Basics",
		},
	}
}

func succeededEvent(intentID string) stripe.Event {
	raw, _ := json.Marshal(map[string]string{"id": intentID})
	return stripe.Event{
		ID:   "evt_" + intentID,
		Type: "payment_intent.succeeded",
		Data: &stripe.EventData{Raw: raw},
	}
}

func sessionEvent(intentID string) stripe.Event {
	raw := []byte(fmt.Sprintf(
		`{"id":"cs_1","payment_intent":%q,"customer_details":{"name":"Jane Doe","address":{"line1":"1 Main St","city":"Portland","state":"OR","postal_code":"97201","country":"US"}}}`,
		intentID,
	))
	return stripe.Event{
		ID:   "evt_cs_" + intentID,
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
}

func newTestReconciler(gw *fakeGateway, store *fakeStore) (*Reconciler, *fakeProvisioner, *fakeNotifier) {
	prov := &fakeProvisioner{store: store}
	notifier := &fakeNotifier{}
	r := New(store, gw, provision.Registry{
		model.KindCourse:  prov,
		model.KindArtwork: prov,
		model.KindBook:    prov,
		model.KindProduct: prov,
	}, notifier)
	r.sleep = func(time.Duration) {}
	return r, prov, notifier
}

// ===== tests =====

func TestWebhookIdempotence(t *testing.T) {
	gw := &fakeGateway{intents: map[string]*stripe.PaymentIntent{"pi_123": courseIntent("pi_123")}}
	store := newFakeStore()
	r, prov, notifier := newTestReconciler(gw, store)

	// stripe redelivers; each delivery funnels through the same logic
	for i := 0; i < 3; i++ {
		require.NoError(t, r.HandleEvent(context.Background(), succeededEvent("pi_123")))
	}

	assert.Equal(t, 1, gw.captureCalls, "exactly one capture")
	assert.Equal(t, 3, prov.provisionCalls)
	assert.Equal(t, 0, prov.rollbackCalls)
	assert.Len(t, store.entitlements, 1, "exactly one entitlement")
	assert.Equal(t, 1, notifier.calls, "duplicates never re-notify")
	assert.Empty(t, store.alerts)
}

func TestConcurrentDeliveriesExactlyOnce(t *testing.T) {
	gw := &fakeGateway{intents: map[string]*stripe.PaymentIntent{"pi_race": courseIntent("pi_race")}}
	store := newFakeStore()
	r, _, _ := newTestReconciler(gw, store)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.HandleEvent(context.Background(), succeededEvent("pi_race")))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, gw.captureCalls)
	assert.Len(t, store.entitlements, 1)
}

func TestCaptureFailureRollsBack(t *testing.T) {
	gw := &fakeGateway{
		intents:    map[string]*stripe.PaymentIntent{"pi_bad": courseIntent("pi_bad")},
		captureErr: fmt.Errorf("card hold expired"),
	}
	store := newFakeStore()
	r, prov, notifier := newTestReconciler(gw, store)

	require.NoError(t, r.HandleEvent(context.Background(), succeededEvent("pi_bad")))

	assert.Equal(t, 1, prov.provisionCalls)
	assert.Equal(t, 1, prov.rollbackCalls)
	assert.Empty(t, store.entitlements, "entitlement rolled back")
	assert.Equal(t, 0, notifier.calls)
	require.Len(t, store.alerts, 1)
	assert.Equal(t, "pi_bad", store.alerts[0].intentID)
	assert.Contains(t, store.alerts[0].reason, "capture failed")
}

func TestNoCaptureWithoutFreshProvision(t *testing.T) {
	gw := &fakeGateway{intents: map[string]*stripe.PaymentIntent{"pi_dup": courseIntent("pi_dup")}}
	store := newFakeStore()
	r, _, _ := newTestReconciler(gw, store)

	// the webhook side already provisioned
	store.entitlements[entKey(model.KindCourse, 1, "pi_dup")] = 7

	require.NoError(t, r.HandleEvent(context.Background(), succeededEvent("pi_dup")))
	assert.Equal(t, 0, gw.captureCalls, "duplicate must not re-capture")
}

func TestCaptureOrderedAfterProvision(t *testing.T) {
	gw := &fakeGateway{intents: map[string]*stripe.PaymentIntent{"pi_ord": courseIntent("pi_ord")}}
	store := newFakeStore()
	r, _, _ := newTestReconciler(gw, store)

	gw.onCapture = func() {
		// the entitlement must exist by the time money moves
		if _, ok := store.entitlements[entKey(model.KindCourse, 1, "pi_ord")]; !ok {
			t.Error("capture invoked before provisioning")
		}
	}

	require.NoError(t, r.HandleEvent(context.Background(), succeededEvent("pi_ord")))
	assert.Equal(t, 1, gw.captureCalls)
}

func TestNotCapturableStatusAborts(t *testing.T) {
	pi := courseIntent("pi_gone")
	pi.Status = stripe.PaymentIntentStatusCanceled
	gw := &fakeGateway{intents: map[string]*stripe.PaymentIntent{"pi_gone": pi}}
	store := newFakeStore()
	r, prov, _ := newTestReconciler(gw, store)

	require.NoError(t, r.HandleEvent(context.Background(), succeededEvent("pi_gone")))

	assert.Equal(t, 0, prov.provisionCalls)
	assert.Equal(t, 0, gw.captureCalls)
	assert.Empty(t, store.entitlements)
	require.Len(t, store.alerts, 1, "dead holds still get an operator alert")
	assert.Equal(t, "pi_gone", store.alerts[0].intentID)
	assert.Contains(t, store.alerts[0].reason, "not capturable")
}

func TestMissingItemAbortsBeforeCapture(t *testing.T) {
	gw := &fakeGateway{intents: map[string]*stripe.PaymentIntent{"pi_404": courseIntent("pi_404")}}
	store := newFakeStore()
	store.missingItems[1] = true
	r, _, _ := newTestReconciler(gw, store)

	require.NoError(t, r.HandleEvent(context.Background(), succeededEvent("pi_404")))

	assert.Equal(t, 0, gw.captureCalls, "funds stay authorized but uncaptured")
	assert.Empty(t, store.entitlements)
	require.Len(t, store.alerts, 1)
	assert.Equal(t, "pi_404", store.alerts[0].intentID)
}

func TestInvalidMetadataAborts(t *testing.T) {
	pi := courseIntent("pi_meta")
	pi.Metadata["item_type"] = "sculpture"
	gw := &fakeGateway{intents: map[string]*stripe.PaymentIntent{"pi_meta": pi}}
	store := newFakeStore()
	r, prov, _ := newTestReconciler(gw, store)

	require.NoError(t, r.HandleEvent(context.Background(), succeededEvent("pi_meta")))

	assert.Equal(t, 0, prov.provisionCalls)
	assert.Equal(t, 0, gw.captureCalls)
	require.Len(t, store.alerts, 1)
}

func TestUnrelatedEventIgnored(t *testing.T) {
	gw := &fakeGateway{intents: map[string]*stripe.PaymentIntent{}}
	store := newFakeStore()
	r, _, _ := newTestReconciler(gw, store)

	event := stripe.Event{ID: "evt_x", Type: "invoice.paid", Data: &stripe.EventData{Raw: []byte(`{}`)}}
	require.NoError(t, r.HandleEvent(context.Background(), event))
	assert.Equal(t, 0, gw.retrieveCalls)
}

func TestCheckoutSessionCarriesShipping(t *testing.T) {
	pi := courseIntent("pi_ship")
	pi.Metadata["item_type"] = "artwork"
	gw := &fakeGateway{intents: map[string]*stripe.PaymentIntent{"pi_ship": pi}}
	store := newFakeStore()
	r, _, _ := newTestReconciler(gw, store)

	require.NoError(t, r.HandleEvent(context.Background(), sessionEvent("pi_ship")))

	assert.Equal(t, 1, gw.captureCalls)
	assert.Contains(t, store.entitlements, entKey(model.KindArtwork, 1, "pi_ship"))
}

func TestDonationRecordedOnce(t *testing.T) {
	pi := &stripe.PaymentIntent{
		ID:       "pi_don",
		Status:   stripe.PaymentIntentStatusSucceeded,
		Amount:   2500,
		Metadata: map[string]string{"donation": "true", "buyer_id": "7"},
	}
	gw := &fakeGateway{intents: map[string]*stripe.PaymentIntent{"pi_don": pi}}
	store := newFakeStore()
	r, prov, _ := newTestReconciler(gw, store)

	require.NoError(t, r.HandleEvent(context.Background(), succeededEvent("pi_don")))
	require.NoError(t, r.HandleEvent(context.Background(), succeededEvent("pi_don")))

	assert.Len(t, store.donations, 1)
	assert.Equal(t, int64(2500), store.donations["pi_don"])
	assert.Equal(t, 0, prov.provisionCalls, "donations skip provisioning")
	assert.Equal(t, 0, gw.captureCalls, "donations use immediate capture")
}
