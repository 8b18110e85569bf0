package purchases

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"gateflow/internal/domain/access"
	"gateflow/internal/domain/billing"
	"gateflow/internal/domain/coupons"
	"gateflow/internal/domain/products"
	"gateflow/internal/domain/users"

	"github.com/google/uuid"
)

// --- In-memory Store ---

type memStore struct {
	mu           sync.Mutex
	rowLocks     map[string]*sync.Mutex          // per session id, like FOR UPDATE
	transactions map[string]*billing.Transaction // by session id
	products     map[uuid.UUID]*products.Product
	bumps        map[string]*products.OrderBump // productID+bumpProductID
	usersByEmail map[string]*users.User
	nextUserID   uint
	grants       map[string]*access.Grant // userID:productID
	tokens       []*users.MagicLinkToken
	coupons      map[uuid.UUID]*coupons.Coupon
	couponUses   map[uuid.UUID]int
	createdOTOs  []*coupons.Coupon
}

func newMemStore() *memStore {
	return &memStore{
		rowLocks:     map[string]*sync.Mutex{},
		transactions: map[string]*billing.Transaction{},
		products:     map[uuid.UUID]*products.Product{},
		bumps:        map[string]*products.OrderBump{},
		usersByEmail: map[string]*users.User{},
		nextUserID:   100,
		grants:       map[string]*access.Grant{},
		coupons:      map[uuid.UUID]*coupons.Coupon{},
		couponUses:   map[uuid.UUID]int{},
	}
}

func grantKey(userID uint, productID uuid.UUID) string {
	return fmt.Sprintf("%d:%s", userID, productID)
}

func (m *memStore) rowLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rowLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.rowLocks[sessionID] = l
	}
	return l
}

func (m *memStore) Transact(ctx context.Context, fn func(Store) error) error {
	tx := &memTx{memStore: m}
	defer tx.release()
	return fn(tx)
}

// Outside a transaction a claim degrades to a plain read, mirroring a
// FOR UPDATE whose lock ends with the statement.
func (m *memStore) ClaimTransactionBySession(ctx context.Context, sessionID string) (*billing.Transaction, error) {
	return m.FindTransactionBySession(ctx, sessionID)
}

// memTx holds claimed row locks until the enclosing Transact returns, the
// way a database transaction holds them until commit.
type memTx struct {
	*memStore
	held []string
}

func (t *memTx) holds(sessionID string) bool {
	for _, s := range t.held {
		if s == sessionID {
			return true
		}
	}
	return false
}

func (t *memTx) acquire(sessionID string) {
	if t.holds(sessionID) {
		return
	}
	t.memStore.rowLock(sessionID).Lock()
	t.held = append(t.held, sessionID)
}

func (t *memTx) release() {
	for _, s := range t.held {
		t.memStore.rowLock(s).Unlock()
	}
	t.held = nil
}

func (t *memTx) ClaimTransactionBySession(ctx context.Context, sessionID string) (*billing.Transaction, error) {
	// Locking a row that does not exist locks nothing.
	if _, err := t.memStore.FindTransactionBySession(ctx, sessionID); err != nil {
		return nil, err
	}
	t.acquire(sessionID)
	return t.memStore.FindTransactionBySession(ctx, sessionID)
}

func (t *memTx) CreateTransaction(ctx context.Context, tr *billing.Transaction) error {
	t.acquire(tr.SessionID)
	return t.memStore.CreateTransaction(ctx, tr)
}

func (m *memStore) FindTransactionBySession(ctx context.Context, sessionID string) (*billing.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memStore) FindTransactionByPaymentIntent(ctx context.Context, paymentIntentID string) (*billing.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.StripePaymentIntentID != nil && *tx.StripePaymentIntentID == paymentIntentID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) CreateTransaction(ctx context.Context, t *billing.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transactions[t.SessionID]; exists {
		return ErrDuplicateSession
	}
	cp := *t
	m.transactions[t.SessionID] = &cp
	return nil
}

func (m *memStore) SaveTransaction(ctx context.Context, t *billing.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.transactions[t.SessionID] = &cp
	return nil
}

func (m *memStore) FindProduct(ctx context.Context, id uuid.UUID) (*products.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *memStore) FindBump(ctx context.Context, productID, bumpProductID uuid.UUID) (*products.OrderBump, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bumps[productID.String()+bumpProductID.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m *memStore) FindUserByEmail(ctx context.Context, email string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *memStore) CreateUser(ctx context.Context, u *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUserID++
	u.ID = m.nextUserID
	m.usersByEmail[strings.ToLower(u.Email)] = u
	return nil
}

func (m *memStore) CreateMagicToken(ctx context.Context, t *users.MagicLinkToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, t)
	return nil
}

func (m *memStore) UpsertGrant(ctx context.Context, g *access.Grant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := grantKey(g.UserID, g.ProductID)
	_, existed := m.grants[key]
	m.grants[key] = g
	return !existed, nil
}

func (m *memStore) DeleteGrant(ctx context.Context, userID uint, productID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := grantKey(userID, productID)
	_, existed := m.grants[key]
	delete(m.grants, key)
	return existed, nil
}

func (m *memStore) IncrementCouponUse(ctx context.Context, couponID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.couponUses[couponID]++
	return nil
}

func (m *memStore) CreateCoupon(ctx context.Context, c *coupons.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	m.coupons[c.ID] = c
	m.createdOTOs = append(m.createdOTOs, c)
	return nil
}

// --- Fixtures ---

func seedProduct(m *memStore, days int) *products.Product {
	p := &products.Product{
		ID:                 uuid.New(),
		Name:               "Async Patterns Course",
		Slug:               "async-patterns",
		PriceCents:         4900,
		Currency:           "usd",
		AccessDurationDays: days,
		Published:          true,
	}
	m.products[p.ID] = p
	return p
}

func seedPendingTx(m *memStore, sessionID string, productID uuid.UUID) *billing.Transaction {
	tx := &billing.Transaction{
		ID:          uuid.New(),
		SessionID:   sessionID,
		ProductID:   productID,
		AmountCents: 4900,
		Currency:    "usd",
		Status:      billing.StatusPending,
	}
	m.transactions[sessionID] = tx
	return tx
}

// --- Tests ---

func TestCompleteGuestNew(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 0)
	seedPendingTx(store, "cs_guest", product.ID)
	svc := NewService(store)

	res, err := svc.Complete(context.Background(), CompletionInput{
		SessionID:       "cs_guest",
		ProductID:       product.ID,
		CustomerEmail:   "new@example.com",
		AmountCents:     4900,
		Currency:        "usd",
		PaymentIntentID: "pi_guest",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if res.Scenario != ScenarioGuestNew {
		t.Errorf("scenario = %q, want %q", res.Scenario, ScenarioGuestNew)
	}
	if !res.AccessGranted || !res.RequiresLogin || !res.IsGuestPurchase {
		t.Errorf("flags = %+v", res)
	}
	if res.AccessExpiresAt != nil {
		t.Errorf("unlimited product got expiry %v", res.AccessExpiresAt)
	}
	if res.MagicLinkToken == "" {
		t.Error("guest purchase should issue a magic-link token")
	}

	user, err := store.FindUserByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("guest user not created: %v", err)
	}
	if user.AuthProvider != "magic" {
		t.Errorf("auth provider = %q, want magic", user.AuthProvider)
	}
	if _, ok := store.grants[grantKey(user.ID, product.ID)]; !ok {
		t.Error("grant not written for guest user")
	}

	tx := store.transactions["cs_guest"]
	if tx.Status != billing.StatusCompleted {
		t.Errorf("transaction status = %q, want completed", tx.Status)
	}
	if tx.StripePaymentIntentID == nil || *tx.StripePaymentIntentID != "pi_guest" {
		t.Errorf("payment intent not recorded: %v", tx.StripePaymentIntentID)
	}
}

func TestCompleteExistingUserEmail(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 30)
	seedPendingTx(store, "cs_known", product.ID)
	store.usersByEmail["known@example.com"] = &users.User{ID: 42, Email: "known@example.com", AuthProvider: "local"}
	svc := NewService(store)

	res, err := svc.Complete(context.Background(), CompletionInput{
		SessionID:     "cs_known",
		ProductID:     product.ID,
		CustomerEmail: "known@example.com",
		AmountCents:   4900,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if res.Scenario != ScenarioExistingUserEmail {
		t.Errorf("scenario = %q", res.Scenario)
	}
	if !res.RequiresLogin || res.IsGuestPurchase {
		t.Errorf("flags = %+v", res)
	}
	if res.UserID != 42 {
		t.Errorf("user id = %d, want 42", res.UserID)
	}
	if res.AccessExpiresAt == nil {
		t.Error("30-day product should have an expiry")
	}
	if len(store.tokens) != 1 || store.tokens[0].UserID != 42 {
		t.Errorf("magic token not issued for existing user: %v", store.tokens)
	}
}

func TestCompleteLoggedIn(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 0)
	seedPendingTx(store, "cs_auth", product.ID)
	svc := NewService(store)

	uid := uint(7)
	res, err := svc.Complete(context.Background(), CompletionInput{
		SessionID:     "cs_auth",
		ProductID:     product.ID,
		UserID:        &uid,
		CustomerEmail: "member@example.com",
		AmountCents:   4900,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if res.Scenario != ScenarioLoggedIn {
		t.Errorf("scenario = %q", res.Scenario)
	}
	if res.RequiresLogin {
		t.Error("logged-in purchase must not require login")
	}
	if res.MagicLinkToken != "" {
		t.Error("no magic link for logged-in purchase")
	}
	if len(store.tokens) != 0 {
		t.Errorf("tokens issued: %d", len(store.tokens))
	}
	if _, ok := store.grants[grantKey(7, product.ID)]; !ok {
		t.Error("grant not written")
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 0)
	seedPendingTx(store, "cs_twice", product.ID)
	svc := NewService(store)

	uid := uint(7)
	in := CompletionInput{
		SessionID:     "cs_twice",
		ProductID:     product.ID,
		UserID:        &uid,
		CustomerEmail: "member@example.com",
		AmountCents:   4900,
		Currency:      "usd",
	}

	first, err := svc.Complete(context.Background(), in)
	if err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	second, err := svc.Complete(context.Background(), in)
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}

	if first.AlreadyProcessed {
		t.Error("first call reported AlreadyProcessed")
	}
	if !second.AlreadyProcessed {
		t.Error("second call did not report AlreadyProcessed")
	}
	if len(store.grants) != 1 {
		t.Errorf("grants = %d, want 1", len(store.grants))
	}
}

func TestCompleteConcurrentDeliveries(t *testing.T) {
	store := newMemStore()
	otoTarget := seedProduct(store, 0)
	product := seedProduct(store, 0)
	product.OTOProductID = &otoTarget.ID
	product.OTODiscountPercent = 30

	couponID := uuid.New()
	tx := seedPendingTx(store, "cs_race", product.ID)
	tx.CouponID = &couponID
	svc := NewService(store)

	in := CompletionInput{
		SessionID:     "cs_race",
		ProductID:     product.ID,
		CouponID:      &couponID,
		CustomerEmail: "new@example.com",
		AmountCents:   3400,
		Currency:      "usd",
	}

	// checkout.session.completed and payment_intent.succeeded carry distinct
	// event IDs, so the event-level dedupe lets both through.
	results := make([]*CompletionResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Complete(context.Background(), in)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}
	already := 0
	for _, r := range results {
		if r.AlreadyProcessed {
			already++
		}
	}
	if already != 1 {
		t.Errorf("AlreadyProcessed count = %d, want 1", already)
	}
	if store.couponUses[couponID] != 1 {
		t.Errorf("coupon use count = %d, want 1", store.couponUses[couponID])
	}
	if len(store.createdOTOs) != 1 {
		t.Errorf("oto coupons created = %d, want 1", len(store.createdOTOs))
	}
	if len(store.tokens) != 1 {
		t.Errorf("magic tokens issued = %d, want 1", len(store.tokens))
	}
	if len(store.usersByEmail) != 1 {
		t.Errorf("users created = %d, want 1", len(store.usersByEmail))
	}
}

func TestCompleteConcurrentWithoutPendingRow(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 0)
	svc := NewService(store)

	uid := uint(7)
	in := CompletionInput{
		SessionID:     "cs_race_insert",
		ProductID:     product.ID,
		UserID:        &uid,
		CustomerEmail: "member@example.com",
		AmountCents:   4900,
		Currency:      "usd",
	}

	results := make([]*CompletionResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Complete(context.Background(), in)
		}(i)
	}
	wg.Wait()

	// The losing insert must surface as AlreadyProcessed, not as an error.
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}
	already := 0
	for _, r := range results {
		if r.AlreadyProcessed {
			already++
		}
	}
	if already != 1 {
		t.Errorf("AlreadyProcessed count = %d, want 1", already)
	}
	if len(store.grants) != 1 {
		t.Errorf("grants = %d, want 1", len(store.grants))
	}
	if got := store.transactions["cs_race_insert"]; got == nil || got.Status != billing.StatusCompleted {
		t.Errorf("transaction = %+v", got)
	}
}

func TestCompleteMissingCustomer(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	_, err := svc.Complete(context.Background(), CompletionInput{SessionID: "cs_x", ProductID: uuid.New()})
	if err != ErrMissingCustomer {
		t.Fatalf("err = %v, want ErrMissingCustomer", err)
	}
}

func TestCompleteRecordsTransactionWhenPendingRowMissing(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 0)
	svc := NewService(store)

	uid := uint(7)
	_, err := svc.Complete(context.Background(), CompletionInput{
		SessionID:     "cs_external",
		ProductID:     product.ID,
		UserID:        &uid,
		CustomerEmail: "member@example.com",
		AmountCents:   1900,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	tx, ok := store.transactions["cs_external"]
	if !ok {
		t.Fatal("transaction row not recorded")
	}
	if tx.Status != billing.StatusCompleted || tx.AmountCents != 1900 {
		t.Errorf("tx = %+v", tx)
	}
}

func TestCompleteGrantsBump(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 0)
	bumpProduct := seedProduct(store, 90)
	bumpProduct.Slug = "bonus-pack"
	override := 7
	store.bumps[product.ID.String()+bumpProduct.ID.String()] = &products.OrderBump{
		ID:                     uuid.New(),
		ProductID:              product.ID,
		BumpProductID:          bumpProduct.ID,
		BumpProduct:            bumpProduct,
		AccessDurationOverride: &override,
		Active:                 true,
	}
	tx := seedPendingTx(store, "cs_bump", product.ID)
	tx.BumpProductID = &bumpProduct.ID
	svc := NewService(store)

	uid := uint(7)
	_, err := svc.Complete(context.Background(), CompletionInput{
		SessionID:     "cs_bump",
		ProductID:     product.ID,
		BumpProductID: &bumpProduct.ID,
		UserID:        &uid,
		CustomerEmail: "member@example.com",
		AmountCents:   6900,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	g, ok := store.grants[grantKey(7, bumpProduct.ID)]
	if !ok {
		t.Fatal("bump grant not written")
	}
	if g.DurationDays != 7 {
		t.Errorf("bump grant duration = %d, want override 7", g.DurationDays)
	}
	if g.ExpiresAt == nil {
		t.Error("bump grant with override should have an expiry")
	}
}

func TestCompleteBumpConfigDeleted(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 0)
	bumpProduct := seedProduct(store, 90)
	tx := seedPendingTx(store, "cs_bumpless", product.ID)
	tx.BumpProductID = &bumpProduct.ID
	svc := NewService(store)

	uid := uint(7)
	_, err := svc.Complete(context.Background(), CompletionInput{
		SessionID:     "cs_bumpless",
		ProductID:     product.ID,
		BumpProductID: &bumpProduct.ID,
		UserID:        &uid,
		CustomerEmail: "member@example.com",
		AmountCents:   6900,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	g, ok := store.grants[grantKey(7, bumpProduct.ID)]
	if !ok {
		t.Fatal("bump grant not written when config deleted")
	}
	if g.DurationDays != 90 {
		t.Errorf("fallback duration = %d, want product's own 90", g.DurationDays)
	}
}

func TestCompleteBurnsCouponAndGeneratesOTO(t *testing.T) {
	store := newMemStore()
	otoTarget := seedProduct(store, 0)
	product := seedProduct(store, 0)
	product.OTOProductID = &otoTarget.ID
	product.OTODiscountPercent = 30
	product.OTOExpiresHours = 48

	couponID := uuid.New()
	tx := seedPendingTx(store, "cs_coupon", product.ID)
	tx.CouponID = &couponID
	svc := NewService(store)

	uid := uint(7)
	res, err := svc.Complete(context.Background(), CompletionInput{
		SessionID:     "cs_coupon",
		ProductID:     product.ID,
		CouponID:      &couponID,
		UserID:        &uid,
		CustomerEmail: "member@example.com",
		AmountCents:   3400,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if store.couponUses[couponID] != 1 {
		t.Errorf("coupon use count = %d, want 1", store.couponUses[couponID])
	}
	if res.OTOCouponCode == "" || !strings.HasPrefix(res.OTOCouponCode, "OTO-") {
		t.Errorf("oto code = %q", res.OTOCouponCode)
	}
	if len(store.createdOTOs) != 1 {
		t.Fatalf("oto coupons created = %d", len(store.createdOTOs))
	}
	oto := store.createdOTOs[0]
	if oto.MaxUses != 1 || !oto.OneTime || oto.DiscountValue != 30 {
		t.Errorf("oto coupon = %+v", oto)
	}
	if oto.ProductID == nil || *oto.ProductID != otoTarget.ID {
		t.Errorf("oto coupon bound to %v, want %s", oto.ProductID, otoTarget.ID)
	}
}

func TestCompleteByPaymentIntent(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 0)
	tx := seedPendingTx(store, "cs_pi", product.ID)
	pi := "pi_123"
	tx.StripePaymentIntentID = &pi
	tx.CustomerEmail = "member@example.com"
	svc := NewService(store)

	res, err := svc.CompleteByPaymentIntent(context.Background(), "pi_123", "", 0, "")
	if err != nil {
		t.Fatalf("CompleteByPaymentIntent: %v", err)
	}
	if res.SessionID != "cs_pi" {
		t.Errorf("session id = %q", res.SessionID)
	}
	if store.transactions["cs_pi"].Status != billing.StatusCompleted {
		t.Error("transaction not completed")
	}

	t.Run("unknown intent", func(t *testing.T) {
		_, err := svc.CompleteByPaymentIntent(context.Background(), "pi_nope", "", 0, "")
		if err != ErrNotFound {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestRefundRevokesAccess(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 0)
	bumpProduct := seedProduct(store, 0)
	svc := NewService(store)

	uid := uint(7)
	pi := "pi_refund"
	tx := seedPendingTx(store, "cs_refund", product.ID)
	tx.UserID = &uid
	tx.BumpProductID = &bumpProduct.ID
	tx.StripePaymentIntentID = &pi
	tx.Status = billing.StatusCompleted
	store.grants[grantKey(7, product.ID)] = &access.Grant{UserID: 7, ProductID: product.ID}
	store.grants[grantKey(7, bumpProduct.ID)] = &access.Grant{UserID: 7, ProductID: bumpProduct.ID}

	res, err := svc.Refund(context.Background(), "pi_refund", "")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}

	if !res.Found || !res.AccessRevoked || res.AlreadyDone {
		t.Errorf("result = %+v", res)
	}
	if len(store.grants) != 0 {
		t.Errorf("grants remaining after refund: %d", len(store.grants))
	}
	got := store.transactions["cs_refund"]
	if got.Status != billing.StatusRefunded || got.RefundedAt == nil {
		t.Errorf("tx = %+v", got)
	}
	if got.DisputedAt != nil {
		t.Errorf("DisputedAt stamped on a refund: %v", got.DisputedAt)
	}

	t.Run("second refund is a no-op", func(t *testing.T) {
		res, err := svc.Refund(context.Background(), "pi_refund", "")
		if err != nil {
			t.Fatalf("Refund: %v", err)
		}
		if !res.Found || !res.AlreadyDone {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestRefundUnknownTransaction(t *testing.T) {
	svc := NewService(newMemStore())

	res, err := svc.Refund(context.Background(), "pi_ghost", "")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if res.Found {
		t.Error("Found = true for unknown payment intent")
	}
}

func TestDisputeRecordsMetadata(t *testing.T) {
	store := newMemStore()
	product := seedProduct(store, 0)
	svc := NewService(store)

	uid := uint(7)
	pi := "pi_dispute"
	tx := seedPendingTx(store, "cs_dispute", product.ID)
	tx.UserID = &uid
	tx.StripePaymentIntentID = &pi
	tx.Status = billing.StatusCompleted
	store.grants[grantKey(7, product.ID)] = &access.Grant{UserID: 7, ProductID: product.ID}

	res, err := svc.Dispute(context.Background(), "pi_dispute", "", "dp_1", "fraudulent")
	if err != nil {
		t.Fatalf("Dispute: %v", err)
	}
	if !res.Found || !res.AccessRevoked {
		t.Errorf("result = %+v", res)
	}

	got := store.transactions["cs_dispute"]
	if got.Status != billing.StatusDisputed {
		t.Errorf("status = %q", got.Status)
	}
	if got.DisputeID == nil || *got.DisputeID != "dp_1" {
		t.Errorf("dispute id = %v", got.DisputeID)
	}
	if got.DisputeReason == nil || *got.DisputeReason != "fraudulent" {
		t.Errorf("dispute reason = %v", got.DisputeReason)
	}
	if got.DisputedAt == nil {
		t.Error("DisputedAt not stamped")
	}
	if got.RefundedAt != nil {
		t.Errorf("RefundedAt stamped on a dispute: %v", got.RefundedAt)
	}
}
