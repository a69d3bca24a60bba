package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/nikhil/saasbase/internal/logger"
	teammodels "github.com/nikhil/saasbase/internal/models/teams"
	usermodels "github.com/nikhil/saasbase/internal/models/users"
	"github.com/nikhil/saasbase/internal/testkit"
)

type fakeGateway struct {
	checkout     *stripe.CheckoutSessionParams
	retrieved    *stripe.CheckoutSession
	products     map[string]*stripe.Product
	newProducts  []string
	newPrices    []int64
	checkoutErr  error
	productCalls int
}

func (f *fakeGateway) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	f.checkout = params
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

func (f *fakeGateway) GetCheckoutSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return f.retrieved, nil
}

func (f *fakeGateway) GetProduct(id string, params *stripe.ProductParams) (*stripe.Product, error) {
	f.productCalls++
	p, ok := f.products[id]
	if !ok {
		return nil, errors.New("no such product")
	}
	return p, nil
}

func (f *fakeGateway) NewProduct(params *stripe.ProductParams) (*stripe.Product, error) {
	f.newProducts = append(f.newProducts, *params.Name)
	return &stripe.Product{ID: "prod_" + *params.Name, Name: *params.Name}, nil
}

func (f *fakeGateway) NewPrice(params *stripe.PriceParams) (*stripe.Price, error) {
	f.newPrices = append(f.newPrices, *params.UnitAmount)
	return &stripe.Price{ID: "price_1"}, nil
}

func seedTeam(t *testing.T, store *testkit.Store, customerID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	if err := store.Users.Create(ctx, usermodels.User{ID: "u1", Email: "owner@acme.test"}); err != nil {
		t.Fatal(err)
	}
	team := teammodels.Team{ID: "t1", Name: "Acme", CreatedAt: now, UpdatedAt: now}
	if customerID != "" {
		team.StripeCustomerID = &customerID
	}
	if err := store.Teams.CreateTeam(ctx, team); err != nil {
		t.Fatal(err)
	}
	if err := store.Teams.AddMember(ctx, teammodels.TeamMember{ID: "m1", UserID: "u1", TeamID: "t1", Role: teammodels.RoleOwner, JoinedAt: now}); err != nil {
		t.Fatal(err)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, testkit.NewStore().Teams, Config{BaseURL: "https://app.test/"}, logger.NewNop())

	url, err := svc.CreateCheckoutSession(context.Background(), CheckoutParams{PriceID: "price_base", ClientReferenceID: "u1"})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if url != "https://checkout.stripe.test/cs_1" {
		t.Fatalf("url = %q", url)
	}
	p := gw.checkout
	if *p.Mode != "subscription" || *p.LineItems[0].Price != "price_base" || *p.ClientReferenceID != "u1" {
		t.Fatalf("unexpected params: %+v", p)
	}
	if *p.SuccessURL != "https://app.test/api/stripe/checkout?session_id={CHECKOUT_SESSION_ID}" || *p.CancelURL != "https://app.test/pricing" {
		t.Fatalf("unexpected urls: %s %s", *p.SuccessURL, *p.CancelURL)
	}
	if p.Customer != nil {
		t.Fatal("customer must be omitted when unknown")
	}
}

func TestCreateCheckoutSession_NotConfigured(t *testing.T) {
	svc := NewService(nil, testkit.NewStore().Teams, Config{}, logger.NewNop())
	if _, err := svc.CreateCheckoutSession(context.Background(), CheckoutParams{PriceID: "p"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func subscription(status stripe.SubscriptionStatus, product *stripe.Product) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       "sub_1",
		Status:   status,
		Customer: &stripe.Customer{ID: "cus_1"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			{ID: "si_1", Plan: &stripe.Plan{ID: "plan_1", Product: product}},
		}},
	}
}

func TestHandleSubscriptionChange(t *testing.T) {
	store := testkit.NewStore()
	seedTeam(t, store, "cus_1")
	gw := &fakeGateway{products: map[string]*stripe.Product{"prod_plus": {ID: "prod_plus", Name: "Plus"}}}
	svc := NewService(gw, store.Teams, Config{}, logger.NewNop())
	ctx := context.Background()

	if err := svc.HandleSubscriptionChange(ctx, subscription(stripe.SubscriptionStatusTrialing, &stripe.Product{ID: "prod_plus"})); err != nil {
		t.Fatalf("active change: %v", err)
	}
	team, _ := store.Team("t1")
	if team.StripeSubscriptionID == nil || *team.PlanName != "Plus" || *team.SubscriptionStatus != "trialing" || *team.StripeProductID != "prod_plus" {
		t.Fatalf("unexpected team after activation: %+v", team)
	}
	if gw.productCalls != 1 {
		t.Fatalf("product lookups = %d", gw.productCalls)
	}

	if err := svc.HandleSubscriptionChange(ctx, subscription(stripe.SubscriptionStatusCanceled, nil)); err != nil {
		t.Fatalf("cancel change: %v", err)
	}
	team, _ = store.Team("t1")
	if team.StripeSubscriptionID != nil || team.PlanName != nil || team.StripeProductID != nil {
		t.Fatalf("billing fields not cleared: %+v", team)
	}
	if *team.SubscriptionStatus != "canceled" || *team.StripeCustomerID != "cus_1" {
		t.Fatalf("unexpected team after cancel: %+v", team)
	}
}

func TestHandleSubscriptionChange_UnknownCustomer(t *testing.T) {
	svc := NewService(&fakeGateway{}, testkit.NewStore().Teams, Config{}, logger.NewNop())
	if err := svc.HandleSubscriptionChange(context.Background(), subscription(stripe.SubscriptionStatusActive, nil)); err != nil {
		t.Fatalf("expected unknown customers to be ignored, got %v", err)
	}
}

func TestCompleteCheckout(t *testing.T) {
	store := testkit.NewStore()
	seedTeam(t, store, "")
	gw := &fakeGateway{retrieved: &stripe.CheckoutSession{
		ID:                "cs_1",
		ClientReferenceID: "u1",
		Customer:          &stripe.Customer{ID: "cus_9"},
		Subscription:      subscription(stripe.SubscriptionStatusActive, &stripe.Product{ID: "prod_base", Name: "Base"}),
	}}
	svc := NewService(gw, store.Teams, Config{}, logger.NewNop())

	if err := svc.CompleteCheckout(context.Background(), "cs_1"); err != nil {
		t.Fatalf("CompleteCheckout: %v", err)
	}
	team, _ := store.Team("t1")
	if *team.StripeCustomerID != "cus_9" || *team.PlanName != "Base" || *team.SubscriptionStatus != "active" {
		t.Fatalf("unexpected team: %+v", team)
	}
}

const webhookSecret = "whsec_test"

func signed(payload string) (string, []byte) {
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(payload), Secret: webhookSecret})
	return sp.Header, sp.Payload
}

func TestWebhook(t *testing.T) {
	store := testkit.NewStore()
	seedTeam(t, store, "cus_1")
	svc := NewService(&fakeGateway{}, store.Teams, Config{WebhookSecret: webhookSecret}, logger.NewNop())

	header, payload := signed(`{
		"id": "evt_1",
		"object": "event",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "object": "subscription", "customer": "cus_1", "status": "unpaid"}}
	}`)

	event, err := svc.ParseEvent(payload, header)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	team, _ := store.Team("t1")
	if *team.SubscriptionStatus != "unpaid" {
		t.Fatalf("status = %v", team.SubscriptionStatus)
	}

	if _, err := svc.ParseEvent(payload, "t=1,v1=deadbeef"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestSeedPlans(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, testkit.NewStore().Teams, Config{}, logger.NewNop())

	if err := svc.SeedPlans(context.Background(), DefaultPlans); err != nil {
		t.Fatalf("SeedPlans: %v", err)
	}
	if len(gw.newProducts) != 2 || gw.newProducts[0] != "Base" || gw.newPrices[1] != 1200 {
		t.Fatalf("unexpected plans: %v %v", gw.newProducts, gw.newPrices)
	}
}
