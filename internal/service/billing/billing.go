package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/nikhil/saasbase/internal/logger"
	teammodels "github.com/nikhil/saasbase/internal/models/teams"
	"github.com/nikhil/saasbase/internal/repository"
)

// TrialPeriodDays is granted on every new subscription checkout.
const TrialPeriodDays = 14

// ErrNotConfigured is returned when no Stripe key is set.
var ErrNotConfigured = errors.New("billing is not configured")

// Gateway is the subset of the Stripe API the service calls.
type Gateway interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetProduct(id string, params *stripe.ProductParams) (*stripe.Product, error)
	NewProduct(params *stripe.ProductParams) (*stripe.Product, error)
	NewPrice(params *stripe.PriceParams) (*stripe.Price, error)
}

type stripeGateway struct {
	api *client.API
}

// NewStripeGateway builds a Gateway backed by the Stripe API client.
func NewStripeGateway(secretKey string) Gateway {
	return &stripeGateway{api: client.New(secretKey, nil)}
}

func (g *stripeGateway) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return g.api.CheckoutSessions.New(params)
}

func (g *stripeGateway) GetCheckoutSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return g.api.CheckoutSessions.Get(id, params)
}

func (g *stripeGateway) GetProduct(id string, params *stripe.ProductParams) (*stripe.Product, error) {
	return g.api.Products.Get(id, params)
}

func (g *stripeGateway) NewProduct(params *stripe.ProductParams) (*stripe.Product, error) {
	return g.api.Products.New(params)
}

func (g *stripeGateway) NewPrice(params *stripe.PriceParams) (*stripe.Price, error) {
	return g.api.Prices.New(params)
}

type TeamStore interface {
	GetTeamByStripeCustomerID(ctx context.Context, customerID string) (*teammodels.Team, error)
	GetTeamForUser(ctx context.Context, userID string) (*teammodels.TeamWithMembers, error)
	UpdateTeamSubscription(ctx context.Context, teamID string, update teammodels.SubscriptionUpdate) error
}

type Config struct {
	BaseURL       string
	WebhookSecret string
}

// Service creates checkout sessions and keeps team subscription columns in
// step with Stripe.
type Service struct {
	gateway Gateway
	teams   TeamStore
	cfg     Config
	log     *logger.Logger
}

// NewService returns a billing service. A nil gateway disables checkout.
func NewService(gateway Gateway, teams TeamStore, cfg Config, log *logger.Logger) *Service {
	return &Service{
		gateway: gateway,
		teams:   teams,
		cfg:     cfg,
		log:     log.Named("billing"),
	}
}

type CheckoutParams struct {
	PriceID           string
	ClientReferenceID string
	CustomerID        string
}

// CreateCheckoutSession starts a subscription checkout and returns the
// hosted page URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	if s.gateway == nil {
		return "", ErrNotConfigured
	}

	base := strings.TrimRight(s.cfg.BaseURL, "/")
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:          stripe.String(base + "/api/stripe/checkout?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:           stripe.String(base + "/pricing"),
		ClientReferenceID:   stripe.String(p.ClientReferenceID),
		AllowPromotionCodes: stripe.Bool(true),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(TrialPeriodDays),
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	params.Context = ctx

	session, err := s.gateway.NewCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	if session.URL == "" {
		return "", errors.New("checkout session has no url")
	}
	return session.URL, nil
}

// CompleteCheckout links the customer and subscription of a finished
// checkout to the team of the user who started it.
func (s *Service) CompleteCheckout(ctx context.Context, sessionID string) error {
	if s.gateway == nil {
		return ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("customer")
	params.AddExpand("subscription")
	session, err := s.gateway.GetCheckoutSession(sessionID, params)
	if err != nil {
		return fmt.Errorf("failed to retrieve checkout session: %w", err)
	}
	if session.Customer == nil || session.Subscription == nil || session.ClientReferenceID == "" {
		return errors.New("checkout session is incomplete")
	}

	team, err := s.teams.GetTeamForUser(ctx, session.ClientReferenceID)
	if err != nil {
		return fmt.Errorf("failed to find team for checkout: %w", err)
	}

	update, err := s.activeUpdate(ctx, session.Subscription)
	if err != nil {
		return err
	}
	update.StripeCustomerID = teammodels.Value(session.Customer.ID)
	if err := s.teams.UpdateTeamSubscription(ctx, team.ID, update); err != nil {
		return err
	}

	s.log.WithContext(ctx).Audit("Checkout completed", "team_id", team.ID, "subscription_id", session.Subscription.ID)
	return nil
}

// HandleSubscriptionChange mirrors a subscription's state onto its team.
// Subscriptions of unknown customers are ignored.
func (s *Service) HandleSubscriptionChange(ctx context.Context, sub *stripe.Subscription) error {
	if sub == nil || sub.Customer == nil {
		return errors.New("subscription has no customer")
	}
	log := s.log.WithContext(ctx)

	team, err := s.teams.GetTeamByStripeCustomerID(ctx, sub.Customer.ID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Team not found for Stripe customer", "customer_id", sub.Customer.ID)
		return nil
	}
	if err != nil {
		return err
	}

	var update teammodels.SubscriptionUpdate
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		update, err = s.activeUpdate(ctx, sub)
		if err != nil {
			return err
		}
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid:
		update = teammodels.SubscriptionUpdate{
			StripeSubscriptionID: teammodels.Null(),
			StripeProductID:      teammodels.Null(),
			PlanName:             teammodels.Null(),
			SubscriptionStatus:   teammodels.Value(string(sub.Status)),
		}
	default:
		log.Debug("Ignoring subscription status", "status", sub.Status, "team_id", team.ID)
		return nil
	}

	if err := s.teams.UpdateTeamSubscription(ctx, team.ID, update); err != nil {
		return err
	}
	log.Info("Team subscription updated", "team_id", team.ID, "status", sub.Status)
	return nil
}

func (s *Service) activeUpdate(ctx context.Context, sub *stripe.Subscription) (teammodels.SubscriptionUpdate, error) {
	product, err := s.subscriptionProduct(ctx, sub)
	if err != nil {
		return teammodels.SubscriptionUpdate{}, err
	}
	update := teammodels.SubscriptionUpdate{
		StripeSubscriptionID: teammodels.Value(sub.ID),
		SubscriptionStatus:   teammodels.Value(string(sub.Status)),
	}
	if product != nil {
		update.StripeProductID = teammodels.Value(product.ID)
		update.PlanName = teammodels.Value(product.Name)
	}
	return update, nil
}

// subscriptionProduct returns the product of the first subscription item,
// fetching it when the payload only carries its id.
func (s *Service) subscriptionProduct(ctx context.Context, sub *stripe.Subscription) (*stripe.Product, error) {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Plan == nil || sub.Items.Data[0].Plan.Product == nil {
		return nil, nil
	}
	product := sub.Items.Data[0].Plan.Product
	if product.Name != "" || s.gateway == nil {
		return product, nil
	}

	params := &stripe.ProductParams{}
	params.Context = ctx
	full, err := s.gateway.GetProduct(product.ID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product %s: %w", product.ID, err)
	}
	return full, nil
}

// Plan describes a monthly subscription plan created by SeedPlans.
type Plan struct {
	Name        string
	Description string
	UnitAmount  int64
}

var DefaultPlans = []Plan{
	{Name: "Base", Description: "Base subscription plan", UnitAmount: 800},
	{Name: "Plus", Description: "Plus subscription plan", UnitAmount: 1200},
}

// SeedPlans creates a product and a monthly USD price for each plan.
func (s *Service) SeedPlans(ctx context.Context, plans []Plan) error {
	if s.gateway == nil {
		return ErrNotConfigured
	}
	for _, plan := range plans {
		productParams := &stripe.ProductParams{
			Name:        stripe.String(plan.Name),
			Description: stripe.String(plan.Description),
		}
		productParams.Context = ctx
		product, err := s.gateway.NewProduct(productParams)
		if err != nil {
			return fmt.Errorf("failed to create product %s: %w", plan.Name, err)
		}

		priceParams := &stripe.PriceParams{
			Product:    stripe.String(product.ID),
			UnitAmount: stripe.Int64(plan.UnitAmount),
			Currency:   stripe.String(string(stripe.CurrencyUSD)),
			Recurring: &stripe.PriceRecurringParams{
				Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
			},
		}
		priceParams.Context = ctx
		if _, err := s.gateway.NewPrice(priceParams); err != nil {
			return fmt.Errorf("failed to create price for %s: %w", plan.Name, err)
		}
		s.log.Info("Plan created", "plan", plan.Name, "product_id", product.ID)
	}
	return nil
}
