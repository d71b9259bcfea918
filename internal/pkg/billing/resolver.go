package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/PawDesk/app/models"
	"github.com/ManuelReschke/PawDesk/internal/pkg/metrics"
)

type lookupStatus int

const (
	lookupFound lookupStatus = iota
	lookupNotFound
	lookupTransient
)

type lookupResult struct {
	status   lookupStatus
	customer *UpstreamCustomer
	err      error
}

// CustomerResolver guarantees every tenant maps to a customer that exists at
// the provider, replacing mappings that are missing, fake or deleted.
type CustomerResolver struct {
	customers CustomerStore
	provider  PaymentProviderClient
	logger    Logger
	cfg       Config
}

func NewCustomerResolver(d Deps) *CustomerResolver {
	d = d.withDefaults()
	return &CustomerResolver{
		customers: d.Customers,
		provider:  d.Provider,
		logger:    d.Logger,
		cfg:       d.Config,
	}
}

// ResolveOrCreate returns a customer for the tenant that is valid upstream.
// Empty email or name fall back to the values on the existing mapping.
func (r *CustomerResolver) ResolveOrCreate(ctx context.Context, tenantID uint, email, name string) (CustomerRef, error) {
	if tenantID == 0 {
		return CustomerRef{}, errors.New("tenant id is required")
	}
	fields := Fields{"tenant_id": tenantID}

	existing, err := r.customers.GetByTenant(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return CustomerRef{}, fmt.Errorf("load customer for tenant %d: %w", tenantID, err)
	}

	reason := "missing"
	if existing != nil {
		upstreamID := existing.UpstreamID()
		fields["upstream_customer_id"] = upstreamID
		switch {
		case strings.TrimSpace(upstreamID) == "":
			reason = "missing"
			r.logger.Info("customer mapping has no upstream id, creating customer", fields)
		case r.cfg.isPlaceholderCustomerID(upstreamID):
			reason = "placeholder"
			r.logger.Info("customer mapping holds a placeholder id, creating customer", fields)
		default:
			res := r.lookup(ctx, upstreamID)
			switch res.status {
			case lookupFound:
				return customerRefFrom(existing, false), nil
			case lookupNotFound:
				reason = "not_found"
				r.logger.Warn("customer no longer exists upstream, creating customer", fields)
			case lookupTransient:
				reason = "lookup_failed"
				fields["error"] = res.err.Error()
				r.logger.Error("customer lookup failed, creating customer", fields)
			}
		}

		if err := r.customers.SoftDelete(ctx, existing.ID); err != nil {
			return CustomerRef{}, fmt.Errorf("retire customer %d: %w", existing.ID, err)
		}
		if strings.TrimSpace(email) == "" {
			email = existing.Email
		}
		if strings.TrimSpace(name) == "" {
			name = existing.Name
		}
	}

	ref, err := r.create(ctx, tenantID, email, name)
	if err != nil {
		return CustomerRef{}, err
	}
	if existing != nil {
		ref.Recreated = true
		metrics.CustomerRecreationsTotal.WithLabelValues(reason).Inc()
	}
	return ref, nil
}

// AdoptUpstream maps the tenant to a customer that already exists upstream,
// for example one created by a hosted checkout. A stale mapping to another
// customer is retired. When the id is empty, a placeholder or unknown
// upstream, it behaves like ResolveOrCreate.
func (r *CustomerResolver) AdoptUpstream(ctx context.Context, tenantID uint, upstreamCustomerID, email, name string) (CustomerRef, error) {
	upstreamID := strings.TrimSpace(upstreamCustomerID)
	if upstreamID == "" || r.cfg.isPlaceholderCustomerID(upstreamID) {
		return r.ResolveOrCreate(ctx, tenantID, email, name)
	}
	if tenantID == 0 {
		return CustomerRef{}, errors.New("tenant id is required")
	}
	fields := Fields{"tenant_id": tenantID, "upstream_customer_id": upstreamID}

	existing, err := r.customers.GetByTenant(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return CustomerRef{}, fmt.Errorf("load customer for tenant %d: %w", tenantID, err)
	}
	if existing != nil && existing.UpstreamID() == upstreamID {
		return customerRefFrom(existing, false), nil
	}

	res := r.lookup(ctx, upstreamID)
	switch res.status {
	case lookupNotFound:
		r.logger.Warn("customer to adopt does not exist upstream, resolving tenant customer", fields)
		return r.ResolveOrCreate(ctx, tenantID, email, name)
	case lookupTransient:
		return CustomerRef{}, fmt.Errorf("verify customer %s: %w", upstreamID, res.err)
	}

	owner, err := r.customers.GetByUpstreamID(ctx, upstreamID)
	switch {
	case err == nil:
		return CustomerRef{}, fmt.Errorf("customer %s is mapped to tenant %d", upstreamID, owner.TenantID)
	case !errors.Is(err, ErrNotFound):
		return CustomerRef{}, fmt.Errorf("load customer %s: %w", upstreamID, err)
	}

	if strings.TrimSpace(email) == "" {
		email = res.customer.Email
	}
	if strings.TrimSpace(name) == "" {
		name = res.customer.Name
	}
	if existing != nil {
		fields["replaced_upstream_customer_id"] = existing.UpstreamID()
		if err := r.customers.SoftDelete(ctx, existing.ID); err != nil {
			return CustomerRef{}, fmt.Errorf("retire customer %d: %w", existing.ID, err)
		}
		if strings.TrimSpace(email) == "" {
			email = existing.Email
		}
		if strings.TrimSpace(name) == "" {
			name = existing.Name
		}
		metrics.CustomerRecreationsTotal.WithLabelValues("adopted").Inc()
	}

	c, err := r.store(ctx, tenantID, upstreamID, email, name)
	if err != nil {
		return CustomerRef{}, err
	}
	r.logger.Info("customer adopted", fields)
	return customerRefFrom(c, existing != nil), nil
}

// ForgetUpstream retires the local mapping of a customer deleted upstream.
func (r *CustomerResolver) ForgetUpstream(ctx context.Context, upstreamCustomerID string) error {
	c, err := r.customers.GetByUpstreamID(ctx, upstreamCustomerID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load customer %s: %w", upstreamCustomerID, err)
	}
	if err := r.customers.SoftDelete(ctx, c.ID); err != nil {
		return fmt.Errorf("retire customer %d: %w", c.ID, err)
	}
	r.logger.Info("customer deleted upstream, mapping retired", Fields{
		"tenant_id":            c.TenantID,
		"upstream_customer_id": upstreamCustomerID,
	})
	return nil
}

func (r *CustomerResolver) lookup(ctx context.Context, upstreamID string) lookupResult {
	c, err := r.provider.GetCustomer(ctx, upstreamID)
	switch {
	case err == nil && c != nil && !c.Deleted:
		return lookupResult{status: lookupFound, customer: c}
	case err == nil:
		return lookupResult{status: lookupNotFound}
	case KindOf(err) == ErrorKindNotFound:
		return lookupResult{status: lookupNotFound, err: err}
	default:
		return lookupResult{status: lookupTransient, err: err}
	}
}

// create always creates the customer on the platform account.
func (r *CustomerResolver) create(ctx context.Context, tenantID uint, email, name string) (CustomerRef, error) {
	upstream, err := r.provider.CreateCustomer(ctx, CreateCustomerParams{
		TenantID: tenantID,
		Email:    strings.TrimSpace(email),
		Name:     strings.TrimSpace(name),
	})
	if err != nil {
		return CustomerRef{}, fmt.Errorf("create upstream customer for tenant %d: %w", tenantID, err)
	}

	c, err := r.store(ctx, tenantID, upstream.ID, email, name)
	if err != nil {
		return CustomerRef{}, err
	}
	r.logger.Info("customer created", Fields{"tenant_id": tenantID, "upstream_customer_id": upstream.ID})
	return customerRefFrom(c, false), nil
}

func (r *CustomerResolver) store(ctx context.Context, tenantID uint, upstreamID, email, name string) (*models.Customer, error) {
	c := &models.Customer{
		TenantID:           tenantID,
		UpstreamCustomerID: &upstreamID,
		Email:              strings.TrimSpace(email),
		Name:               strings.TrimSpace(name),
	}
	if err := r.customers.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("store customer for tenant %d: %w", tenantID, err)
	}
	return c, nil
}
