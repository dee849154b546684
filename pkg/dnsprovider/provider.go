package dnsprovider

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

const (
	// DefaultPerPage is the page size requested from the upstream API
	DefaultPerPage = 100

	// maxPages stops a misbehaving upstream from paging forever
	maxPages = 1000
)

// PageInfo mirrors an upstream pagination envelope
type PageInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// ListOptions selects one page of records, optionally filtered by exact name
type ListOptions struct {
	Name    string
	Page    int
	PerPage int
}

// API is the upstream DNS record API for a single zone
type API interface {
	Name() string
	ListRecords(ctx context.Context, opts ListOptions) ([]types.AddressRecord, PageInfo, error)
	CreateRecord(ctx context.Context, record types.AddressRecord) (*types.AddressRecord, error)
	DeleteRecord(ctx context.Context, id string) error
}

// Provider manages one address record per label under a fixed base domain
type Provider struct {
	api        API
	baseDomain string
	perPage    int
	logger     zerolog.Logger
}

// NewProvider creates a DNS provider scoped to baseDomain
func NewProvider(api API, baseDomain string) *Provider {
	return &Provider{
		api:        api,
		baseDomain: strings.TrimSuffix(strings.ToLower(baseDomain), "."),
		perPage:    DefaultPerPage,
		logger:     log.WithComponent("dns"),
	}
}

// BaseDomain returns the domain every record is scoped to
func (p *Provider) BaseDomain() string {
	return p.baseDomain
}

// FullDomain derives the FQDN of a label
func (p *Provider) FullDomain(label string) string {
	return types.FullDomain(label, p.baseDomain)
}

// List returns every address record under the base domain, across all upstream pages
func (p *Provider) List(ctx context.Context) ([]*types.AddressRecord, error) {
	all, err := p.fetchAll(ctx, "")
	if err != nil {
		return nil, err
	}

	var records []*types.AddressRecord
	for i := range all {
		if !all[i].Type.IsAddress() {
			continue
		}
		if _, ok := types.LabelFor(all[i].Name, p.baseDomain); !ok {
			continue
		}
		records = append(records, &all[i])
	}

	return records, nil
}

// Get returns the address record for label, or nil when none exists
func (p *Provider) Get(ctx context.Context, label string) (*types.AddressRecord, error) {
	records, err := p.getAll(ctx, label)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Create adds an address record; fails with ErrAlreadyExists when one is present
func (p *Provider) Create(ctx context.Context, label string, cfg types.RecordConfig) (*types.AddressRecord, error) {
	ip := net.ParseIP(cfg.IP)
	if ip == nil {
		return nil, types.Validationf("invalid IP address %q", cfg.IP)
	}

	fqdn := p.FullDomain(label)

	existing, err := p.Get(ctx, label)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("address record for %s: %w", fqdn, types.ErrAlreadyExists)
	}

	record, err := p.api.CreateRecord(ctx, types.AddressRecord{
		Name:    fqdn,
		Type:    types.RecordTypeFor(cfg.IP),
		Content: ip.String(),
		TTL:     cfg.TTL,
		Proxied: cfg.Proxied,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create address record for %s: %w", fqdn, err)
	}

	p.logger.Info().
		Str("domain", fqdn).
		Str("content", record.Content).
		Str("id", record.ID).
		Msg("address record created")

	return record, nil
}

// Delete removes the address record for label; fails with ErrNotFound when absent
func (p *Provider) Delete(ctx context.Context, label string) error {
	fqdn := p.FullDomain(label)

	records, err := p.getAll(ctx, label)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("address record for %s: %w", fqdn, types.ErrNotFound)
	}

	// Stray duplicates are removed too so the name converges on absence
	for _, record := range records {
		if err := p.api.DeleteRecord(ctx, record.ID); err != nil {
			return fmt.Errorf("failed to delete address record %s for %s: %w", record.ID, fqdn, err)
		}
	}

	p.logger.Info().Str("domain", fqdn).Int("records", len(records)).Msg("address record deleted")
	return nil
}

// Define replaces any existing record for label with one matching cfg
func (p *Provider) Define(ctx context.Context, label string, cfg types.RecordConfig) (*types.AddressRecord, error) {
	if out := p.Undefine(ctx, label); out.Failed() {
		return nil, out.Err
	}
	return p.Create(ctx, label, cfg)
}

// Undefine removes the record for label, treating absence as success
func (p *Provider) Undefine(ctx context.Context, label string) types.Outcome {
	return types.OutcomeOf(p.Delete(ctx, label))
}

func (p *Provider) getAll(ctx context.Context, label string) ([]*types.AddressRecord, error) {
	fqdn := p.FullDomain(label)

	all, err := p.fetchAll(ctx, fqdn)
	if err != nil {
		return nil, err
	}

	var records []*types.AddressRecord
	for i := range all {
		if all[i].Type.IsAddress() && strings.EqualFold(strings.TrimSuffix(all[i].Name, "."), fqdn) {
			records = append(records, &all[i])
		}
	}
	return records, nil
}

// fetchAll follows upstream pagination until every page is consumed
func (p *Provider) fetchAll(ctx context.Context, name string) ([]types.AddressRecord, error) {
	var all []types.AddressRecord

	for page := 1; page <= maxPages; page++ {
		records, info, err := p.api.ListRecords(ctx, ListOptions{Name: name, Page: page, PerPage: p.perPage})
		if err != nil {
			return nil, fmt.Errorf("failed to list records (page %d): %w", page, err)
		}
		all = append(all, records...)

		p.logger.Debug().
			Int("page", page).
			Int("total_pages", info.TotalPages).
			Int("count", len(records)).
			Msg("fetched record page")

		if page >= info.TotalPages || len(records) == 0 {
			break
		}
	}

	return all, nil
}
