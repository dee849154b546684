package dnsprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// DefaultCloudflareURL is the Cloudflare v4 API root
const DefaultCloudflareURL = "https://api.cloudflare.com/client/v4"

// CloudflareClient implements API against one Cloudflare zone
type CloudflareClient struct {
	apiToken string
	zoneID   string
	baseURL  string
	client   *http.Client
}

// NewCloudflareClient creates a client for zoneID. An empty baseURL selects DefaultCloudflareURL.
func NewCloudflareClient(apiToken, zoneID, baseURL string) *CloudflareClient {
	if baseURL == "" {
		baseURL = DefaultCloudflareURL
	}
	return &CloudflareClient{
		apiToken: apiToken,
		zoneID:   zoneID,
		baseURL:  baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the provider identifier
func (c *CloudflareClient) Name() string {
	return "cloudflare"
}

type cfResponse struct {
	Success    bool            `json:"success"`
	Errors     []cfError       `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *PageInfo       `json:"result_info,omitempty"`
}

type cfError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cfRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

func (r cfRecord) toRecord() types.AddressRecord {
	return types.AddressRecord{
		ID:      r.ID,
		Name:    r.Name,
		Type:    types.RecordType(r.Type),
		Content: r.Content,
		TTL:     r.TTL,
		Proxied: r.Proxied,
	}
}

func (c *CloudflareClient) doRequest(ctx context.Context, method, path string, body interface{}) (*cfResponse, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.DNSRequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, c.wrap(method, path, err)
	}
	defer resp.Body.Close()

	metrics.DNSRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	var result cfResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, c.wrap(method, path, fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err))
	}

	if !result.Success {
		if len(result.Errors) > 0 {
			return nil, c.wrap(method, path, fmt.Errorf("[%d] %s", result.Errors[0].Code, result.Errors[0].Message))
		}
		return nil, c.wrap(method, path, fmt.Errorf("request failed with HTTP %d", resp.StatusCode))
	}

	return &result, nil
}

func (c *CloudflareClient) wrap(method, path string, err error) error {
	return &types.ProviderError{Provider: c.Name(), Op: method + " " + path, Err: err}
}

// Verify checks that the token can read the zone
func (c *CloudflareClient) Verify(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/zones/"+c.zoneID, nil)
	return err
}

// ListRecords fetches one page of zone records
func (c *CloudflareClient) ListRecords(ctx context.Context, opts ListOptions) ([]types.AddressRecord, PageInfo, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(opts.Page))
	query.Set("per_page", strconv.Itoa(opts.PerPage))
	if opts.Name != "" {
		query.Set("name", opts.Name)
	}

	result, err := c.doRequest(ctx, http.MethodGet, "/zones/"+c.zoneID+"/dns_records?"+query.Encode(), nil)
	if err != nil {
		return nil, PageInfo{}, err
	}

	var cfRecords []cfRecord
	if err := json.Unmarshal(result.Result, &cfRecords); err != nil {
		return nil, PageInfo{}, fmt.Errorf("failed to parse records: %w", err)
	}

	records := make([]types.AddressRecord, 0, len(cfRecords))
	for _, r := range cfRecords {
		records = append(records, r.toRecord())
	}

	info := PageInfo{Page: opts.Page, PerPage: opts.PerPage, TotalPages: 1, Count: len(records)}
	if result.ResultInfo != nil {
		info = *result.ResultInfo
	}

	return records, info, nil
}

// CreateRecord creates a new DNS record
func (c *CloudflareClient) CreateRecord(ctx context.Context, record types.AddressRecord) (*types.AddressRecord, error) {
	body := cfRecord{
		Type:    string(record.Type),
		Name:    record.Name,
		Content: record.Content,
		TTL:     record.TTL,
		Proxied: record.Proxied,
	}
	if body.TTL == 0 {
		body.TTL = 1 // 1 = auto
	}

	result, err := c.doRequest(ctx, http.MethodPost, "/zones/"+c.zoneID+"/dns_records", body)
	if err != nil {
		return nil, err
	}

	var created cfRecord
	if err := json.Unmarshal(result.Result, &created); err != nil {
		return nil, fmt.Errorf("failed to parse created record: %w", err)
	}

	rec := created.toRecord()
	return &rec, nil
}

// DeleteRecord removes a record by ID
func (c *CloudflareClient) DeleteRecord(ctx context.Context, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/zones/"+c.zoneID+"/dns_records/"+id, nil)
	return err
}
