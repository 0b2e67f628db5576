package esimaccess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.esimaccess.com/api/v1/open"
	accessCodeHeader           = "RT-AccessCode"
	responseBodyReadLimit int64 = 1024

	// Supplier prices are expressed in 1/10000 USD units.
	priceUnitsPerUSD = 10000
)

var errAccessCodeRequired = errors.New("esim access code is required")

// Client wraps the eSIM Access open API used for catalog and provisioning.
type Client struct {
	httpClient *http.Client
	baseURL    string
	accessCode string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the supplier base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the supplier client given an access code.
func NewClient(accessCode string, opts ...Option) (*Client, error) {
	trimmedCode := strings.TrimSpace(accessCode)
	if trimmedCode == "" {
		return nil, errAccessCodeRequired
	}

	client := &Client{
		accessCode: trimmedCode,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// Package describes one sellable data plan in the supplier catalog.
type Package struct {
	PackageCode  string `json:"packageCode"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	VolumeBytes  int64  `json:"volume"`
	DurationDays int    `json:"duration"`
	Location     string `json:"location"`
	Description  string `json:"description"`
}

// PackageFilter narrows catalog lookups.
type PackageFilter struct {
	LocationCode string `json:"locationCode,omitempty"`
	PackageCode  string `json:"packageCode,omitempty"`
	Slug         string `json:"slug,omitempty"`
}

// PackageOrderItem is one line of a profile order.
type PackageOrderItem struct {
	PackageCode string `json:"packageCode"`
	Count       int    `json:"count"`
	Price       int64  `json:"price"`
}

// OrderRequest places a profile order. TransactionID doubles as the
// supplier-side idempotency key.
type OrderRequest struct {
	TransactionID   string             `json:"transactionId"`
	Amount          int64              `json:"amount"`
	PackageInfoList []PackageOrderItem `json:"packageInfoList"`
}

// Profile is one allocated eSIM profile.
type Profile struct {
	ICCID          string `json:"iccid"`
	QRCodeURL      string `json:"qrCodeUrl"`
	ActivationCode string `json:"ac"`
	TotalVolume    int64  `json:"totalVolume"`
	ExpiredTime    string `json:"expiredTime"`
	SMDPStatus     string `json:"smdpStatus"`
}

// Pager controls supplier-side result paging.
type Pager struct {
	PageNum  int `json:"pageNum"`
	PageSize int `json:"pageSize"`
}

type envelope struct {
	Success   bool            `json:"success"`
	ErrorCode string          `json:"errorCode"`
	ErrorMsg  string          `json:"errorMsg"`
	Obj       json.RawMessage `json:"obj"`
}

// ListPackages fetches the catalog entries matching the filter.
func (c *Client) ListPackages(ctx context.Context, filter PackageFilter) ([]Package, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "supplier client not configured")
	}

	var obj struct {
		PackageList []Package `json:"packageList"`
	}
	if err := c.post(ctx, "package/list", filter, &obj); err != nil {
		return nil, err
	}
	return obj.PackageList, nil
}

// OrderProfiles places a profile order and returns the supplier order number.
func (c *Client) OrderProfiles(ctx context.Context, req OrderRequest) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "supplier client not configured")
	}
	if strings.TrimSpace(req.TransactionID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "transaction ID is required")
	}
	if len(req.PackageInfoList) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "at least one package is required")
	}

	var obj struct {
		OrderNo string `json:"orderNo"`
	}
	if err := c.post(ctx, "esim/order", req, &obj); err != nil {
		return "", err
	}
	if strings.TrimSpace(obj.OrderNo) == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "supplier returned no order number")
	}
	return obj.OrderNo, nil
}

// QueryProfiles fetches the profiles allocated for a supplier order. An
// empty slice means the order is still being fulfilled.
func (c *Client) QueryProfiles(ctx context.Context, orderNo string, pager Pager) ([]Profile, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "supplier client not configured")
	}
	if strings.TrimSpace(orderNo) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	if pager.PageNum <= 0 {
		pager.PageNum = 1
	}
	if pager.PageSize <= 0 {
		pager.PageSize = 10
	}

	req := struct {
		OrderNo string `json:"orderNo"`
		Pager   Pager  `json:"pager"`
	}{OrderNo: orderNo, Pager: pager}

	var obj struct {
		EsimList []Profile `json:"esimList"`
	}
	if err := c.post(ctx, "esim/query", req, &obj); err != nil {
		return nil, err
	}
	return obj.EsimList, nil
}

// PriceToCents converts supplier price units into USD cents, rounding half
// up at the cent boundary.
func PriceToCents(price int64) int64 {
	return (price*100 + priceUnitsPerUSD/2) / priceUnitsPerUSD
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal supplier request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build supplier request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(accessCodeHeader, c.accessCode)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute supplier request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "supplier request failed")
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode supplier response")
	}
	if !env.Success {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("supplier error %s: %s", env.ErrorCode, env.ErrorMsg))
	}
	if out != nil && len(env.Obj) > 0 {
		if err := json.Unmarshal(env.Obj, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode supplier payload")
		}
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
