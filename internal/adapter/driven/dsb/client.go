// Package dsb implements the TimetableSource port against the DSBmobile
// JSON handler: gzip+base64 wrapped requests, a nested content menu, and
// plain GETs for the plan documents the menu links to.
package dsb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gregjones/httpcache"
	"golang.org/x/net/html/charset"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TimetableSource = (*Client)(nil)

const (
	// DefaultBaseURL is the endpoint used by the current mobile app builds.
	DefaultBaseURL = "https://app.dsbcontrol.de"

	dataPath        = "/JsonHandler.ashx/GetData"
	dataContentType = "application/json;charset=utf-8"

	// maxBodyBytes caps any single response body.
	maxBodyBytes = 16 << 20
)

// Options carries the protocol constants and transport settings. The upstream
// provider changes the constants from time to time; treat them as configuration.
type Options struct {
	BaseURL    string
	AppVersion string
	OSVersion  string
	Device     string
	BundleID   string
	Language   string
	UserAgent  string
	Timeout    time.Duration

	// HTTPClient overrides the default transport stack. Intended for tests.
	HTTPClient *http.Client
	// Now overrides the clock used for request timestamps.
	Now func() time.Time
}

// DefaultOptions returns the constants the Android app currently sends.
func DefaultOptions() Options {
	return Options{
		BaseURL:    DefaultBaseURL,
		AppVersion: "2.5.9",
		OSVersion:  "28 8.0",
		Device:     "SM-G930F",
		BundleID:   "de.heinekingmedia.dsbmobile",
		Language:   "de",
		UserAgent:  "Dalvik/2.1.0 (Linux; U; Android 8.0.0; SM-G930F Build/R16NW)",
		Timeout:    15 * time.Second,
	}
}

// Client talks to the remote timetable service on behalf of one credential pair.
type Client struct {
	http       *http.Client
	opts       Options
	endpoint   string
	identifier string
	secret     string
	instanceID string
}

// NewClient creates a Client bound to creds. Unless opts.HTTPClient is set, the
// transport stack is an in-memory httpcache so unchanged plan documents are
// revalidated with ETag/Last-Modified instead of downloaded again.
// Zero-valued option fields fall back to DefaultOptions.
func NewClient(creds model.Credentials, opts Options) *Client {
	opts = withDefaults(opts)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   opts.Timeout,
		}
	}

	return &Client{
		http:       httpClient,
		opts:       opts,
		endpoint:   strings.TrimRight(opts.BaseURL, "/") + dataPath,
		identifier: creds.Identifier,
		secret:     creds.Secret,
		instanceID: uuid.NewString(),
	}
}

// InstanceID returns the installation label sent with every request. It is
// generated once per Client.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// dataRequest is the JSON document wrapped into the "Data" field.
type dataRequest struct {
	UserID     string `json:"UserId"`
	UserPw     string `json:"UserPw"`
	AppVersion string `json:"AppVersion"`
	Language   string `json:"Language"`
	OSVersion  string `json:"OsVersion"`
	AppID      string `json:"AppId"`
	Device     string `json:"Device"`
	BundleID   string `json:"BundleId"`
	Date       string `json:"Date"`
	LastUpdate string `json:"LastUpdate"`
}

type requestEnvelope struct {
	Req requestBody `json:"req"`
}

type requestBody struct {
	Data     string `json:"Data"`
	DataType int    `json:"DataType"`
}

type responseEnvelope struct {
	D *string `json:"d"`
}

type dataResult struct {
	Resultcode       int        `json:"Resultcode"`
	ResultStatusInfo string     `json:"ResultStatusInfo"`
	ResultMenuItems  []menuItem `json:"ResultMenuItems"`
}

// DiscoverPlans authenticates against the data endpoint and returns every plan
// document listed in the content menu.
func (c *Client) DiscoverPlans(ctx context.Context) ([]model.PlanRef, error) {
	payload, err := c.buildPayload()
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload), dataContentType)
	if err != nil {
		return nil, err
	}

	var env responseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: response envelope: %v", model.ErrIncompatiblePlan, err)
	}
	if env.D == nil {
		return nil, fmt.Errorf("%w: response envelope has no data field", model.ErrIncompatiblePlan)
	}

	decoded, err := Decode(*env.D)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var result dataResult
	if err := json.Unmarshal([]byte(decoded), &result); err != nil {
		return nil, fmt.Errorf("%w: result document: %v", model.ErrIncompatiblePlan, err)
	}

	if result.Resultcode != 0 {
		return nil, classifyResult(result.Resultcode, result.ResultStatusInfo)
	}

	refs, err := collectPlanRefs(result.ResultMenuItems)
	if err != nil {
		return nil, err
	}

	slog.Debug("dsb plans discovered",
		"identifier", c.identifier,
		"plans", len(refs),
	)

	return refs, nil
}

// FetchDocument downloads one plan document and transcodes it to UTF-8 based on
// the declared or sniffed charset. Plan documents are public; no credentials
// are sent.
func (c *Client) FetchDocument(ctx context.Context, ref model.PlanRef) (string, error) {
	target, err := c.resolve(ref.URL)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build document request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %w", model.ErrNetwork, target, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("%w: unsupported document charset: %v", model.ErrIncompatiblePlan, err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", model.ErrNetwork, target, err)
	}

	slog.Debug("dsb plan document fetched",
		"title", ref.Title,
		"bytes", len(body),
		"from_cache", resp.Header.Get(httpcache.XFromCache) == "1",
	)

	return string(body), nil
}

// buildPayload serializes and encodes the authenticated request envelope.
func (c *Client) buildPayload() ([]byte, error) {
	now := c.opts.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	inner, err := json.Marshal(dataRequest{
		UserID:     c.identifier,
		UserPw:     c.secret,
		AppVersion: c.opts.AppVersion,
		Language:   c.opts.Language,
		OSVersion:  c.opts.OSVersion,
		AppID:      c.instanceID,
		Device:     c.opts.Device,
		BundleID:   c.opts.BundleID,
		Date:       now,
		LastUpdate: now,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	encoded, err := Encode(string(inner))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	payload, err := json.Marshal(requestEnvelope{Req: requestBody{Data: encoded, DataType: 1}})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	return payload, nil
}

// do performs one request under the configured timeout and returns the body of
// a successful response.
func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", model.ErrNetwork, method, target, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", model.ErrNetwork, err)
	}

	return data, nil
}

// resolve makes menu locators absolute; some deployments publish paths
// relative to the service host.
func (c *Client) resolve(locator string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(locator))
	if err != nil || locator == "" {
		return "", fmt.Errorf("%w: invalid document locator %q", model.ErrIncompatiblePlan, locator)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	base, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// checkStatus maps non-success HTTP statuses onto the error taxonomy.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: http status %d", model.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &model.RemoteServiceError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// credentialHints are status fragments the service uses for rejected logins.
var credentialHints = []string{"password", "passwort", "kennwort", "user", "benutzer", "login", "anmeld"}

// classifyResult turns a non-zero result code into an authentication or
// remote-service error.
func classifyResult(code int, status string) error {
	lower := strings.ToLower(status)
	for _, hint := range credentialHints {
		if strings.Contains(lower, hint) {
			return fmt.Errorf("%w: %s", model.ErrAuthentication, status)
		}
	}
	return &model.RemoteServiceError{Code: code, Message: status}
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.AppVersion == "" {
		opts.AppVersion = def.AppVersion
	}
	if opts.OSVersion == "" {
		opts.OSVersion = def.OSVersion
	}
	if opts.Device == "" {
		opts.Device = def.Device
	}
	if opts.BundleID == "" {
		opts.BundleID = def.BundleID
	}
	if opts.Language == "" {
		opts.Language = def.Language
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// IsTimeout reports whether err came from a request that ran out of time.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
