// Package graph provides a minimal client for the Microsoft Graph calendar API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// ErrNotFound is returned when Graph answers 404.
var ErrNotFound = errors.New("graph: resource not found")

// StatusError is a non-success answer from Graph.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph api status %d", e.StatusCode)
	}
	return fmt.Sprintf("graph api status %d: %s", e.StatusCode, e.Message)
}

// Credentials identify the application and the mailbox it manages.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	UserID       string
	// TokenURL overrides the Azure AD token endpoint derived from TenantID.
	TokenURL string
}

// Client is a minimal HTTP client for one user's calendar.
type Client struct {
	BaseURL string
	UserID  string
	HTTP    *http.Client
}

// New returns a new client. If httpClient is nil, a default with 15s timeout is used.
func New(baseURL, userID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), UserID: userID, HTTP: httpClient}
}

// NewWithCredentials returns a client authenticating with the OAuth2 client
// credentials grant. Tokens are fetched and refreshed lazily.
func NewWithCredentials(ctx context.Context, baseURL string, creds Credentials, timeout time.Duration) *Client {
	tokenURL := creds.TokenURL
	if tokenURL == "" {
		tokenURL = "https://login.microsoftonline.com/" + url.PathEscape(creds.TenantID) + "/oauth2/v2.0/token"
	}
	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	httpClient := cfg.Client(ctx)
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient.Timeout = timeout
	return New(baseURL, creds.UserID, httpClient)
}

// DateTimeTimeZone is Graph's wall-clock timestamp.
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

const graphLayout = "2006-01-02T15:04:05.0000000"

// At renders t as a UTC DateTimeTimeZone.
func At(t time.Time) *DateTimeTimeZone {
	return &DateTimeTimeZone{DateTime: t.UTC().Format(graphLayout), TimeZone: "UTC"}
}

// Time parses the value. Requests ask Graph for UTC, so a missing or UTC zone
// is read as UTC; other IANA zones are honoured when known.
func (d *DateTimeTimeZone) Time() time.Time {
	if d == nil || d.DateTime == "" {
		return time.Time{}
	}
	loc := time.UTC
	if d.TimeZone != "" && !strings.EqualFold(d.TimeZone, "UTC") {
		if l, err := time.LoadLocation(d.TimeZone); err == nil {
			loc = l
		}
	}
	for _, layout := range []string{graphLayout, "2006-01-02T15:04:05", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, d.DateTime, loc); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ItemBody is the body of an event.
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Event is the subset of Graph's event resource the gateway uses.
type Event struct {
	ID      string            `json:"id,omitempty"`
	Subject *string           `json:"subject,omitempty"`
	Body    *ItemBody         `json:"body,omitempty"`
	Start   *DateTimeTimeZone `json:"start,omitempty"`
	End     *DateTimeTimeZone `json:"end,omitempty"`
}

// calendarViewPageSize is the $top sent with calendarView; Graph defaults to 10.
const calendarViewPageSize = 100

// maxCalendarViewPages bounds how many @odata.nextLink pages CalendarView follows.
const maxCalendarViewPages = 50

// CalendarView lists the events overlapping [start, end), following
// @odata.nextLink until the last page.
func (c *Client) CalendarView(ctx context.Context, start, end time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("startDateTime", start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", end.UTC().Format(time.RFC3339))
	q.Set("$top", strconv.Itoa(calendarViewPageSize))
	next := c.BaseURL + c.userPath("calendarView") + "?" + q.Encode()

	var events []Event
	for range maxCalendarViewPages {
		var page struct {
			Value    []Event `json:"value"`
			NextLink string  `json:"@odata.nextLink"`
		}
		if err := c.doURL(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		events = append(events, page.Value...)
		if page.NextLink == "" {
			return events, nil
		}
		// The token is only ever sent to the configured Graph endpoint.
		if !strings.HasPrefix(page.NextLink, c.BaseURL+"/") {
			return nil, fmt.Errorf("graph: nextLink %q outside %s", page.NextLink, c.BaseURL)
		}
		next = page.NextLink
	}
	return nil, fmt.Errorf("graph: calendarView exceeded %d pages", maxCalendarViewPages)
}

// GetEvent fetches one event.
func (c *Client) GetEvent(ctx context.Context, id string) (Event, error) {
	var e Event
	err := c.do(ctx, http.MethodGet, c.userPath("events", id), nil, &e)
	return e, err
}

// CreateEvent adds an event to the user's default calendar.
func (c *Client) CreateEvent(ctx context.Context, e Event) (Event, error) {
	var out Event
	err := c.do(ctx, http.MethodPost, c.userPath("calendar", "events"), e, &out)
	return out, err
}

// UpdateEvent patches the non-nil fields of e onto event id.
func (c *Client) UpdateEvent(ctx context.Context, id string, e Event) (Event, error) {
	var out Event
	err := c.do(ctx, http.MethodPatch, c.userPath("events", id), e, &out)
	return out, err
}

// DeleteEvent removes event id.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.userPath("events", id), nil, nil)
}

func (c *Client) userPath(parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, "users", url.PathEscape(c.UserID))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return "/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.doURL(ctx, method, c.BaseURL+path, in, out)
}

func (c *Client) doURL(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("graph: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("graph: decode response: %w", err)
	}
	return nil
}

// errorMessage extracts error.message from a Graph error body.
func errorMessage(r io.Reader) string {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body); err != nil {
		return ""
	}
	return firstNonEmpty(body.Error.Message, body.Error.Code)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
