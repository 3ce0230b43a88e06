// Package e2etest drives a running coachline server through its HTTP API.
package e2etest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/justinas/nosurf"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/storage"
)

// APIError is returned for responses that report failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type Client struct {
	client    *http.Client
	url       string
	identity  string
	csrfToken string
}

// NewClient creates a cookie-aware HTTP client for the server at url.
func NewClient(url string) (*Client, error) {
	jar, err := newPlainCookieJar()
	if err != nil {
		return nil, errors.Wrap(err, "create cookie jar")
	}
	return &Client{
		client:    &http.Client{Jar: jar, Timeout: time.Minute}, //nolint:exhaustruct // defaults are fine.
		url:       url,
		identity:  "",
		csrfToken: "",
	}, nil
}

// SetIdentity makes the client act as an authenticated user, like the embedding host does. An empty identity
// acts anonymously.
func (c *Client) SetIdentity(identity string) {
	c.identity = identity
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.url+urlPath, nil); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = c.client.Do(req); err == nil {
			if resp.StatusCode == http.StatusOK {
				if err = resp.Body.Close(); err != nil {
					return errors.Wrap(err, "close response body")
				}
				return nil
			}
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Do sends body as JSON and decodes the data of the response into out. Failed responses return an *APIError.
func (c *Client) Do(ctx context.Context, method string, urlPath string, body any, out any) error {
	var (
		reqBody io.Reader
		req     *http.Request
		resp    *http.Response
		err     error
	)
	if body != nil {
		var data []byte
		if data, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reqBody = bytes.NewReader(data)
	}
	if req, err = http.NewRequestWithContext(ctx, method, c.url+urlPath, reqBody); err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.identity != "" {
		req.Header.Set(storage.IdentityHeader, c.identity)
	}
	if c.csrfToken != "" {
		req.Header.Set(nosurf.HeaderName, c.csrfToken)
	}
	if resp, err = c.client.Do(req); err != nil {
		return errors.Wrap(err, "do request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var env envelope
	if err = json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	if !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if out != nil {
		if err = json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(err, "decode response data")
		}
	}
	return nil
}

// Session is the state the app receives when it loads.
type Session struct {
	CSRFToken     string `json:"csrfToken"`
	Authenticated bool   `json:"authenticated"`
	Backend       string `json:"backend"`
	Discovery     struct {
		State    models.DiscoveryState `json:"state"`
		Progress int                   `json:"progress"`
		Question *models.Question      `json:"question"`
	} `json:"discovery"`
}

// Load calls the session endpoint like the app does on start, and keeps the CSRF token for later requests.
func (c *Client) Load(ctx context.Context) (Session, error) {
	var session Session
	if err := c.Do(ctx, http.MethodGet, "/api/session", nil, &session); err != nil {
		return session, errors.Wrap(err, "load session")
	}
	c.csrfToken = session.CSRFToken
	return session, nil
}

// Exchange is the outcome of sending a chat message.
type Exchange struct {
	ConversationID   string               `json:"conversationId"`
	Conversation     *models.Conversation `json:"conversation"`
	UserMessage      models.Message       `json:"userMessage"`
	AssistantMessage models.Message       `json:"assistantMessage"`
	Cached           bool                 `json:"cached"`
}

// SendMessage sends text to the conversation. An empty conversationID continues the active conversation or
// starts a new one.
func (c *Client) SendMessage(ctx context.Context, conversationID string, text string) (Exchange, error) {
	var exchange Exchange
	body := map[string]string{"conversationId": conversationID, "text": text}
	if err := c.Do(ctx, http.MethodPost, "/api/chat", body, &exchange); err != nil {
		return exchange, errors.Wrap(err, "send message")
	}
	return exchange, nil
}

// Discovery is the questionnaire state returned by the discovery endpoints.
type Discovery struct {
	State    models.DiscoveryState `json:"state"`
	Progress int                   `json:"progress"`
	Question *models.Question      `json:"question"`
	Messages []models.Message      `json:"messages"`
}

func (c *Client) StartDiscovery(ctx context.Context) (Discovery, error) {
	var d Discovery
	if err := c.Do(ctx, http.MethodPost, "/api/discovery/start", nil, &d); err != nil {
		return d, errors.Wrap(err, "start discovery")
	}
	return d, nil
}

// AnswerDiscovery answers the current question. The answer for multi-select questions is sent as a list.
func (c *Client) AnswerDiscovery(ctx context.Context, key string, value models.AnswerValue) (Discovery, error) {
	var d Discovery
	body := map[string]any{"key": key, "value": value}
	if err := c.Do(ctx, http.MethodPost, "/api/discovery/answer", body, &d); err != nil {
		return d, errors.Wrap(err, "answer discovery")
	}
	return d, nil
}

func (c *Client) PauseDiscovery(ctx context.Context) (Discovery, error) {
	var d Discovery
	if err := c.Do(ctx, http.MethodPost, "/api/discovery/pause", nil, &d); err != nil {
		return d, errors.Wrap(err, "pause discovery")
	}
	return d, nil
}

// plainCookieJar ignores the Secure flag so that the client keeps session cookies over plain HTTP in tests.
type plainCookieJar struct {
	*cookiejar.Jar
}

func newPlainCookieJar() (*plainCookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "new cookie jar")
	}
	return &plainCookieJar{Jar: jar}, nil
}

func (j *plainCookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, cookie := range cookies {
		cookie.Secure = false
	}
	j.Jar.SetCookies(u, cookies)
}
