// Package remote implements storage.Storage against the identity-scoped remote CRUD API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/storage"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

type Backend struct {
	baseURL  string
	identity string
	client   *http.Client
	logger   *slog.Logger
}

// New returns a backend that performs every request on behalf of identity.
func New(baseURL string, identity string, client *http.Client, logger *slog.Logger) *Backend {
	return &Backend{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		client:   client,
		logger:   logger.With("source", "remote.Backend"),
	}
}

// status is the part of every response body that reports success.
type status struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// do sends body as JSON and decodes the response envelope into out.
func (b *Backend) do(ctx context.Context, method string, path string, query url.Values, body any, out any) error {
	var (
		reqBody io.Reader
		req     *http.Request
		resp    *http.Response
		err     error
	)
	endpoint := b.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	attrs := []slog.Attr{slog.String("method", method), slog.String("path", path)}

	if body != nil {
		var encoded []byte
		if encoded, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, "encode request body", attrs...)
		}
		reqBody = bytes.NewReader(encoded)
	}
	if req, err = http.NewRequestWithContext(ctx, method, endpoint, reqBody); err != nil {
		return errors.Wrap(err, "create request", attrs...)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(storage.IdentityHeader, b.identity)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if resp, err = b.client.Do(req); err != nil {
		return errors.Wrap(err, "send request", attrs...)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			b.logger.LogAttrs(ctx, slog.LevelWarn, "could not close response body",
				errors.SlogError(errors.Wrap(closeErr, "close response body")))
		}
	}()

	var data []byte
	if data, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes)); err != nil {
		return errors.Wrap(err, "read response body", attrs...)
	}

	var st status
	// A body that is not JSON still yields a RequestError carrying the status code.
	_ = json.Unmarshal(data, &st)
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !st.Success {
		return &storage.RequestError{StatusCode: resp.StatusCode, Message: st.Error}
	}

	if out != nil {
		if err = json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "decode response body", attrs...)
		}
	}
	return nil
}

func (b *Backend) ListConversations(ctx context.Context) (storage.ConversationsEnvelope, error) {
	var env storage.ConversationsEnvelope
	if err := b.do(ctx, http.MethodGet, "/api/store/conversations", nil, nil, &env); err != nil {
		return env, errors.Wrap(err, "list conversations")
	}
	return env, nil
}

func (b *Backend) CreateConversation(
	ctx context.Context,
	in storage.ConversationInput,
) (storage.ConversationEnvelope, error) {
	var env storage.ConversationEnvelope
	if err := b.do(ctx, http.MethodPost, "/api/store/conversations", nil, in, &env); err != nil {
		return env, errors.Wrap(err, "create conversation")
	}
	return env, nil
}

func (b *Backend) UpdateConversation(
	ctx context.Context,
	id string,
	in storage.ConversationInput,
) (storage.ConversationEnvelope, error) {
	var env storage.ConversationEnvelope
	path := "/api/store/conversations/" + url.PathEscape(id)
	if err := b.do(ctx, http.MethodPatch, path, nil, in, &env); err != nil {
		return env, errors.Wrap(err, "update conversation", slog.String("conversation_id", id))
	}
	return env, nil
}

func (b *Backend) DeleteConversation(ctx context.Context, id string) (storage.DeletedEnvelope, error) {
	var env storage.DeletedEnvelope
	path := "/api/store/conversations/" + url.PathEscape(id)
	if err := b.do(ctx, http.MethodDelete, path, nil, nil, &env); err != nil {
		return env, errors.Wrap(err, "delete conversation", slog.String("conversation_id", id))
	}
	return env, nil
}

func (b *Backend) ListMessages(ctx context.Context, q storage.MessageQuery) (storage.MessagesEnvelope, error) {
	var env storage.MessagesEnvelope
	query := url.Values{}
	query.Set("conversation_id", q.ConversationID)
	if q.Cursor != "" {
		query.Set("cursor", q.Cursor)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if err := b.do(ctx, http.MethodGet, "/api/store/messages", query, nil, &env); err != nil {
		return env, errors.Wrap(err, "list messages", slog.String("conversation_id", q.ConversationID))
	}
	return env, nil
}

func (b *Backend) CreateMessage(ctx context.Context, in storage.MessageInput) (storage.MessageEnvelope, error) {
	var env storage.MessageEnvelope
	if err := b.do(ctx, http.MethodPost, "/api/store/messages", nil, in, &env); err != nil {
		return env, errors.Wrap(err, "create message", slog.String("conversation_id", in.ConversationID))
	}
	return env, nil
}

// UpdateMessage does not need in.ConversationID; the remote API looks messages up by id alone.
func (b *Backend) UpdateMessage(
	ctx context.Context,
	id string,
	in storage.MessageInput,
) (storage.MessageEnvelope, error) {
	var env storage.MessageEnvelope
	path := "/api/store/messages/" + url.PathEscape(id)
	if err := b.do(ctx, http.MethodPatch, path, nil, in, &env); err != nil {
		return env, errors.Wrap(err, "update message", slog.String("message_id", id))
	}
	return env, nil
}

func (b *Backend) GetProfile(ctx context.Context) (storage.ProfileEnvelope, error) {
	var env storage.ProfileEnvelope
	if err := b.do(ctx, http.MethodGet, "/api/store/profile", nil, nil, &env); err != nil {
		return env, errors.Wrap(err, "get profile")
	}
	return env, nil
}

func (b *Backend) UpdateProfile(ctx context.Context, profile models.Profile) (storage.ProfileEnvelope, error) {
	var env storage.ProfileEnvelope
	if err := b.do(ctx, http.MethodPut, "/api/store/profile", nil, profile, &env); err != nil {
		return env, errors.Wrap(err, "update profile")
	}
	return env, nil
}
