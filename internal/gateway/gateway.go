// Package gateway selects the persistence backend of a session.
//
// The identity predicate is evaluated once, when a session is composed, and the resulting Gateway routes every
// call to that single backend.
package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/storage"
	"github.com/myrjola/coachline/internal/storage/local"
	"github.com/myrjola/coachline/internal/storage/remote"
)

type Backend string

const (
	BackendRemote Backend = "remote"
	BackendLocal  Backend = "local"
)

// DeviceRecords opens the device-persistent record store of a device.
type DeviceRecords func(deviceID string) local.RecordStore

type Factory struct {
	remoteBaseURL string
	httpClient    *http.Client
	deviceRecords DeviceRecords
	logger        *slog.Logger
}

func NewFactory(remoteBaseURL string, httpClient *http.Client, deviceRecords DeviceRecords, logger *slog.Logger) *Factory {
	return &Factory{
		remoteBaseURL: remoteBaseURL,
		httpClient:    httpClient,
		deviceRecords: deviceRecords,
		logger:        logger,
	}
}

// ForSession returns a Gateway bound to the remote backend for real identities and to the device's local
// records otherwise.
func (f *Factory) ForSession(identity string, deviceID string) *Gateway {
	if storage.IsRealIdentity(identity) {
		return &Gateway{
			storage:  remote.New(f.remoteBaseURL, identity, f.httpClient, f.logger),
			backend:  BackendRemote,
			identity: identity,
			logger:   f.logger.With("source", "Gateway", slog.String("backend", string(BackendRemote))),
		}
	}
	return &Gateway{
		storage:  local.New(f.deviceRecords(deviceID), f.logger),
		backend:  BackendLocal,
		identity: storage.AnonymousIdentity,
		logger:   f.logger.With("source", "Gateway", slog.String("backend", string(BackendLocal))),
	}
}

// New wraps an arbitrary backend, e.g. for tests.
func New(s storage.Storage, backend Backend, identity string, logger *slog.Logger) *Gateway {
	return &Gateway{
		storage:  s,
		backend:  backend,
		identity: identity,
		logger:   logger.With("source", "Gateway", slog.String("backend", string(backend))),
	}
}

// Gateway exposes the storage contract of the backend chosen for a session.
type Gateway struct {
	storage  storage.Storage
	backend  Backend
	identity string
	logger   *slog.Logger
}

func (g *Gateway) Backend() Backend {
	return g.backend
}

func (g *Gateway) Identity() string {
	return g.identity
}

// Authenticated reports whether state written through the gateway is durable per account.
func (g *Gateway) Authenticated() bool {
	return g.backend == BackendRemote
}

// failed logs err and annotates it with the operation name. Errors only surface from the remote backend.
func (g *Gateway) failed(ctx context.Context, op string, err error) error {
	err = errors.Wrap(err, op)
	g.logger.LogAttrs(ctx, slog.LevelWarn, "storage operation failed", slog.String("op", op), errors.SlogError(err))
	return err
}

func (g *Gateway) ListConversations(ctx context.Context) (storage.ConversationsEnvelope, error) {
	env, err := g.storage.ListConversations(ctx)
	if err != nil {
		return env, g.failed(ctx, "list conversations", err)
	}
	if env.Data.Conversations == nil {
		env.Data.Conversations = []models.Conversation{}
	}
	return env, nil
}

func (g *Gateway) CreateConversation(
	ctx context.Context,
	in storage.ConversationInput,
) (storage.ConversationEnvelope, error) {
	env, err := g.storage.CreateConversation(ctx, in)
	if err != nil {
		return env, g.failed(ctx, "create conversation", err)
	}
	return env, nil
}

func (g *Gateway) UpdateConversation(
	ctx context.Context,
	id string,
	in storage.ConversationInput,
) (storage.ConversationEnvelope, error) {
	env, err := g.storage.UpdateConversation(ctx, id, in)
	if err != nil {
		return env, g.failed(ctx, "update conversation", err)
	}
	return env, nil
}

func (g *Gateway) DeleteConversation(ctx context.Context, id string) (storage.DeletedEnvelope, error) {
	env, err := g.storage.DeleteConversation(ctx, id)
	if err != nil {
		return env, g.failed(ctx, "delete conversation", err)
	}
	return env, nil
}

func (g *Gateway) ListMessages(ctx context.Context, q storage.MessageQuery) (storage.MessagesEnvelope, error) {
	env, err := g.storage.ListMessages(ctx, q)
	if err != nil {
		return env, g.failed(ctx, "list messages", err)
	}
	if env.Data.Messages == nil {
		env.Data.Messages = []models.Message{}
	}
	return env, nil
}

// ListAllMessages follows the cursor until the whole conversation is loaded.
func (g *Gateway) ListAllMessages(ctx context.Context, conversationID string, pageSize int) ([]models.Message, error) {
	var (
		all    []models.Message
		cursor string
	)
	for {
		env, err := g.ListMessages(ctx, storage.MessageQuery{
			ConversationID: conversationID,
			Cursor:         cursor,
			Limit:          pageSize,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, env.Data.Messages...)
		if !env.Data.HasMore || env.Data.NextCursor == "" || env.Data.NextCursor == cursor {
			break
		}
		cursor = env.Data.NextCursor
	}
	if all == nil {
		all = []models.Message{}
	}
	return all, nil
}

func (g *Gateway) CreateMessage(ctx context.Context, in storage.MessageInput) (storage.MessageEnvelope, error) {
	env, err := g.storage.CreateMessage(ctx, in)
	if err != nil {
		return env, g.failed(ctx, "create message", err)
	}
	return env, nil
}

func (g *Gateway) UpdateMessage(
	ctx context.Context,
	id string,
	in storage.MessageInput,
) (storage.MessageEnvelope, error) {
	env, err := g.storage.UpdateMessage(ctx, id, in)
	if err != nil {
		return env, g.failed(ctx, "update message", err)
	}
	return env, nil
}

func (g *Gateway) GetProfile(ctx context.Context) (storage.ProfileEnvelope, error) {
	env, err := g.storage.GetProfile(ctx)
	if err != nil {
		return env, g.failed(ctx, "get profile", err)
	}
	if env.Data.Profile.Discovery.Status == "" {
		env.Data.Profile.Discovery = models.NewDiscoveryState()
	}
	if env.Data.Profile.Discovery.Answers == nil {
		env.Data.Profile.Discovery.Answers = map[string]models.AnswerValue{}
	}
	return env, nil
}

func (g *Gateway) UpdateProfile(ctx context.Context, profile models.Profile) (storage.ProfileEnvelope, error) {
	env, err := g.storage.UpdateProfile(ctx, profile)
	if err != nil {
		return env, g.failed(ctx, "update profile", err)
	}
	return env, nil
}

var _ storage.Storage = (*Gateway)(nil)
