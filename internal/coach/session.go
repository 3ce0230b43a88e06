// Package coach implements the conversation flow: chat, regeneration, conversation switching and the discovery
// questionnaire.
package coach

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/myrjola/coachline/internal/cache"
	"github.com/myrjola/coachline/internal/classifier"
	"github.com/myrjola/coachline/internal/discovery"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/gateway"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/storage"
)

const (
	maxTitleRunes   = 60
	historyPageSize = 50
)

var (
	ErrBusy                 = errors.NewSentinel("a message is already being sent")
	ErrEmptyMessage         = errors.NewSentinel("message is empty")
	ErrConversationNotFound = errors.NewSentinel("conversation not found")
	ErrMessageNotFound      = errors.NewSentinel("message not found")
)

// Collaborator produces structured responses. The kind selects the response schema.
type Collaborator interface {
	Invoke(ctx context.Context, prompt string, kind models.ResponseKind) (models.Response, error)
}

// Exchange is the result of sending a message.
type Exchange struct {
	ConversationID string `json:"conversationId"`
	// Conversation is set when the message started a new conversation.
	Conversation     *models.Conversation `json:"conversation,omitempty"`
	UserMessage      models.Message       `json:"userMessage"`
	AssistantMessage models.Message       `json:"assistantMessage"`
	Cached           bool                 `json:"cached"`
}

// Session is the coach state of one identity or anonymous device.
type Session struct {
	gateway      *gateway.Gateway
	engine       *discovery.Engine
	cache        *cache.Cache
	collaborator Collaborator
	logger       *slog.Logger

	busy atomic.Bool

	mu     sync.Mutex
	active string
}

// NewSession loads the profile through gw and composes a session around it.
func NewSession(
	ctx context.Context,
	gw *gateway.Gateway,
	catalogue *discovery.Catalogue,
	responses *cache.Cache,
	collaborator Collaborator,
	logger *slog.Logger,
) *Session {
	logger = logger.With(slog.String("source", "coach.Session"), slog.String("backend", string(gw.Backend())))
	profile := models.Profile{Niche: "", Experience: "", Discovery: models.NewDiscoveryState()}
	if gw.Authenticated() {
		env, err := gw.GetProfile(ctx)
		if err != nil {
			logger.LogAttrs(ctx, slog.LevelWarn, "failed to load profile, starting fresh", errors.SlogError(err))
		} else {
			profile = env.Data.Profile
		}
	}
	return &Session{
		gateway:      gw,
		engine:       discovery.NewEngine(catalogue, gw, profile, gw.Authenticated(), logger),
		cache:        responses,
		collaborator: collaborator,
		logger:       logger,
		busy:         atomic.Bool{},
		mu:           sync.Mutex{},
		active:       "",
	}
}

func (s *Session) Gateway() *gateway.Gateway {
	return s.gateway
}

// ActiveConversation returns the id of the active conversation or an empty string.
func (s *Session) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) setActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = id
}

// acquire sets the busy flag. The returned function clears it.
func (s *Session) acquire() (func(), error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { s.busy.Store(false) }, nil
}

// ListConversations returns the conversations newest first.
func (s *Session) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	env, err := s.gateway.ListConversations(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	return env.Data.Conversations, nil
}

// NewConversation pauses an in-progress questionnaire and activates a fresh conversation.
func (s *Session) NewConversation(ctx context.Context, title string) (models.Conversation, error) {
	s.engine.PauseIfActive(ctx)
	conversation, err := s.createConversation(ctx, title)
	if err != nil {
		return models.Conversation{}, err //nolint:exhaustruct // error.
	}
	s.setActive(conversation.ID)
	return conversation, nil
}

func (s *Session) createConversation(ctx context.Context, title string) (models.Conversation, error) {
	env, err := s.gateway.CreateConversation(ctx, storage.ConversationInput{Title: title})
	if err != nil {
		return models.Conversation{}, errors.Wrap(err, "create conversation") //nolint:exhaustruct // error.
	}
	if env.Data.Conversation == nil {
		return models.Conversation{}, errors.New("backend returned no conversation") //nolint:exhaustruct // error.
	}
	return *env.Data.Conversation, nil
}

// SwitchConversation pauses an in-progress questionnaire, activates the conversation and returns its messages.
func (s *Session) SwitchConversation(ctx context.Context, id string) ([]models.Message, error) {
	s.engine.PauseIfActive(ctx)
	messages, err := s.gateway.ListAllMessages(ctx, id, historyPageSize)
	if err != nil {
		return nil, errors.Wrap(err, "load conversation", slog.String("conversation_id", id))
	}
	s.setActive(id)
	return messages, nil
}

func (s *Session) RenameConversation(ctx context.Context, id string, title string) (models.Conversation, error) {
	env, err := s.gateway.UpdateConversation(ctx, id, storage.ConversationInput{Title: title})
	if err != nil {
		return models.Conversation{}, errors.Wrap(err, "rename conversation") //nolint:exhaustruct // error.
	}
	if env.Data.Conversation == nil {
		return models.Conversation{}, errors.Wrap(ErrConversationNotFound, "rename conversation", //nolint:exhaustruct // error.
			slog.String("conversation_id", id))
	}
	return *env.Data.Conversation, nil
}

// DeleteConversation removes the conversation and its messages. Deleting the active conversation deactivates it.
func (s *Session) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.gateway.DeleteConversation(ctx, id); err != nil {
		return errors.Wrap(err, "delete conversation")
	}
	s.mu.Lock()
	if s.active == id {
		s.active = ""
	}
	s.mu.Unlock()
	return nil
}

// SendMessage stores the user message, obtains a response from the cache or the collaborator and stores the
// reply. An empty conversationID continues the active conversation or starts a new one titled by the message.
func (s *Session) SendMessage(ctx context.Context, conversationID string, text string) (Exchange, error) {
	var (
		exchange Exchange
		release  func()
		history  []models.Message
		err      error
	)
	text = strings.TrimSpace(text)
	if text == "" {
		return exchange, ErrEmptyMessage
	}
	if release, err = s.acquire(); err != nil {
		return exchange, err
	}
	defer release()

	if conversationID == "" {
		conversationID = s.ActiveConversation()
	}
	if conversationID == "" {
		var conversation models.Conversation
		if conversation, err = s.createConversation(ctx, titleFrom(text)); err != nil {
			return exchange, err
		}
		exchange.Conversation = &conversation
		conversationID = conversation.ID
		history = []models.Message{}
	} else {
		if history, err = s.gateway.ListAllMessages(ctx, conversationID, historyPageSize); err != nil {
			return exchange, errors.Wrap(err, "load history")
		}
	}
	s.setActive(conversationID)
	exchange.ConversationID = conversationID

	if exchange.UserMessage, err = s.storeMessage(ctx, conversationID, text, models.SenderUser, nil); err != nil {
		return exchange, err
	}

	profile := s.engine.Profile()
	resp, cached := s.cache.Get(text, history, profile)
	if !cached {
		if resp, err = s.invoke(ctx, text, history, profile); err != nil {
			return exchange, err
		}
		s.cache.Set(text, history, profile, resp)
	}
	exchange.Cached = cached
	s.logger.LogAttrs(ctx, slog.LevelDebug, "response ready",
		slog.String("kind", string(resp.Kind())), slog.Bool("cached", cached))

	var metadata []byte
	if metadata, err = models.NewMessageMetadata(resp); err != nil {
		return exchange, errors.Wrap(err, "encode response metadata")
	}
	if exchange.AssistantMessage, err = s.storeMessage(ctx, conversationID, resp.Text(), models.SenderAssistant,
		metadata); err != nil {
		return exchange, err
	}
	return exchange, nil
}

// RegenerateMessage asks the collaborator again for the user message preceding the assistant message id and
// replaces its text and structured fields.
func (s *Session) RegenerateMessage(ctx context.Context, conversationID string, messageID string) (models.Message, error) {
	var (
		release  func()
		messages []models.Message
		err      error
	)
	if release, err = s.acquire(); err != nil {
		return models.Message{}, err //nolint:exhaustruct // error.
	}
	defer release()

	if messages, err = s.gateway.ListAllMessages(ctx, conversationID, historyPageSize); err != nil {
		return models.Message{}, errors.Wrap(err, "load history") //nolint:exhaustruct // error.
	}
	i := slices.IndexFunc(messages, func(m models.Message) bool {
		return m.ID == messageID && m.Sender == models.SenderAssistant
	})
	if i < 0 {
		return models.Message{}, errors.Wrap(ErrMessageNotFound, "regenerate", //nolint:exhaustruct // error.
			slog.String("message_id", messageID))
	}
	prompt := -1
	for k := i - 1; k >= 0; k-- {
		if messages[k].Sender == models.SenderUser {
			prompt = k
			break
		}
	}
	if prompt < 0 {
		return models.Message{}, errors.Wrap(ErrMessageNotFound, "find prompting user message", //nolint:exhaustruct // error.
			slog.String("message_id", messageID))
	}
	text, history := messages[prompt].Text, messages[:prompt]

	// The cache lookup is skipped so that the user gets a fresh answer, which then replaces the cached one.
	profile := s.engine.Profile()
	var resp models.Response
	if resp, err = s.invoke(ctx, text, history, profile); err != nil {
		return models.Message{}, err //nolint:exhaustruct // error.
	}
	s.cache.Set(text, history, profile, resp)

	var metadata []byte
	if metadata, err = models.NewMessageMetadata(resp); err != nil {
		return models.Message{}, errors.Wrap(err, "encode response metadata") //nolint:exhaustruct // error.
	}
	env, err := s.gateway.UpdateMessage(ctx, messageID, storage.MessageInput{
		ConversationID: conversationID,
		Text:           resp.Text(),
		Sender:         models.SenderAssistant,
		Metadata:       metadata,
	})
	if err != nil {
		return models.Message{}, errors.Wrap(err, "update message") //nolint:exhaustruct // error.
	}
	if env.Data.Message == nil {
		return models.Message{}, errors.Wrap(ErrMessageNotFound, "update message", //nolint:exhaustruct // error.
			slog.String("message_id", messageID))
	}
	return *env.Data.Message, nil
}

func (s *Session) invoke(
	ctx context.Context,
	text string,
	history []models.Message,
	profile models.Profile,
) (models.Response, error) {
	kind := classifier.SchemaFor(classifier.Classify(text, history))
	resp, err := s.collaborator.Invoke(ctx, buildPrompt(text, history, profile), kind)
	if err != nil {
		return nil, errors.Wrap(err, "invoke collaborator", slog.String("kind", string(kind)))
	}
	if resp == nil {
		return nil, errors.New("collaborator returned no response", slog.String("kind", string(kind)))
	}
	return resp, nil
}

func (s *Session) storeMessage(
	ctx context.Context,
	conversationID string,
	text string,
	sender models.Sender,
	metadata []byte,
) (models.Message, error) {
	env, err := s.gateway.CreateMessage(ctx, storage.MessageInput{
		ConversationID: conversationID,
		Text:           text,
		Sender:         sender,
		Metadata:       metadata,
	})
	if err != nil {
		return models.Message{}, errors.Wrap(err, "store message", //nolint:exhaustruct // error.
			slog.String("sender", string(sender)))
	}
	if env.Data.Message == nil {
		return models.Message{}, errors.New("backend returned no message") //nolint:exhaustruct // error.
	}
	return *env.Data.Message, nil
}

// titleFrom derives a conversation title from the first message.
func titleFrom(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxTitleRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:maxTitleRunes-1])) + "…"
}
