// Package telegram hosts the Telegram client, routing, and handlers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"fleet_service_bot/internal/config"
	"fleet_service_bot/internal/domain"
	"fleet_service_bot/internal/fleet"
	"fleet_service_bot/internal/logging"
	"fleet_service_bot/internal/session"
	"fleet_service_bot/internal/ticket"
)

type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"edited_message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Narrow views of the collaborators the handlers call into; fakes implement
// them in tests.

type ticketEngine interface {
	Create(ctx context.Context, carID, creatorTgID int64, creatorRole, description, desiredAt string) (domain.Ticket, bool, error)
	Mechanics(ctx context.Context) ([]domain.User, error)
	AssignMechanic(ctx context.Context, ticketID int64, mechanicTgID *int64) error
	Approve(ctx context.Context, ticketID, adminTgID int64) error
	Reject(ctx context.Context, ticketID, adminTgID int64) error
	RecordCompletion(ctx context.Context, ticketID, mechanicTgID, finalMileage int64, costNet float64, comments string) error
	ListPending(ctx context.Context) ([]ticket.View, error)
	ListForMechanic(ctx context.Context, mechanicTgID int64) ([]ticket.View, error)
	ListHistory(ctx context.Context, mechanicTgID *int64) ([]ticket.View, error)
	SumCompletedCost(ctx context.Context, from, to time.Time) (float64, error)
}

type carRegistry interface {
	Register(ctx context.Context, input fleet.CarInput) (domain.Car, error)
	ResolveByIdentifier(ctx context.Context, identifier string) (domain.Car, error)
	List(ctx context.Context) ([]domain.Car, error)
}

type rolePolicy interface {
	ResolveRole(ctx context.Context, tgID int64) (string, error)
	IsAdmin(ctx context.Context, tgID int64) (bool, error)
}

type roleGranter interface {
	SetRole(ctx context.Context, tgID int64, role string) error
}

type userRegistrar interface {
	EnsureUser(ctx context.Context, tgID int64, fullName string) (bool, error)
}

type flowStore interface {
	Begin(tgID int64, flow *session.Flow)
	Get(tgID int64) (*session.Flow, bool)
	Clear(tgID int64)
}

type statsProvider interface {
	CountUsers(ctx context.Context) (int64, error)
	CountCars(ctx context.Context) (int64, error)
	CountOpenTickets(ctx context.Context) (int64, error)
}

// Client wraps the Telegram bot instance, its routing, and dependencies.
type Client struct {
	bot      botAPI
	logger   *logrus.Entry
	engine   ticketEngine
	registry carRegistry
	policy   rolePolicy
	granter  roleGranter
	users    userRegistrar
	sessions flowStore
	stats    statsProvider
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithEngine attaches the service ticket engine.
func WithEngine(engine ticketEngine) Option {
	return func(c *Client) { c.engine = engine }
}

// WithRegistry attaches the fleet registry.
func WithRegistry(registry carRegistry) Option {
	return func(c *Client) { c.registry = registry }
}

// WithPolicy attaches the authorization policy.
func WithPolicy(policy rolePolicy) Option {
	return func(c *Client) { c.policy = policy }
}

// WithRoleGranter attaches the role assignment collaborator.
func WithRoleGranter(granter roleGranter) Option {
	return func(c *Client) { c.granter = granter }
}

// WithUserRegistrar attaches the first-contact user registrar.
func WithUserRegistrar(users userRegistrar) Option {
	return func(c *Client) { c.users = users }
}

// WithSessions attaches the conversation flow store.
func WithSessions(sessions flowStore) Option {
	return func(c *Client) { c.sessions = sessions }
}

// WithStatsProvider attaches the diagnostics stats provider.
func WithStatsProvider(stats statsProvider) Option {
	return func(c *Client) { c.stats = stats }
}

// NewClient initializes the Telegram bot with long polling and the update
// router.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{logger: logger}
	for _, opt := range opts {
		opt(client)
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot

	return client, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// SendText delivers a plain text message to a chat. It satisfies the
// notification dispatcher's sender contract.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	if c == nil || c.bot == nil {
		return errors.New("telegram client is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}

	return nil
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	switch {
	case update.Message != nil:
		c.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		c.handleCallback(ctx, update.CallbackQuery)
	case update.EditedMessage != nil:
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_update_ignored",
			"user_id": userID(update.EditedMessage.From),
		}).Debug("ignoring edited message")
	default:
		c.logger.WithField("event", "telegram_update_unknown").Debug("ignoring unknown update type")
	}
}

// reply sends a message and logs delivery failures; handlers never abort on a
// failed send.
func (c *Client) reply(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	if chatID == 0 {
		return
	}

	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_send_failed",
			"chat_id": chatID,
		}).WithError(err).Warn("failed to send message")
	}
}

func (c *Client) answerCallback(ctx context.Context, callbackID string) {
	if callbackID == "" {
		return
	}

	if _, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	}); err != nil {
		c.logger.WithField("event", "telegram_callback_ack_failed").WithError(err).Warn("failed to answer callback query")
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func fullName(user *models.User) string {
	if user == nil {
		return ""
	}

	return strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return msg.Message.Chat.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return msg.InaccessibleMessage.Chat.ID
	default:
		return 0
	}
}
