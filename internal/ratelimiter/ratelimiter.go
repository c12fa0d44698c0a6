package ratelimiter

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

var ErrStopped = errors.New("rate limiter is stopped")

// API is the part of the Telegram client the bot talks through.
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageReplyMarkup(ctx context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

type request struct {
	ctx      context.Context
	chatID   int64
	kind     string
	send     func(ctx context.Context) (*models.Message, error)
	response chan response
}

type response struct {
	message *models.Message
	err     error
}

// RateLimiter paces messages per chat: one per privateChatRate in private
// chats and one per groupChatRate in groups. Chat actions and callback
// answers are not paced.
type RateLimiter struct {
	api      API
	queue    chan request
	lastSent map[int64]time.Time
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	now      func() time.Time
	log      *slog.Logger
}

func New(api API, log *slog.Logger) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())

	rl := &RateLimiter{
		api:      api,
		queue:    make(chan request, queueSize),
		lastSent: make(map[int64]time.Time),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		now:      time.Now,
		log:      log,
	}

	go rl.processQueue()

	return rl
}

func (rl *RateLimiter) SendMessage(
	ctx context.Context,
	params *bot.SendMessageParams,
) (*models.Message, error) {
	return rl.enqueue(ctx, chatIDOf(params.ChatID), "sendMessage",
		func(ctx context.Context) (*models.Message, error) {
			return rl.api.SendMessage(ctx, params)
		})
}

func (rl *RateLimiter) EditMessageReplyMarkup(
	ctx context.Context,
	params *bot.EditMessageReplyMarkupParams,
) (*models.Message, error) {
	return rl.enqueue(ctx, chatIDOf(params.ChatID), "editMessageReplyMarkup",
		func(ctx context.Context) (*models.Message, error) {
			return rl.api.EditMessageReplyMarkup(ctx, params)
		})
}

func (rl *RateLimiter) SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error) {
	return rl.api.SendChatAction(ctx, params)
}

func (rl *RateLimiter) AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	return rl.api.AnswerCallbackQuery(ctx, params)
}

// Stop rejects queued and future requests with ErrStopped.
func (rl *RateLimiter) Stop() {
	rl.cancel()
	<-rl.done
}

func (rl *RateLimiter) enqueue(
	ctx context.Context,
	chatID int64,
	kind string,
	send func(ctx context.Context) (*models.Message, error),
) (*models.Message, error) {
	if rl.ctx.Err() != nil {
		return nil, ErrStopped
	}

	req := request{
		ctx:      ctx,
		chatID:   chatID,
		kind:     kind,
		send:     send,
		response: make(chan response, 1),
	}

	select {
	case rl.queue <- req:
	case <-rl.ctx.Done():
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-req.response:
		return resp.message, resp.err
	case <-rl.done:
		select {
		case resp := <-req.response:
			return resp.message, resp.err
		default:
			return nil, ErrStopped
		}
	}
}

func (rl *RateLimiter) processQueue() {
	defer close(rl.done)

	for {
		select {
		case req := <-rl.queue:
			rl.handleRequest(req)
		case <-rl.ctx.Done():
			for {
				select {
				case req := <-rl.queue:
					req.response <- response{err: ErrStopped}
				default:
					return
				}
			}
		}
	}
}

func (rl *RateLimiter) handleRequest(req request) {
	rl.mu.Lock()
	lastSent, exists := rl.lastSent[req.chatID]
	rl.mu.Unlock()

	if exists {
		delay := getDelay(req.chatID, rl.now().Sub(lastSent))

		if delay > 0 {
			rl.log.DebugContext(req.ctx, "Rate limiting message",
				"chatID", req.chatID,
				"delay", delay,
				"requestKind", req.kind,
				"queueLen", len(rl.queue))

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.ctx.Done():
				timer.Stop()
				req.response <- response{err: req.ctx.Err()}

				return
			case <-rl.ctx.Done():
				timer.Stop()
				req.response <- response{err: ErrStopped}

				return
			}
		}
	}

	message, err := req.send(req.ctx)

	rl.mu.Lock()
	rl.lastSent[req.chatID] = rl.now()
	rl.mu.Unlock()

	req.response <- response{
		message: message,
		err:     err,
	}
}

func chatIDOf(chatID any) int64 {
	switch id := chatID.(type) {
	case int64:
		return id
	case int:
		return int64(id)
	case string:
		// Channel usernames are paced like groups.
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n
		}

		return -1
	default:
		return 0
	}
}

func getDelay(chatID int64, elapsed time.Duration) time.Duration {
	return max(getRate(chatID)-elapsed, 0)
}

func getRate(chatID int64) time.Duration {
	if chatID < 0 {
		return groupChatRate
	}

	return privateChatRate
}
