package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Kalifa21/the-watcher/clients/telegram"
	"github.com/Kalifa21/the-watcher/internal/store"
)

// Scanner runs an on-demand watchlist check for one chat.
type Scanner interface {
	Scan(ctx context.Context, chatID int64) (string, error)
}

type chatState int

const (
	stateIdle chatState = iota
	stateAwaitingAddress
	stateAwaitingName
)

// conversation tracks a chat partway through the guided /add flow.
type conversation struct {
	state          chatState
	pendingAddress string
}

// CommandStats holds command handler counters for the stats endpoint.
type CommandStats struct {
	UpdatesHandled int       `json:"updates_handled"`
	LastUpdateAt   time.Time `json:"last_update_at,omitempty"`
}

// CommandHandler drives the Telegram bot conversation: watchlist
// management, manual scans, and help. Every interacting chat is
// registered as a signal recipient.
type CommandHandler struct {
	logger    *zap.Logger
	messenger Messenger
	store     store.Store
	scanner   Scanner

	mu            sync.Mutex
	conversations map[int64]*conversation

	statsMu        sync.Mutex
	updatesHandled int
	lastUpdateAt   time.Time
}

// NewCommandHandler creates a command handler.
func NewCommandHandler(logger *zap.Logger, messenger Messenger, st store.Store, scanner Scanner) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandHandler{
		logger:        logger,
		messenger:     messenger,
		store:         st,
		scanner:       scanner,
		conversations: make(map[int64]*conversation),
	}
}

// Run consumes bot updates until ctx is cancelled or the channel
// closes.
func (h *CommandHandler) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	h.logger.Info("command handler started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("command handler stopped")
			return
		case update, ok := <-updates:
			if !ok {
				h.logger.Info("command handler stopped, updates channel closed")
				return
			}
			h.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes one bot update and sends at most one reply.
func (h *CommandHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	h.noteUpdate()

	opCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	// Any interaction makes the chat a signal recipient.
	if err := h.store.RegisterRecipient(opCtx, chatID, senderUsername(msg)); err != nil {
		h.logger.Warn("failed to register recipient",
			zap.Int64("chatID", chatID),
			zap.Error(err),
		)
	}

	reply, markdown := h.dispatch(opCtx, chatID, msg)
	if reply == "" {
		return
	}

	var err error
	if markdown {
		err = h.messenger.SendAlert(chatID, reply)
	} else {
		err = h.messenger.SendMessage(chatID, reply)
	}
	if err != nil {
		h.logger.Error("failed to send reply",
			zap.Int64("chatID", chatID),
			zap.Error(err),
		)
	}
}

// dispatch routes one message to its handler. The second return is
// true when the reply is Markdown.
func (h *CommandHandler) dispatch(ctx context.Context, chatID int64, msg *tgbotapi.Message) (string, bool) {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			h.resetConversation(chatID)
			return startText, false
		case "help":
			h.resetConversation(chatID)
			return helpText, false
		case "add":
			return h.handleAdd(ctx, chatID, msg.CommandArguments()), false
		case "remove":
			return h.handleRemove(ctx, chatID, msg.CommandArguments()), false
		case "list":
			return h.handleList(ctx, chatID), false
		case "scan":
			return h.handleScan(ctx, chatID), true
		case "cancel":
			return h.handleCancel(chatID), false
		default:
			return "Unknown command. Send /help for the list of commands.", false
		}
	}

	return h.continueConversation(ctx, chatID, strings.TrimSpace(msg.Text)), false
}

// handleAdd starts the guided add flow, or adds directly when the
// address is given inline ("/add 0x... [name]").
func (h *CommandHandler) handleAdd(ctx context.Context, chatID int64, args string) string {
	args = strings.TrimSpace(args)
	if args == "" {
		h.setConversation(chatID, &conversation{state: stateAwaitingAddress})
		return "Send the wallet address to watch (0x...). Send /cancel to abort."
	}

	address, name, _ := strings.Cut(args, " ")
	if !isWalletAddress(address) {
		return "That doesn't look like a wallet address. Expected a 0x... hex address."
	}

	h.resetConversation(chatID)
	return h.addWallet(ctx, chatID, address, strings.TrimSpace(name))
}

func (h *CommandHandler) handleRemove(ctx context.Context, chatID int64, args string) string {
	h.resetConversation(chatID)

	address := strings.TrimSpace(args)
	if address == "" {
		return "Usage: /remove 0x... (see /list for your watched wallets)"
	}
	if !isWalletAddress(address) {
		return "That doesn't look like a wallet address. Expected a 0x... hex address."
	}

	err := h.store.RemoveWallet(ctx, chatID, address)
	switch {
	case errors.Is(err, store.ErrWalletNotFound):
		return "You're not watching that wallet."
	case err != nil:
		h.logger.Error("failed to remove wallet",
			zap.Int64("chatID", chatID),
			zap.String("wallet", telegram.ShortAddress(address)),
			zap.Error(err),
		)
		return "Something went wrong removing that wallet. Please try again."
	}

	return fmt.Sprintf("Stopped watching %s.", telegram.ShortAddress(address))
}

func (h *CommandHandler) handleList(ctx context.Context, chatID int64) string {
	h.resetConversation(chatID)

	wallets, err := h.store.WatchedWallets(ctx, chatID)
	if err != nil {
		h.logger.Error("failed to load watchlist",
			zap.Int64("chatID", chatID),
			zap.Error(err),
		)
		return "Something went wrong loading your watchlist. Please try again."
	}
	if len(wallets) == 0 {
		return "Your watchlist is empty. Use /add to watch a wallet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Watching %d wallet(s):\n", len(wallets))
	for i, w := range wallets {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, w.Name, telegram.ShortAddress(w.Address))
	}
	b.WriteString("\nRemove one with /remove <address>.")
	return b.String()
}

// handleScan runs an immediate watchlist check. Exactly one reply is
// sent whether the scan succeeds or fails.
func (h *CommandHandler) handleScan(ctx context.Context, chatID int64) string {
	h.resetConversation(chatID)

	summary, err := h.scanner.Scan(ctx, chatID)
	if err != nil {
		h.logger.Error("manual scan failed",
			zap.Int64("chatID", chatID),
			zap.Error(err),
		)
		return "Scan failed. Please try again in a moment."
	}
	return summary
}

func (h *CommandHandler) handleCancel(chatID int64) string {
	if h.conversationState(chatID) == stateIdle {
		return "Nothing to cancel."
	}
	h.resetConversation(chatID)
	return "Cancelled."
}

// continueConversation advances the guided /add flow with a plain text
// message. Idle chatter is ignored.
func (h *CommandHandler) continueConversation(ctx context.Context, chatID int64, text string) string {
	conv := h.getConversation(chatID)
	if conv == nil || text == "" {
		return ""
	}

	switch conv.state {
	case stateAwaitingAddress:
		if !isWalletAddress(text) {
			return "That doesn't look like a wallet address. Send a 0x... hex address, or /cancel."
		}
		h.setConversation(chatID, &conversation{state: stateAwaitingName, pendingAddress: text})
		return "Got it. Now send a short name for this wallet."
	case stateAwaitingName:
		address := conv.pendingAddress
		h.resetConversation(chatID)
		return h.addWallet(ctx, chatID, address, text)
	default:
		return ""
	}
}

// addWallet stores a watched wallet and maps store errors to user
// facing replies. An empty name falls back to the short address.
func (h *CommandHandler) addWallet(ctx context.Context, chatID int64, address, name string) string {
	if name == "" {
		name = telegram.ShortAddress(address)
	}

	w, err := h.store.AddWallet(ctx, chatID, address, name)
	switch {
	case errors.Is(err, store.ErrWalletExists):
		return "You're already watching that wallet."
	case errors.Is(err, store.ErrWalletLimit):
		return fmt.Sprintf("You can watch at most %d wallets. Remove one first with /remove.", store.MaxWalletsPerRecipient)
	case err != nil:
		h.logger.Error("failed to add wallet",
			zap.Int64("chatID", chatID),
			zap.String("wallet", telegram.ShortAddress(address)),
			zap.Error(err),
		)
		return "Something went wrong saving that wallet. Please try again."
	}

	h.logger.Info("wallet added to watchlist",
		zap.Int64("chatID", chatID),
		zap.String("wallet", telegram.ShortAddress(w.Address)),
		zap.String("name", w.Name),
	)
	return fmt.Sprintf("Watching %s (%s). You'll hear from me when it trades.", w.Name, telegram.ShortAddress(w.Address))
}

// Stats returns a snapshot of the handler counters.
func (h *CommandHandler) Stats() CommandStats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return CommandStats{
		UpdatesHandled: h.updatesHandled,
		LastUpdateAt:   h.lastUpdateAt,
	}
}

func (h *CommandHandler) noteUpdate() {
	h.statsMu.Lock()
	h.updatesHandled++
	h.lastUpdateAt = time.Now()
	h.statsMu.Unlock()
}

func (h *CommandHandler) getConversation(chatID int64) *conversation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conversations[chatID]
}

func (h *CommandHandler) conversationState(chatID int64) chatState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conv, ok := h.conversations[chatID]; ok {
		return conv.state
	}
	return stateIdle
}

func (h *CommandHandler) setConversation(chatID int64, conv *conversation) {
	h.mu.Lock()
	h.conversations[chatID] = conv
	h.mu.Unlock()
}

func (h *CommandHandler) resetConversation(chatID int64) {
	h.mu.Lock()
	delete(h.conversations, chatID)
	h.mu.Unlock()
}

// senderUsername extracts the sender's username when present.
func senderUsername(msg *tgbotapi.Message) string {
	if msg.From != nil {
		return msg.From.UserName
	}
	return ""
}

const startText = `Hi! I watch Polymarket for unusual buying and for wallets you care about.

You'll get an alert here when a monitored market shows a coordinated buying cluster or a one-sided volume surge.

Commands:
/add - watch a wallet for new trades
/remove <address> - stop watching a wallet
/list - show your watched wallets
/scan - check your wallets right now
/help - show this message`

const helpText = `Commands:
/add - watch a wallet for new trades (up to 5)
/add <address> [name] - watch a wallet in one step
/remove <address> - stop watching a wallet
/list - show your watched wallets
/scan - check your watched wallets right now
/cancel - abort the current /add flow

Market signal alerts are automatic; any chat that has talked to me receives them.`
