package channel

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"

	"parley/internal/llm"
)

// TelegramChannel integrates with the Telegram Bot API. Voice notes are
// transcribed on the way in; replies to voice notes are spoken back when a
// synthesizer is configured and voice replies are enabled.
type TelegramChannel struct {
	mu           sync.Mutex
	token        string
	allowedIDs   map[int64]bool
	voiceReplies bool
	transcriber  llm.Transcriber
	synthesizer  llm.Synthesizer
	bot          *tele.Bot
	handler      func(InboundMessage)
	running      bool
}

// TelegramConfig holds Telegram-specific configuration.
type TelegramConfig struct {
	Token        string
	AllowedIDs   []int64
	VoiceReplies bool
}

// NewTelegramChannel creates a new Telegram channel. transcriber and
// synthesizer may be nil, which disables the corresponding voice direction.
func NewTelegramChannel(cfg TelegramConfig, transcriber llm.Transcriber, synthesizer llm.Synthesizer) *TelegramChannel {
	allowed := make(map[int64]bool, len(cfg.AllowedIDs))
	for _, id := range cfg.AllowedIDs {
		allowed[id] = true
	}
	return &TelegramChannel{
		token:        cfg.Token,
		allowedIDs:   allowed,
		voiceReplies: cfg.VoiceReplies,
		transcriber:  transcriber,
		synthesizer:  synthesizer,
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	pref := tele.Settings{
		Token:  t.token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	bot.Handle(tele.OnText, func(c tele.Context) error {
		if !t.authorized(c) {
			return nil
		}
		t.deliver(c, c.Text(), false)
		return nil
	})

	bot.Handle(tele.OnVoice, func(c tele.Context) error {
		if !t.authorized(c) {
			return nil
		}
		if t.transcriber == nil {
			return c.Send("Voice messages are not enabled.")
		}

		voice := c.Message().Voice
		rc, err := bot.File(&voice.File)
		if err != nil {
			log.Printf("[telegram] voice download failed: %v", err)
			return nil
		}
		defer rc.Close()

		// Per-message context: the Start context dies at shutdown and must
		// not cut off an in-flight transcription.
		tctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		transcript, err := t.transcriber.Transcribe(tctx, rc, "voice.ogg")
		if err != nil {
			log.Printf("[telegram] transcription failed: %v", err)
			return c.Send("Sorry, I couldn't understand that voice message.")
		}

		t.deliver(c, transcript, true)
		return nil
	})

	t.bot = bot
	t.running = true

	go func() {
		bot.Start()
	}()

	// Stop bot when context is cancelled
	go func() {
		<-ctx.Done()
		bot.Stop()
	}()

	return nil
}

func (t *TelegramChannel) authorized(c tele.Context) bool {
	sender := c.Sender()
	if len(t.allowedIDs) > 0 && !t.allowedIDs[sender.ID] {
		log.Printf("[telegram] unauthorized user: %d (%s)", sender.ID, sender.Username)
		return false // silently ignore
	}
	return true
}

func (t *TelegramChannel) deliver(c tele.Context, text string, voice bool) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()

	if handler == nil {
		return
	}
	sender := c.Sender()
	handler(InboundMessage{
		ChannelName: "telegram",
		SenderID:    strconv.FormatInt(sender.ID, 10),
		SenderName:  sender.FirstName + " " + sender.LastName,
		RoomID:      strconv.FormatInt(c.Chat().ID, 10),
		Text:        text,
		Voice:       voice,
		Timestamp:   time.Now(),
	})
}

func (t *TelegramChannel) OnMessage(handler func(InboundMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

func (t *TelegramChannel) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *TelegramChannel) Stop(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		t.bot.Stop()
	}
	t.running = false
	return nil
}

func (t *TelegramChannel) Send(ctx context.Context, msg OutboundMessage) error {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()

	if bot == nil {
		return fmt.Errorf("telegram bot not started")
	}

	chatID, err := strconv.ParseInt(msg.RoomID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	recipient := &tele.Chat{ID: chatID}

	if msg.Voice && t.voiceReplies && t.synthesizer != nil {
		if err := t.sendVoice(ctx, bot, recipient, msg.Text); err != nil {
			log.Printf("[telegram] voice reply failed, falling back to text: %v", err)
		} else {
			return nil
		}
	}

	// Split long messages (Telegram limit is 4096)
	text := msg.Text
	for len(text) > 0 {
		chunk := text
		if len(chunk) > 4000 {
			chunk = text[:4000]
			text = text[4000:]
		} else {
			text = ""
		}
		if _, err := bot.Send(recipient, chunk); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}

	return nil
}

func (t *TelegramChannel) sendVoice(ctx context.Context, bot *tele.Bot, recipient *tele.Chat, text string) error {
	audio, err := t.synthesizer.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	defer audio.Close()

	voice := &tele.Voice{File: tele.FromReader(audio)}
	if _, err := bot.Send(recipient, voice); err != nil {
		return fmt.Errorf("telegram voice send: %w", err)
	}
	return nil
}
