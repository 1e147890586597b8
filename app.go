package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"parley/internal/channel"
	"parley/internal/config"
	"parley/internal/eventbus"
	"parley/internal/llm"
	"parley/internal/memory"
	"parley/internal/security"
	"parley/internal/turn"
	"parley/internal/workflow"
)

const (
	keyringPlaceholder      = "[keyring]"
	secretNameLLMKey        = "llm_api_key"
	secretNameFallbackKey   = "fallback_llm_api_key"
	secretNameTelegramToken = "telegram_token"

	dbFile = "parley.db"
)

// App wires the daemon together: config, memory store, LLM providers, the
// workflow engine and the delivery channels.
type App struct {
	cfg      *config.Config
	bus      *eventbus.Bus
	store    *memory.SQLiteStore
	rooms    *memory.Registry
	engine   *workflow.Engine
	executor *turn.Executor
	chanMgr  *channel.Manager
}

// NewApp creates an unwired App.
func NewApp() *App {
	return &App{
		bus: eventbus.New(),
	}
}

// Run starts the daemon and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader, err := config.NewLoader()
	if err != nil {
		return fmt.Errorf("config loader: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	keys, err := security.NewKeyStore(nil)
	if err != nil {
		return fmt.Errorf("key store: %w", err)
	}
	if err := a.resolveSecrets(keys); err != nil {
		return err
	}

	dbPath := cfg.Memory.Path
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dbPath = filepath.Join(home, ".parley", dbFile)
	}
	store, err := memory.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer store.Close()
	a.store = store
	a.rooms = memory.NewRegistry(store)

	provider, speech, err := a.buildProvider()
	if err != nil {
		return err
	}

	engine, err := workflow.NewEngine(store.DB(), a.bus)
	if err != nil {
		return fmt.Errorf("workflow engine: %w", err)
	}
	if cfg.Pipeline.RetryDelaySecs > 0 {
		engine.SetRetryDelay(time.Duration(cfg.Pipeline.RetryDelaySecs) * time.Second)
	}
	a.engine = engine

	sanitizer := security.NewSanitizer(cfg.Security.PIIFiltering)
	summarizer := turn.NewSummarizer(provider, sanitizer,
		cfg.Turn.SummaryModel, cfg.Turn.SummaryWindow, cfg.Turn.SummaryMaxTokens)

	a.executor = turn.NewExecutor(
		cfg.Turn,
		a.rooms,
		provider,
		engine,
		turn.ThresholdPolicy{Threshold: cfg.Turn.SummarizeAt},
		summarizer,
		a.bus,
	)
	engine.Register(a.executor.Pipeline(cfg.Pipeline.StepRetries))

	// Pick up background runs a previous process left unfinished.
	if err := engine.Resume(ctx); err != nil {
		log.Printf("[app] workflow resume failed: %v", err)
	}

	a.chanMgr = channel.NewManager()
	a.chanMgr.Register(channel.NewConsoleChannel())
	if tg := cfg.Channels.Telegram; tg != nil && tg.Token != "" {
		a.chanMgr.Register(channel.NewTelegramChannel(channel.TelegramConfig{
			Token:        tg.Token,
			AllowedIDs:   tg.AllowedIDs,
			VoiceReplies: tg.VoiceReplies,
		}, speech.transcriber, speech.synthesizer))
	}
	a.chanMgr.OnMessage(func(msg channel.InboundMessage) {
		go a.handleMessage(ctx, msg)
	})

	if err := a.chanMgr.StartAll(ctx); err != nil {
		return err
	}
	log.Printf("[app] parley up, memory at %s", dbPath)

	<-ctx.Done()
	log.Println("[app] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.chanMgr.StopAll(shutdownCtx)
	a.engine.Wait()
	return nil
}

// handleMessage runs one turn for an inbound channel message and routes the
// reply back through the channel it came from.
func (a *App) handleMessage(ctx context.Context, msg channel.InboundMessage) {
	a.bus.Publish(eventbus.TopicInboundMessage, msg)

	roomID := msg.ChannelName + ":" + msg.RoomID

	turnCtx := ctx
	if secs := a.cfg.LLM.TimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	response, err := a.executor.RunTurn(turnCtx, roomID, msg.Text, "")
	if err != nil {
		log.Printf("[app] turn failed for room %s: %v", roomID, err)
		a.bus.Publish(eventbus.TopicError, err)
		response = "Sorry, I ran into an error processing that. Please try again."
	}

	ch, ok := a.chanMgr.Get(msg.ChannelName)
	if !ok {
		log.Printf("[app] channel %s not found", msg.ChannelName)
		return
	}

	out := channel.OutboundMessage{
		RoomID: msg.RoomID,
		Text:   response,
		Voice:  msg.Voice,
	}
	a.bus.Publish(eventbus.TopicOutboundMessage, out)

	if err := ch.Send(ctx, out); err != nil {
		log.Printf("[app] reply failed on %s: %v", msg.ChannelName, err)
	}
}

// speechEngines carries the optional audio interfaces of the primary provider.
type speechEngines struct {
	transcriber llm.Transcriber
	synthesizer llm.Synthesizer
}

// buildProvider constructs the primary provider (plus fallback chain when
// configured) and extracts its speech capabilities if it has any.
func (a *App) buildProvider() (llm.Provider, speechEngines, error) {
	primary, err := llm.NewProvider(a.cfg.LLM)
	if err != nil {
		return nil, speechEngines{}, err
	}

	var speech speechEngines
	if t, ok := primary.(llm.Transcriber); ok {
		speech.transcriber = t
	}
	if s, ok := primary.(llm.Synthesizer); ok {
		speech.synthesizer = s
	}

	if a.cfg.FallbackLLM == nil {
		return primary, speech, nil
	}

	fb, err := llm.NewProvider(*a.cfg.FallbackLLM)
	if err != nil {
		return nil, speechEngines{}, fmt.Errorf("fallback provider: %w", err)
	}
	return llm.NewFallbackProvider(primary, fb), speech, nil
}

// resolveSecrets swaps keyring placeholders in the loaded config for the
// stored secret values.
func (a *App) resolveSecrets(keys *security.KeyStore) error {
	if a.cfg.LLM.APIKey == keyringPlaceholder {
		val, err := keys.Get(secretNameLLMKey)
		if err != nil {
			return fmt.Errorf("LLM API key not found in keyring: %w", err)
		}
		a.cfg.LLM.APIKey = val
	}
	if fb := a.cfg.FallbackLLM; fb != nil && fb.APIKey == keyringPlaceholder {
		val, err := keys.Get(secretNameFallbackKey)
		if err != nil {
			return fmt.Errorf("fallback LLM API key not found in keyring: %w", err)
		}
		fb.APIKey = val
	}
	if tg := a.cfg.Channels.Telegram; tg != nil && tg.Token == keyringPlaceholder {
		val, err := keys.Get(secretNameTelegramToken)
		if err != nil {
			return fmt.Errorf("telegram token not found in keyring: %w", err)
		}
		tg.Token = val
	}
	return nil
}
