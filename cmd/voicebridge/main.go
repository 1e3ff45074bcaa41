package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chadiek/voicebridge/internal/backend"
	"github.com/chadiek/voicebridge/internal/capture"
	"github.com/chadiek/voicebridge/internal/config"
	"github.com/chadiek/voicebridge/internal/permstore"
	"github.com/chadiek/voicebridge/internal/playback"
	"github.com/chadiek/voicebridge/internal/session"
	"github.com/chadiek/voicebridge/internal/transcribe"
	"github.com/chadiek/voicebridge/internal/wire"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	local, err := permstore.OpenBadger(cfg.DataDir)
	if err != nil {
		log.Fatalf("open local store: %v", err)
	}
	defer local.Close()

	var cloud permstore.KV
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		sb, err := permstore.NewSupabase(permstore.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("supabase unavailable, permission state stays local: %v", err)
		} else {
			cloud = sb
		}
	}
	perms := permstore.New(cloud, local)

	opener, err := capture.NewMalgoOpener()
	if err != nil {
		log.Fatalf("init audio backend: %v", err)
	}
	defer opener.Close()

	cache := capture.NewCache(opener, perms)
	defer cache.ReleaseForTeardown()

	speaker, err := playback.NewMalgoSpeaker(opener.Context(), 24000)
	if err != nil {
		log.Fatalf("open output device: %v", err)
	}
	writer := playback.NewPacedWriter(speaker, 24000)
	player := playback.NewScheduler(playback.NewWallClock(), writer, 24000)
	defer player.Close()

	sink := session.NewMulticast(&consoleSink{})

	sess := session.New(session.Config{
		Model:             cfg.Model,
		Voice:             cfg.Voice,
		SystemInstruction: cfg.SystemInstruction,
		VAD:               cfg.VAD,
		HandshakeTimeout:  cfg.HandshakeTimeout,
	},
		&session.CacheSource{Cache: cache},
		session.WireDialer{D: &wire.Dialer{Endpoint: cfg.SpeechEndpoint, APIKey: cfg.SpeechAPIKey}},
		player,
		sink,
	)

	ctx := context.Background()
	if ok, err := cache.RequestPermission(ctx); !ok {
		log.Fatalf("microphone permission: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := sess.Connect(ctx); err != nil {
		log.Printf("live session unavailable: %v", err)
		if cfg.BackendURL == "" {
			os.Exit(1)
		}
		runBatchFallback(ctx, cfg, cache, sigChan)
		return
	}
	log.Println("session streaming, speak into the microphone (ctrl-c to quit)")

	sig := <-sigChan
	log.Printf("shutdown signal received: %v", sig)

	sess.Disconnect()
}

// runBatchFallback records until interrupted, transcribes the clip in one
// shot, and asks the text backend for a reply.
func runBatchFallback(ctx context.Context, cfg config.Config, cache *capture.Cache, sigChan chan os.Signal) {
	log.Println("falling back to batch mode: recording until ctrl-c")

	handle, err := cache.AcquireStreamWithRetry(ctx, 3, capture.DefaultConstraints())
	if err != nil {
		log.Fatalf("acquire microphone: %v", err)
	}
	handle.Borrow()
	defer handle.Release()

	var clip []float32
record:
	for {
		select {
		case frame, ok := <-handle.Frames():
			if !ok {
				break record
			}
			clip = append(clip, frame...)
		case <-sigChan:
			break record
		}
	}

	stt := transcribe.New(cfg.TranscribeEndpoint, cfg.TranscribeKey, cfg.TranscribeModel)
	result, err := stt.Transcribe(ctx, clip, handle.SampleRate())
	if err != nil {
		log.Fatalf("transcribe: %v", err)
	}
	if result.Suppressed {
		log.Println("clip too short, nothing to do")
		return
	}
	log.Printf("[user] %s", result.Text)

	reply, speak := backend.New(cfg.BackendURL).Ask(ctx, backend.Request{
		UserID:    "cli",
		Query:     result.Text,
		SessionID: "batch",
		Platform:  "telegram",
		InputType: "voice",
	})
	log.Printf("[model] %s", reply)
	if !speak {
		log.Println("backend marked reply as silent")
	}
}

// consoleSink prints conversation events for the terminal front end.
type consoleSink struct {
	session.NopSink
}

func (consoleSink) TranscriptEvent(t session.Transcript) {
	if t.Final {
		log.Printf("[%s] %s", t.Speaker, t.Text)
	}
}

func (consoleSink) StateChange(s session.State) {
	log.Printf("session state: %s", s)
}

func (consoleSink) SessionError(err error) {
	log.Printf("session error: %v", err)
}
