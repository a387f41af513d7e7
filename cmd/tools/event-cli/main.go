package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/voxel-world/internal/eventbus"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	timeFormat     = "2006-01-02T15:04:05Z"
)

func main() {
	var (
		natsURL    = flag.String("url", defaultNatsURL, "NATS server URL")
		stream     = flag.String("stream", "VOXEL_EVENTS", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, replay, stats")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Event sources filter (comma-separated)")
		worldID    = flag.String("world", "", "World ID filter")
		since      = flag.String("since", "1h", "Replay start: duration (1h, 30m) or RFC3339 time")
		limit      = flag.Int("limit", 100, "Maximum number of events (replay)")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 0)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	filter := eventbus.Filter{
		Types:   parseStringList(*eventTypes),
		Sources: parseStringList(*sources),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *command {
	case "tail":
		err = tailEvents(ctx, bus, filter, *worldID)
	case "replay":
		err = replayEvents(ctx, bus, filter, *worldID, *since, *limit)
	case "stats":
		err = showStats(bus)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, replay, stats")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// tailEvents выводит новые события до Ctrl+C
func tailEvents(ctx context.Context, bus *eventbus.JetStreamBus, f eventbus.Filter, worldID string) error {
	fmt.Println("🎬 Tailing world events (Ctrl+C to stop)")

	var count int
	var mu sync.Mutex
	sub, err := bus.Subscribe(ctx, f, func(_ context.Context, ev *eventbus.Envelope) {
		if !matchWorld(ev, worldID) {
			return
		}
		mu.Lock()
		count++
		printEvent(ev)
		mu.Unlock()
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	mu.Lock()
	fmt.Printf("\n📊 Total events: %d\n", count)
	mu.Unlock()
	return nil
}

// replayEvents выводит сохранённые события начиная с since
func replayEvents(ctx context.Context, bus *eventbus.JetStreamBus, f eventbus.Filter, worldID, since string, limit int) error {
	start, err := parseSinceTime(since, time.Now())
	if err != nil {
		return fmt.Errorf("invalid since time: %v", err)
	}
	fmt.Printf("⏪ Replaying events since %s (limit: %d)\n", start.UTC().Format(timeFormat), limit)

	done := make(chan struct{})
	var once sync.Once
	var count int
	var mu sync.Mutex

	sub, err := bus.Replay(ctx, f, start, func(_ context.Context, ev *eventbus.Envelope) {
		if !matchWorld(ev, worldID) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if count >= limit {
			return
		}
		count++
		printEvent(ev)
		if count >= limit {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	// Конец истории стрим не сообщает, ждём не дольше 2 секунд
	idle := time.NewTimer(2 * time.Second)
	defer idle.Stop()
	select {
	case <-done:
	case <-ctx.Done():
	case <-idle.C:
	}

	mu.Lock()
	fmt.Printf("\n📊 Total events: %d\n", count)
	mu.Unlock()
	return nil
}

// showStats выводит состояние стрима и метрики клиента
func showStats(bus *eventbus.JetStreamBus) error {
	stats, err := bus.StreamStats()
	if err != nil {
		return err
	}

	fmt.Println("📊 Event stream statistics")
	fmt.Printf("Stream: %s\n", stats.Stream)
	fmt.Printf("Messages: %d (%d bytes)\n", stats.Messages, stats.Bytes)
	fmt.Printf("Consumers: %d\n", stats.Consumers)
	if stats.Messages > 0 {
		fmt.Printf("Period: %s - %s\n", stats.FirstTime.UTC().Format(timeFormat), stats.LastTime.UTC().Format(timeFormat))
	}
	return nil
}

func matchWorld(ev *eventbus.Envelope, worldID string) bool {
	if worldID == "" {
		return true
	}
	var payload struct {
		World string `json:"world"`
	}
	if err := ev.Decode(&payload); err != nil {
		return false
	}
	return payload.World == worldID
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	timestamp := ev.Timestamp.Local().Format("15:04:05")
	fmt.Printf("[%s] %s [%s] %s\n", timestamp, ev.Source, ev.EventType, ev.ID)

	// Детали в зависимости от типа события
	switch ev.EventType {
	case eventbus.EventChunkReady, eventbus.EventChunkUnloaded, eventbus.EventChunkFailed:
		var e eventbus.ChunkEvent
		if err := ev.Decode(&e); err != nil {
			fmt.Printf("  ⚠️ bad payload: %v\n", err)
			return
		}
		fmt.Printf("  World: %s Chunk: %s", e.World, e.Position)
		switch {
		case e.Error != "":
			fmt.Printf(" Attempt: %d Error: %s", e.Attempt, e.Error)
		case e.Loaded:
			fmt.Print(" (from store)")
		case e.Saved:
			fmt.Print(" (saved)")
		}
		fmt.Println()
	case eventbus.EventWorldSaved:
		var e eventbus.WorldSavedEvent
		if err := ev.Decode(&e); err != nil {
			fmt.Printf("  ⚠️ bad payload: %v\n", err)
			return
		}
		fmt.Printf("  World: %s Chunks: %d Failed: %d Took: %v\n", e.World, e.Chunks, e.Failed, e.Duration)
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m"
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		// Пробуем парсить как абсолютное время
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}
