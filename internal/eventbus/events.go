package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/voxel-world/internal/vec"
)

// Типы событий жизненного цикла мира
const (
	EventChunkReady    = "chunk.ready"
	EventChunkUnloaded = "chunk.unloaded"
	EventChunkFailed   = "chunk.failed"
	EventWorldSaved    = "world.saved"
)

// ChunkEvent полезная нагрузка событий чанка
type ChunkEvent struct {
	World    string   `json:"world"`
	Position vec.Vec3 `json:"position"`
	Loaded   bool     `json:"loaded,omitempty"` // true - из хранилища, false - сгенерирован
	Saved    bool     `json:"saved,omitempty"`  // при выгрузке были несохранённые изменения
	Attempt  int      `json:"attempt,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// WorldSavedEvent полезная нагрузка события сохранения мира
type WorldSavedEvent struct {
	World    string        `json:"world"`
	Chunks   int           `json:"chunks"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// NewEnvelope создаёт конверт с JSON полезной нагрузкой
func NewEnvelope(source, eventType string, priority int, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку конверта
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
