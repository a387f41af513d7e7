package remesh

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/chunk"
	"github.com/annel0/voxel-world/internal/world/mesh"
)

// ErrShutdownTimeout возвращается, если воркеры не завершились за отведённое время
var ErrShutdownTimeout = errors.New("remesh: shutdown timed out")

var tracer = otel.Tracer("github.com/annel0/voxel-world/internal/world/remesh")

// Key ключ задачи: чанк и материал (mesh.CollisionMaterial для коллизий)
type Key struct {
	Chunk    vec.Vec3
	Material int
}

// Request запрос на перестроение мешей чанка.
// Snapshot не должен изменяться после передачи.
type Request struct {
	Position  vec.Vec3
	Snapshot  *chunk.Snapshot
	Materials []int
}

// Result готовый меш одного материала
type Result struct {
	Key
	Version  uint64
	Mesh     *mesh.Mesh
	Duration time.Duration
}

// BuildFunc строит квады материала по снимку
type BuildFunc func(ctx context.Context, s *chunk.Snapshot, material int) ([]mesh.Quad, error)

// ApplyFunc применяет результат к чанку. false - результат не нужен (чанк уже не Ready).
type ApplyFunc func(r *Result) bool

// UpdateStats итог одного вызова Update
type UpdateStats struct {
	Applied   int
	Discarded int
	Remaining int // задачи в очереди и в работе после вызова
}

// Options параметры планировщика
type Options struct {
	Workers           int // 0 - по числу CPU
	MaxApplyPerUpdate int
	ResultBuffer      int
	ShutdownTimeout   time.Duration
	Logger            *logging.Logger
	Registerer        prometheus.Registerer // nil - метрики не регистрируются
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.MaxApplyPerUpdate <= 0 {
		o.MaxApplyPerUpdate = 32
	}
	if o.ResultBuffer <= 0 {
		o.ResultBuffer = 256
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.GetRemeshLogger()
	}
}

type job struct {
	key      Key
	version  uint64
	snapshot *chunk.Snapshot
}

// Scheduler фоновая очередь перестроения мешей.
//
// Для каждого ключа (чанк, материал) в очереди хранится не более одной
// не начатой задачи: новый запрос заменяет её снимок. Применяется только
// результат последней версии ключа.
type Scheduler struct {
	opts    Options
	build   BuildFunc
	log     *logging.Logger
	metrics *Metrics

	mu        sync.Mutex
	pending   map[Key]*job
	queue     []Key
	latest    map[Key]uint64
	executing int
	closed    bool

	seq      atomic.Uint64
	wake     chan struct{}
	results  chan *Result
	stopping chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewScheduler создаёт планировщик и запускает воркеры
func NewScheduler(build BuildFunc, opts Options) *Scheduler {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		opts:     opts,
		build:    build,
		log:      opts.Logger,
		metrics:  NewMetrics(opts.Registerer),
		pending:  make(map[Key]*job),
		latest:   make(map[Key]uint64),
		wake:     make(chan struct{}, 1),
		results:  make(chan *Result, opts.ResultBuffer),
		stopping: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.log.Debug("планировщик мешей запущен: воркеров %d", opts.Workers)
	return s
}

// Enqueue ставит запрос в очередь. Никогда не блокируется.
// Возвращает false после Shutdown.
func (s *Scheduler) Enqueue(req Request) bool {
	if req.Snapshot == nil || len(req.Materials) == 0 {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	for _, material := range req.Materials {
		key := Key{Chunk: req.Position, Material: material}
		version := s.seq.Add(1)
		s.latest[key] = version
		s.metrics.enqueued.Inc()

		if j, ok := s.pending[key]; ok {
			j.version = version
			j.snapshot = req.Snapshot
			s.metrics.coalesced.Inc()
			continue
		}
		s.pending[key] = &job{key: key, version: version, snapshot: req.Snapshot}
		s.queue = append(s.queue, key)
	}
	s.metrics.active.Set(float64(len(s.pending) + s.executing))
	s.mu.Unlock()

	s.signal()
	return true
}

// Cancel снимает задачи чанка из очереди и делает недействительными
// результаты, которые уже строятся
func (s *Scheduler) Cancel(pos vec.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.pending {
		if key.Chunk == pos {
			delete(s.pending, key)
		}
	}
	for key := range s.latest {
		if key.Chunk == pos {
			delete(s.latest, key)
		}
	}

	queue := s.queue[:0]
	for _, key := range s.queue {
		if key.Chunk != pos {
			queue = append(queue, key)
		}
	}
	s.queue = queue
	s.metrics.active.Set(float64(len(s.pending) + s.executing))
}

// ActiveTasks возвращает число задач в очереди и в работе
func (s *Scheduler) ActiveTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) + s.executing
}

// Update забирает не более MaxApplyPerUpdate готовых результатов без блокировки.
// apply вызывается без удержания внутренних блокировок планировщика.
func (s *Scheduler) Update(apply ApplyFunc) UpdateStats {
	var stats UpdateStats

	for i := 0; i < s.opts.MaxApplyPerUpdate; i++ {
		var r *Result
		select {
		case r = <-s.results:
		default:
		}
		if r == nil {
			break
		}

		s.mu.Lock()
		latest, ok := s.latest[r.Key]
		current := ok && latest == r.Version
		if current {
			delete(s.latest, r.Key)
		}
		s.mu.Unlock()

		if current && apply(r) {
			stats.Applied++
			s.metrics.applied.Inc()
		} else {
			stats.Discarded++
			s.metrics.discarded.Inc()
		}
	}

	stats.Remaining = s.ActiveTasks()
	return stats
}

// Shutdown перестаёт принимать задачи, сбрасывает очередь и ждёт воркеры.
// По истечении ShutdownTimeout (или ctx) отменяет их контекст и возвращает ErrShutdownTimeout.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		dropped := len(s.pending)
		s.pending = make(map[Key]*job)
		s.queue = nil
		s.latest = make(map[Key]uint64)
		s.mu.Unlock()

		close(s.stopping)

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		defer cancel()

		select {
		case <-done:
			s.log.Info("планировщик мешей остановлен, отброшено задач: %d", dropped)
		case <-ctx.Done():
			err = ErrShutdownTimeout
			s.log.Warn("воркеры мешей не завершились за %v", s.opts.ShutdownTimeout)
		}
		s.cancel()
		s.metrics.active.Set(0)
	})
	return err
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next достаёт следующую задачу из очереди
func (s *Scheduler) next() (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	for len(s.queue) > 0 {
		key := s.queue[0]
		s.queue = s.queue[1:]

		j, ok := s.pending[key]
		if !ok {
			continue
		}
		delete(s.pending, key)
		s.executing++

		// Будим следующий воркер, если работа ещё есть
		if len(s.queue) > 0 {
			s.signal()
		}
		return j, true
	}
	return nil, false
}

func (s *Scheduler) done() {
	s.mu.Lock()
	s.executing--
	s.metrics.active.Set(float64(len(s.pending) + s.executing))
	s.mu.Unlock()
}

// forget снимает отметку последней версии, если сборка именно этой версии не удалась.
// Более новый запрос по тому же ключу остаётся в силе.
func (s *Scheduler) forget(j *job) {
	s.mu.Lock()
	if v, ok := s.latest[j.key]; ok && v == j.version {
		delete(s.latest, j.key)
	}
	s.mu.Unlock()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		j, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.stopping:
				return
			}
		}

		r := s.run(j)
		if r == nil {
			s.forget(j)
		} else {
			select {
			case s.results <- r:
			case <-s.stopping:
				s.done()
				return
			}
		}
		s.done()
	}
}

func (s *Scheduler) run(j *job) *Result {
	ctx, span := tracer.Start(s.ctx, "remesh.build", trace.WithAttributes(
		attribute.String("chunk", j.key.Chunk.String()),
		attribute.Int("material", j.key.Material),
		attribute.Int64("version", int64(j.version)),
	))
	defer span.End()

	start := time.Now()
	quads, err := s.build(ctx, j.snapshot, j.key.Material)
	elapsed := time.Since(start)
	s.metrics.buildTime.Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.failed.Inc()
		if errors.Is(err, context.Canceled) {
			s.log.Debug("построение меша %s/%d отменено", j.key.Chunk, j.key.Material)
		} else {
			s.log.Error("❌ Ошибка построения меша чанка %s, материал %d: %v", j.key.Chunk, j.key.Material, err)
		}
		return nil
	}

	s.metrics.built.Inc()
	span.SetAttributes(attribute.Int("quads", len(quads)))

	return &Result{
		Key:      j.key,
		Version:  j.version,
		Mesh:     mesh.NewMesh(j.key.Material, quads),
		Duration: elapsed,
	}
}
