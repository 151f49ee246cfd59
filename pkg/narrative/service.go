package narrative

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// ErrQueueFull is returned by Submit when the worker pool backlog is at
// capacity; callers refund any reservation and tell the player to retry.
var ErrQueueFull = errors.New("narrative queue full")

// Request describes one persona call.
type Request struct {
	Persona  string
	Player   gamedb.DBRef
	Room     gamedb.DBRef
	Scene    SceneContext
	Timeout  time.Duration // zero means the service default
	Fallback string        // deterministic text on failure; zero means FallbackNarrat
}

// Result is delivered exactly once per submitted request. On failure Text
// holds the deterministic fallback and Err the cause.
type Result struct {
	ID       string
	Request  Request
	Response Response
	Err      error
}

type job struct {
	id      string
	req     Request
	ctx     context.Context
	cancel  context.CancelFunc
	deliver func(Result)
}

// Task is the caller's handle on a submitted request. Cancel aborts the
// call; the delivery callback still runs (with the fallback) so cleanup
// such as ledger refunds has a single place to live.
type Task struct {
	ID     string
	cancel context.CancelFunc
}

// Cancel aborts the request if it has not completed.
func (t *Task) Cancel() { t.cancel() }

// Service runs persona calls on a fixed pool of workers.
type Service struct {
	client         *Client
	jobs           chan *job
	quit           chan struct{}
	wg             sync.WaitGroup
	defaultTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*job
}

// NewService starts a worker pool in front of the client.
func NewService(client *Client, workers, backlog int, defaultTimeout time.Duration) *Service {
	if workers <= 0 {
		workers = 2
	}
	if backlog <= 0 {
		backlog = 32
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	s := &Service{
		client:         client,
		jobs:           make(chan *job, backlog),
		quit:           make(chan struct{}),
		defaultTimeout: defaultTimeout,
		pending:        make(map[string]*job),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	return s
}

// Submit queues a persona call. deliver runs on a worker goroutine exactly
// once, with either the parsed response or the deterministic fallback.
func (s *Service) Submit(req Request, deliver func(Result)) (*Task, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	j := &job{
		id:      uuid.NewString(),
		req:     req,
		ctx:     ctx,
		cancel:  cancel,
		deliver: deliver,
	}
	select {
	case s.jobs <- j:
	default:
		cancel()
		return nil, ErrQueueFull
	}
	s.mu.Lock()
	s.pending[j.id] = j
	s.mu.Unlock()
	return &Task{ID: j.id, cancel: cancel}, nil
}

// CancelPlayer aborts every pending request for a player. Used when the
// session terminates.
func (s *Service) CancelPlayer(player gamedb.DBRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.pending {
		if j.req.Player == player {
			j.cancel()
		}
	}
}

// Close stops accepting work and waits for in-flight calls to finish.
func (s *Service) Close() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Service) worker(n int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case j := <-s.jobs:
			s.run(j)
		}
	}
}

func (s *Service) run(j *job) {
	defer j.cancel()
	defer func() {
		s.mu.Lock()
		delete(s.pending, j.id)
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("NARRATIVE: panic in job %s: %v", j.id, r)
		}
	}()

	start := time.Now()
	msgs := BuildMessages(j.req.Persona, j.req.Scene)
	raw, err := s.client.Complete(j.ctx, msgs)

	res := Result{ID: j.id, Request: j.req}
	if err != nil {
		fallback := j.req.Fallback
		if fallback == "" {
			fallback = FallbackNarrat
		}
		res.Response = Response{Text: fallback}
		res.Err = err
		log.Printf("NARRATIVE: %s call for #%d failed after %v: %v", j.req.Persona, j.req.Player, time.Since(start), err)
	} else {
		res.Response = ParseResponse(raw)
	}
	j.deliver(res)
}
