package server

import (
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// TriggerDepthLimit bounds nested trigger executions. A chain that
// exceeds it is halted and the original actor told.
const TriggerDepthLimit = 30

// QueueEntry is one queued softcode action.
type QueueEntry struct {
	Executor  gamedb.DBRef // object the action runs on
	Enactor   gamedb.DBRef // who caused it (%n)
	OrigActor gamedb.DBRef // player at the root of the trigger chain
	Command   string       // raw action text (may be a {block})
	Args      []string     // wildcard captures (%0-%9)
	Depth     int          // trigger chain depth
	WaitUntil time.Time    // zero = immediate
}

// CommandQueue holds pending softcode actions. Player keyboard input is
// dispatched synchronously on its connection goroutine, which gives each
// player one ordered stream; the queue carries the trigger fan-out.
type CommandQueue struct {
	mu        sync.Mutex
	immediate []*QueueEntry
	waiting   []*QueueEntry
	maxPerObj int
}

// NewCommandQueue creates an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{maxPerObj: 1000}
}

// Add queues an action for the next tick.
func (q *CommandQueue) Add(entry *QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.maxPerObj > 0 {
		count := 0
		for _, e := range q.immediate {
			if e.Executor == entry.Executor {
				count++
			}
		}
		if count >= q.maxPerObj {
			log.Printf("QUEUE: dropping entry for #%d, per-object limit (%d) reached",
				entry.Executor, q.maxPerObj)
			return
		}
	}
	q.immediate = append(q.immediate, entry)
}

// AddWait queues an action for delayed execution, kept sorted by due time.
func (q *CommandQueue) AddWait(entry *QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.waiting {
		if entry.WaitUntil.Before(e.WaitUntil) {
			q.waiting = append(q.waiting[:i+1], q.waiting[i:]...)
			q.waiting[i] = entry
			return
		}
	}
	q.waiting = append(q.waiting, entry)
}

// PromoteReady moves due entries from the wait queue. Returns how many.
func (q *CommandQueue) PromoteReady() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	cutoff := 0
	for _, e := range q.waiting {
		if e.WaitUntil.After(now) {
			break
		}
		cutoff++
	}
	if cutoff > 0 {
		q.immediate = append(q.immediate, q.waiting[:cutoff]...)
		q.waiting = q.waiting[cutoff:]
	}
	return cutoff
}

// PopImmediate returns and removes the next immediate entry, or nil.
func (q *CommandQueue) PopImmediate() *QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.immediate) == 0 {
		return nil
	}
	entry := q.immediate[0]
	q.immediate = q.immediate[1:]
	return entry
}

// HaltObject removes all queued actions running as the given object.
func (q *CommandQueue) HaltObject(ref gamedb.DBRef) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	filter := func(entries []*QueueEntry) []*QueueEntry {
		var out []*QueueEntry
		for _, e := range entries {
			if e.Executor == ref {
				removed++
			} else {
				out = append(out, e)
			}
		}
		return out
	}
	q.immediate = filter(q.immediate)
	q.waiting = filter(q.waiting)
	return removed
}

// HaltAll empties every queue.
func (q *CommandQueue) HaltAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := len(q.immediate) + len(q.waiting)
	q.immediate = nil
	q.waiting = nil
	return removed
}

// Stats returns queue depths.
func (q *CommandQueue) Stats() (immediate, waiting int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.immediate), len(q.waiting)
}

// ProcessQueue runs one batch of queued actions. Returns whether any
// work was done.
func (g *Game) ProcessQueue() bool {
	promoted := g.Queue.PromoteReady()
	processed := 0
	// Bound the batch so a self-queueing object cannot starve the tick.
	for processed < 200 {
		entry := g.Queue.PopImmediate()
		if entry == nil {
			break
		}
		g.safeExecuteQueueEntry(entry)
		processed++
	}
	return processed > 0 || promoted > 0
}

// safeExecuteQueueEntry wraps ExecuteQueueEntry with panic recovery and a
// watchdog that logs slow entries.
func (g *Game) safeExecuteQueueEntry(entry *QueueEntry) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in queue entry (executor=#%d cmd=%q): %v\n%s",
				entry.Executor, entry.Command, r, debug.Stack())
		}
	}()

	timer := time.AfterFunc(5*time.Second, func() {
		snippet := entry.Command
		if len(snippet) > 80 {
			snippet = snippet[:80]
		}
		log.Printf("QUEUE: slow entry >5s (executor=#%d cmd=%q)", entry.Executor, snippet)
	})
	g.ExecuteQueueEntry(entry)
	timer.Stop()
}

// StartQueueProcessor starts the background queue loop. The tick adapts:
// fast (10ms) while there is work, slow (100ms) when idle.
func (g *Game) StartQueueProcessor() {
	go func() {
		const fastTick = 10 * time.Millisecond
		const idleTick = 100 * time.Millisecond
		ticker := time.NewTicker(idleTick)
		defer ticker.Stop()
		heartbeat := time.NewTicker(60 * time.Second)
		defer heartbeat.Stop()
		idle := true
		for {
			select {
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in queue processor: %v", r)
						}
					}()
					hadWork := g.ProcessQueue()
					if hadWork && idle {
						idle = false
						ticker.Reset(fastTick)
					} else if !hadWork && !idle {
						idle = true
						ticker.Reset(idleTick)
					}
				}()
			case <-heartbeat.C:
				imm, wait := g.Queue.Stats()
				if imm > 0 || wait > 0 {
					log.Printf("QUEUE: heartbeat, %d immediate, %d waiting", imm, wait)
				}
			}
		}
	}()
}
