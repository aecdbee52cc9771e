package canvas

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type job struct {
	op  string
	run func(ctx context.Context) error
}

// writer is the queue of pending writes for one node. Its goroutine exits
// as soon as the queue is empty.
type writer struct {
	queue []job
}

// enqueueLocked queues a write for nodeID, starting the node's writer if
// it is not running.
func (s *Session) enqueueLocked(nodeID, op string, run func(ctx context.Context) error) error {
	if s.closed {
		return ErrClosed
	}
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++

	j := job{op: op, run: run}
	if w, ok := s.writers[nodeID]; ok {
		w.queue = append(w.queue, j)
		return nil
	}
	w := &writer{queue: []job{j}}
	s.writers[nodeID] = w
	s.wg.Add(1)
	go s.drain(nodeID, w)
	return nil
}

func (s *Session) drain(nodeID string, w *writer) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(w.queue) == 0 {
			delete(s.writers, nodeID)
			s.mu.Unlock()
			return
		}
		j := w.queue[0]
		w.queue = w.queue[1:]
		s.mu.Unlock()

		s.execute(nodeID, j)

		s.mu.Lock()
		s.inflight--
		if s.inflight == 0 {
			close(s.idle)
		}
		s.mu.Unlock()
	}
}

func (s *Session) execute(nodeID string, j job) {
	if s.ctx.Err() != nil {
		s.logger.Warn("Dropping queued write on close",
			zap.String("op", j.op),
			zap.String("node_id", nodeID),
		)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := j.run(ctx); err != nil {
		s.logger.Error("Failed to persist node change",
			zap.String("op", j.op),
			zap.String("node_id", nodeID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		if s.onError != nil {
			s.onError(j.op, nodeID, err)
		}
		return
	}
	s.logger.Debug("Persisted node change",
		zap.String("op", j.op),
		zap.String("node_id", nodeID),
		zap.Duration("duration", time.Since(start)),
	)
}
