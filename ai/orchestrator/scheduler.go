package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// scheduler executes sub-tasks in dependency order using a readiness
// queue: a sub-task becomes runnable once every sub-task it depends on
// has completed. Runnable sub-tasks execute concurrently under a
// semaphore. A failed or skipped sub-task cascades a skip to everything
// downstream of it.
type scheduler struct {
	tasks    map[string]*SubTask
	graph    map[string][]string // upstream -> downstreams
	inDegree map[string]int
	ready    chan string

	maxParallel int
	run         func(context.Context, *SubTask)

	mu     sync.Mutex
	active int
}

func newScheduler(tasks []*SubTask, maxParallel int, run func(context.Context, *SubTask)) (*scheduler, error) {
	s := &scheduler{
		tasks:       make(map[string]*SubTask, len(tasks)),
		graph:       make(map[string][]string),
		inDegree:    make(map[string]int, len(tasks)),
		ready:       make(chan string, len(tasks)),
		maxParallel: maxParallel,
		run:         run,
	}

	for _, t := range tasks {
		s.tasks[t.ID] = t
		s.inDegree[t.ID] = 0
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := s.tasks[dep]; !ok {
				return nil, errors.Errorf("sub-task %s depends on unknown sub-task %s", t.ID, dep)
			}
			s.graph[dep] = append(s.graph[dep], t.ID)
			s.inDegree[t.ID]++
		}
	}

	for _, t := range tasks {
		if s.inDegree[t.ID] == 0 {
			s.ready <- t.ID
		}
	}
	return s, nil
}

// Run drives the scheduling loop until every sub-task reaches a
// terminal state. A parent deadline does not fail the run: remaining
// sub-tasks are marked failed so synthesis can still produce a partial
// reply.
func (s *scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(s.maxParallel))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.failRemaining("turn deadline exceeded")
			return nil

		case id := <-s.ready:
			s.mu.Lock()
			s.active++
			s.mu.Unlock()

			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					s.tasks[id].Fail("turn deadline exceeded")
					s.settle(id)
					s.mu.Lock()
					s.active--
					s.mu.Unlock()
					return
				}
				defer sem.Release(1)

				defer func() {
					if r := recover(); r != nil {
						slog.Error("scheduler: panic in sub-task",
							"sub_task", id,
							"panic", r)
						s.tasks[id].Fail(fmt.Sprintf("panic: %v", r))
					}
					// Settle before releasing the worker slot so the
					// deadlock check never sees a finished task with
					// unscheduled downstreams.
					s.settle(id)
					s.mu.Lock()
					s.active--
					s.mu.Unlock()
				}()

				s.run(ctx, s.tasks[id])
			}(id)

		default:
			s.mu.Lock()
			active := s.active
			s.mu.Unlock()

			if s.terminalCount() == len(s.tasks) {
				wg.Wait()
				return nil
			}
			if active == 0 && len(s.ready) == 0 {
				wg.Wait()
				return errors.New("sub-task dependency cycle detected")
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// settle unblocks downstream sub-tasks after success, or cascades a
// skip after failure.
func (s *scheduler) settle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.tasks[id]
	if !task.Status().IsTerminal() {
		// The run callback did not record an outcome.
		task.Fail("sub-task finished without a result")
	}

	if task.Status() == SubTaskCompleted {
		for _, down := range s.graph[id] {
			s.inDegree[down]--
			if s.inDegree[down] == 0 {
				s.ready <- down
			}
		}
		return
	}
	s.cascadeSkip(id)
}

// cascadeSkip marks every pending sub-task reachable from the failed
// one as skipped. Caller holds s.mu.
func (s *scheduler) cascadeSkip(failedID string) {
	queue := []string{failedID}
	visited := make(map[string]bool)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		if visited[curr] {
			continue
		}
		visited[curr] = true

		for _, down := range s.graph[curr] {
			if s.tasks[down].Status() == SubTaskPending {
				s.tasks[down].Skip("upstream sub-task " + curr + " did not complete")
				queue = append(queue, down)
			}
		}
	}
}

func (s *scheduler) terminalCount() int {
	n := 0
	for _, t := range s.tasks {
		if t.Status().IsTerminal() {
			n++
		}
	}
	return n
}

func (s *scheduler) failRemaining(reason string) {
	for _, t := range s.tasks {
		if !t.Status().IsTerminal() {
			t.Fail(reason)
		}
	}
}
