package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store backing end-to-end scenario tests
// (SPEC_FULL domain stack), mirroring SQLStore's transactional semantics
// with a plain mutex instead of database transactions. It is not meant for
// production use: nothing here survives a process restart.
type MemoryStore struct {
	mu      sync.Mutex
	tasks   map[string]TaskCheckpoint
	subs    map[string]PeerSubTask
	aggs    map[string]ParallelInvocation // keyed by taskID+"/"+invocationID
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]TaskCheckpoint),
		subs:  make(map[string]PeerSubTask),
		aggs:  make(map[string]ParallelInvocation),
	}
}

func aggKey(taskID, invocationID string) string {
	return taskID + "/" + invocationID
}

func (s *MemoryStore) Checkpoint(ctx context.Context, task TaskCheckpoint, subTasks []PeerSubTask, aggregators []ParallelInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.TaskID] = task

	for id, st := range s.subs {
		if st.LogicalTaskID == task.TaskID {
			delete(s.subs, id)
		}
	}
	for _, st := range subTasks {
		s.subs[st.SubTaskID] = st
	}

	for _, agg := range aggregators {
		s.aggs[aggKey(agg.TaskID, agg.InvocationID)] = agg
	}
	return nil
}

func (s *MemoryStore) Restore(ctx context.Context, taskID string) (TaskCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc, ok := s.tasks[taskID]
	if !ok {
		return TaskCheckpoint{}, ErrNotFound
	}
	return tc, nil
}

// ClaimPeerSubTask is the destructive claim: the delete happens under the
// same lock as the read, so two concurrent callers for the same sub_task_id
// can never both observe success (spec §8 property 1).
func (s *MemoryStore) ClaimPeerSubTask(ctx context.Context, subTaskID string) (PeerSubTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.subs[subTaskID]
	if !ok {
		return PeerSubTask{}, ErrNotFound
	}
	delete(s.subs, subTaskID)
	return st, nil
}

func (s *MemoryStore) RecordParallelResult(ctx context.Context, taskID, invocationID string, result []byte) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := aggKey(taskID, invocationID)
	agg, ok := s.aggs[key]
	if !ok {
		return 0, 0, ErrNotFound
	}
	agg.Results = append(agg.Results, append([]byte(nil), result...))
	agg.Completed++
	s.aggs[key] = agg
	return agg.Completed, agg.Total, nil
}

func (s *MemoryStore) GetParallelInvocation(ctx context.Context, taskID, invocationID string) (ParallelInvocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.aggs[aggKey(taskID, invocationID)]
	if !ok {
		return ParallelInvocation{}, ErrNotFound
	}
	return agg, nil
}

func (s *MemoryStore) ResetTimeoutDeadline(ctx context.Context, subTaskID string, newDeadlineEpochMS int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.subs[subTaskID]
	if !ok {
		return false, nil
	}
	st.DeadlineEpochMS = newDeadlineEpochMS
	s.subs[subTaskID] = st
	return true, nil
}

func (s *MemoryStore) SweepExpiredTimeouts(ctx context.Context, agentName string, nowEpochMS int64) ([]PeerSubTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []PeerSubTask
	for id, st := range s.subs {
		if st.AgentName == agentName && st.DeadlineEpochMS <= nowEpochMS {
			expired = append(expired, st)
			delete(s.subs, id)
		}
	}
	return expired, nil
}

func (s *MemoryStore) CleanupTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, taskID)
	for id, st := range s.subs {
		if st.LogicalTaskID == taskID {
			delete(s.subs, id)
		}
	}
	for key, agg := range s.aggs {
		if agg.TaskID == taskID {
			delete(s.aggs, key)
		}
	}
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context, agentName string) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{AgentName: agentName}
	for _, tc := range s.tasks {
		if tc.AgentName == agentName {
			stats.PausedTasks++
		}
	}
	for _, st := range s.subs {
		if st.AgentName == agentName {
			stats.OutstandingSubTasks++
		}
	}
	for _, agg := range s.aggs {
		task, ok := s.tasks[agg.TaskID]
		if ok && task.AgentName == agentName && agg.Completed < agg.Total {
			stats.PendingAggregators++
		}
	}
	return stats, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
