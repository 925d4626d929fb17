package state

import (
	"context"
	"fmt"
)

// Store is the raw byte-blob KV primitive a concrete backend provides.
// NewService builds the full Conversational State Service on top of any
// Store via read-modify-write, so state/redis and state/inmem only need to
// implement this narrow interface.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type service struct {
	store Store
}

// NewService builds a Service backed by store, sharing the read-modify-write
// semantics spec.md §4.6 describes: no external locking, because each task's
// state is owned by exactly one Task Workflow.
func NewService(store Store) Service {
	return &service{store: store}
}

func (s *service) GetState(ctx context.Context, taskID string) (AgentState, error) {
	raw, ok, err := s.store.Get(ctx, taskID)
	if err != nil {
		return AgentState{}, err
	}
	if !ok {
		return Empty(), nil
	}
	return Unmarshal(raw)
}

func (s *service) SetState(ctx context.Context, taskID string, st AgentState) error {
	raw, err := Marshal(st)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, taskID, raw)
}

func (s *service) DeleteState(ctx context.Context, taskID string) error {
	return s.store.Delete(ctx, taskID)
}

func (s *service) mutate(ctx context.Context, taskID string, fn func(*AgentState) error) error {
	st, err := s.GetState(ctx, taskID)
	if err != nil {
		return err
	}
	if err := fn(&st); err != nil {
		return err
	}
	return s.SetState(ctx, taskID, st)
}

func (s *service) GetAllMessages(ctx context.Context, taskID string) ([]Message, error) {
	st, err := s.GetState(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return st.Messages, nil
}

func (s *service) GetMessageByIndex(ctx context.Context, taskID string, index int) (Message, error) {
	st, err := s.GetState(ctx, taskID)
	if err != nil {
		return Message{}, err
	}
	if index < 0 || index >= len(st.Messages) {
		return Message{}, fmt.Errorf("state: message index %d out of range (len=%d)", index, len(st.Messages))
	}
	return st.Messages[index], nil
}

func (s *service) BatchGetMessagesByIndices(ctx context.Context, taskID string, indices []int) ([]Message, error) {
	st, err := s.GetState(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(st.Messages) {
			return nil, fmt.Errorf("state: message index %d out of range (len=%d)", i, len(st.Messages))
		}
		out = append(out, st.Messages[i])
	}
	return out, nil
}

func (s *service) AppendMessage(ctx context.Context, taskID string, m Message) error {
	return s.mutate(ctx, taskID, func(st *AgentState) error {
		st.Messages = append(st.Messages, m)
		return nil
	})
}

func (s *service) BatchAppendMessages(ctx context.Context, taskID string, ms []Message) error {
	return s.mutate(ctx, taskID, func(st *AgentState) error {
		st.Messages = append(st.Messages, ms...)
		return nil
	})
}

func (s *service) InsertMessage(ctx context.Context, taskID string, index int, m Message) error {
	return s.BatchInsertMessages(ctx, taskID, index, []Message{m})
}

func (s *service) BatchInsertMessages(ctx context.Context, taskID string, index int, ms []Message) error {
	return s.mutate(ctx, taskID, func(st *AgentState) error {
		if index < 0 || index > len(st.Messages) {
			return fmt.Errorf("state: insert index %d out of range (len=%d)", index, len(st.Messages))
		}
		merged := make([]Message, 0, len(st.Messages)+len(ms))
		merged = append(merged, st.Messages[:index]...)
		merged = append(merged, ms...)
		merged = append(merged, st.Messages[index:]...)
		st.Messages = merged
		return nil
	})
}

func (s *service) OverrideMessage(ctx context.Context, taskID string, index int, m Message) error {
	return s.BatchOverrideMessages(ctx, taskID, index, []Message{m})
}

func (s *service) BatchOverrideMessages(ctx context.Context, taskID string, start int, ms []Message) error {
	return s.mutate(ctx, taskID, func(st *AgentState) error {
		if start < 0 || start+len(ms) > len(st.Messages) {
			return fmt.Errorf("state: override range [%d,%d) out of range (len=%d)", start, start+len(ms), len(st.Messages))
		}
		copy(st.Messages[start:start+len(ms)], ms)
		return nil
	})
}

func (s *service) DeleteAllMessages(ctx context.Context, taskID string) error {
	return s.mutate(ctx, taskID, func(st *AgentState) error {
		st.Messages = []Message{}
		return nil
	})
}

func (s *service) GetAllContext(ctx context.Context, taskID string) (map[string]any, error) {
	st, err := s.GetState(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return st.Context, nil
}

func (s *service) GetContextValue(ctx context.Context, taskID, key string) (any, bool, error) {
	st, err := s.GetState(ctx, taskID)
	if err != nil {
		return nil, false, err
	}
	v, ok := st.Context[key]
	return v, ok, nil
}

func (s *service) BatchGetContextValues(ctx context.Context, taskID string, keys []string) (map[string]any, error) {
	st, err := s.GetState(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := st.Context[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *service) SetContextValue(ctx context.Context, taskID, key string, value any) error {
	return s.mutate(ctx, taskID, func(st *AgentState) error {
		st.Context[key] = value
		return nil
	})
}

func (s *service) BatchSetContextValues(ctx context.Context, taskID string, values map[string]any) error {
	return s.mutate(ctx, taskID, func(st *AgentState) error {
		for k, v := range values {
			st.Context[k] = v
		}
		return nil
	})
}

func (s *service) DeleteContextValue(ctx context.Context, taskID, key string) error {
	return s.mutate(ctx, taskID, func(st *AgentState) error {
		delete(st.Context, key)
		return nil
	})
}

func (s *service) BatchDeleteContextValues(ctx context.Context, taskID string, keys []string) error {
	return s.mutate(ctx, taskID, func(st *AgentState) error {
		for _, k := range keys {
			delete(st.Context, k)
		}
		return nil
	})
}

func (s *service) DeleteAllContext(ctx context.Context, taskID string) error {
	return s.mutate(ctx, taskID, func(st *AgentState) error {
		st.Context = map[string]any{}
		return nil
	})
}
