package calendar

import (
	"context"
	"fmt"
	"sync"
)

// MemoryClient 内存日历，用于本地开发与测试
// Fail* 字段非 nil 时对应操作直接返回该错误
type MemoryClient struct {
	mu         sync.Mutex
	calendarID string
	seq        int
	events     map[string]Event
	calls      map[string]int

	FailCreate error
	FailUpdate error
	FailDelete error
	FailGet    error
	FailFind   error
}

// NewMemoryClient 创建内存日历
func NewMemoryClient(calendarID string) *MemoryClient {
	return &MemoryClient{
		calendarID: calendarID,
		events:     make(map[string]Event),
		calls:      make(map[string]int),
	}
}

func (m *MemoryClient) CalendarID() string { return m.calendarID }

func (m *MemoryClient) Create(_ context.Context, ev *Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["create"]++
	if m.FailCreate != nil {
		return "", m.FailCreate
	}
	m.seq++
	stored := *ev
	stored.ID = fmt.Sprintf("evt-%d", m.seq)
	m.events[stored.ID] = stored
	return stored.ID, nil
}

func (m *MemoryClient) Update(_ context.Context, eventID string, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["update"]++
	if m.FailUpdate != nil {
		return m.FailUpdate
	}
	if _, ok := m.events[eventID]; !ok {
		return ErrNotFound
	}
	stored := *ev
	stored.ID = eventID
	m.events[eventID] = stored
	return nil
}

func (m *MemoryClient) Delete(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["delete"]++
	if m.FailDelete != nil {
		return m.FailDelete
	}
	if _, ok := m.events[eventID]; !ok {
		return ErrNotFound
	}
	delete(m.events, eventID)
	return nil
}

func (m *MemoryClient) Get(_ context.Context, eventID string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get"]++
	if m.FailGet != nil {
		return nil, m.FailGet
	}
	ev, ok := m.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return &ev, nil
}

func (m *MemoryClient) FindByUID(_ context.Context, uid string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["find"]++
	if m.FailFind != nil {
		return nil, m.FailFind
	}
	for _, ev := range m.events {
		if ev.UID == uid {
			found := ev
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

// Events 当前全部事件的快照
func (m *MemoryClient) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	return out
}

// Calls 某类操作被调用的次数（create/update/delete/get/find）
func (m *MemoryClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Remove 直接移除事件，模拟外部日历上被手动删除
func (m *MemoryClient) Remove(eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, eventID)
}
