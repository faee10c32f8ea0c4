package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 内存实现，用于测试和单机开发。
// NowFunc 可注入假时钟，时间戳保证单调递增。
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string]json.RawMessage
	order   map[string]int64 // path -> 首次写入时间戳
	lastAt  int64
	nextID  int64
	subs    map[int64]*subscription
	NowFunc func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]json.RawMessage),
		order:   make(map[string]int64),
		subs:    make(map[int64]*subscription),
		NowFunc: time.Now,
	}
}

func (s *MemoryStore) now() int64 {
	now := s.NowFunc().UnixMilli()
	if now <= s.lastAt {
		now = s.lastAt + 1
	}
	s.lastAt = now
	return now
}

// Now 返回存储时钟的毫秒时间戳
func (s *MemoryStore) Now(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now(), nil
}

// Get 读取文档
func (s *MemoryStore) Get(ctx context.Context, path string, out interface{}) (bool, error) {
	s.mu.Lock()
	data, ok := s.docs[path]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal document %s: %w", path, err)
	}
	return true, nil
}

// Set 写入文档
func (s *MemoryStore) Set(ctx context.Context, path string, value interface{}) error {
	return s.write(path, value, EventSet)
}

func (s *MemoryStore) write(path string, value interface{}, kind EventKind) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", path, err)
	}

	s.mu.Lock()
	now := s.now()
	s.docs[path] = data
	if _, seen := s.order[path]; !seen {
		s.order[path] = now
	}
	s.mu.Unlock()

	s.dispatch(Event{Kind: kind, Path: path, At: now})
	return nil
}

// Update 合并部分字段
func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	var current map[string]interface{}
	found, err := s.Get(ctx, path, &current)
	if err != nil {
		return err
	}
	if !found {
		current = make(map[string]interface{})
	}
	for k, v := range fields {
		if v == nil {
			delete(current, k)
		} else {
			current[k] = v
		}
	}
	return s.write(path, current, EventUpdate)
}

// Remove 删除文档
func (s *MemoryStore) Remove(ctx context.Context, path string) error {
	s.mu.Lock()
	now := s.now()
	delete(s.docs, path)
	delete(s.order, path)
	s.mu.Unlock()

	s.dispatch(Event{Kind: EventRemove, Path: path, At: now})
	return nil
}

// RemoveChildren 清空集合下所有子文档
func (s *MemoryStore) RemoveChildren(ctx context.Context, path string) error {
	prefix := path + "/"
	s.mu.Lock()
	now := s.now()
	for p := range s.docs {
		if len(p) > len(prefix) && p[:len(prefix)] == prefix {
			delete(s.docs, p)
			delete(s.order, p)
		}
	}
	s.mu.Unlock()

	s.dispatch(Event{Kind: EventRemove, Path: path, At: now})
	return nil
}

// Push 生成ID写入子文档
func (s *MemoryStore) Push(ctx context.Context, path string, value interface{}) (string, error) {
	id := uuid.NewString()
	if err := s.write(path+"/"+id, value, EventPush); err != nil {
		return "", err
	}
	return id, nil
}

// Children 按写入顺序返回集合子文档
func (s *MemoryStore) Children(ctx context.Context, path string) ([]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.childrenLocked(path), nil
}

// LastN 返回集合中最新的 n 个子文档
func (s *MemoryStore) LastN(ctx context.Context, path string, n int) ([]Doc, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.childrenLocked(path)
	if len(docs) > n {
		docs = docs[len(docs)-n:]
	}
	return docs, nil
}

func (s *MemoryStore) childrenLocked(path string) []Doc {
	prefix := path + "/"
	var docs []Doc
	for p, data := range s.docs {
		if len(p) <= len(prefix) || p[:len(prefix)] != prefix {
			continue
		}
		child := p[len(prefix):]
		// 只收集直接子文档
		if ParentPath(p) != path {
			continue
		}
		docs = append(docs, Doc{ID: child, At: s.order[p], Data: data})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].At < docs[j].At })
	return docs
}

// Subscribe 订阅路径前缀下的变更事件
func (s *MemoryStore) Subscribe(prefix string, fn func(Event)) UnsubscribeFunc {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = &subscription{prefix: prefix, fn: fn}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *MemoryStore) dispatch(event Event) {
	s.mu.Lock()
	matched := make([]func(Event), 0, 4)
	for _, sub := range s.subs {
		if PathMatches(sub.prefix, event.Path) {
			matched = append(matched, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range matched {
		fn(event)
	}
}
