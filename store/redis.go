package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"SquizFM/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	docKeyPrefix = "sqz:doc:" // String: 文档 JSON
	colKeyPrefix = "sqz:col:" // Sorted Set: 集合成员ID，按服务端时间戳排序
	eventChannel = "sqz:events"
	clockKey     = "sqz:clock" // 单调时钟兜底，防止 TIME 回拨
)

// RedisStore 基于 Redis 的共享文档存储实现。
// 文档以 JSON 字符串保存，集合用有序集合维护写入顺序，
// 变更事件通过 Pub/Sub 广播给所有进程内订阅者。
type RedisStore struct {
	client *redis.Client

	mu     sync.RWMutex
	nextID int64
	subs   map[int64]*subscription

	pubsub *redis.PubSub
	done   chan struct{}
}

type subscription struct {
	prefix string
	fn     func(Event)
}

// clockScript 原子发放单调递增的时间戳
var clockScript = redis.NewScript(`
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
local now = tonumber(ARGV[1])
if now <= last then
	now = last + 1
end
redis.call('SET', KEYS[1], now)
return now
`)

// NewRedisStore 创建 Redis 存储并启动事件分发循环
func NewRedisStore(client *redis.Client) *RedisStore {
	s := &RedisStore{
		client: client,
		subs:   make(map[int64]*subscription),
		done:   make(chan struct{}),
	}

	s.pubsub = client.Subscribe(context.Background(), eventChannel)
	go s.dispatchLoop()

	return s
}

// Close 停止事件分发
func (s *RedisStore) Close() error {
	close(s.done)
	return s.pubsub.Close()
}

// dispatchLoop 将 Pub/Sub 消息分发给匹配前缀的订阅者
func (s *RedisStore) dispatchLoop() {
	ch := s.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("invalid store event payload", logger.ErrorField(err))
				continue
			}
			s.dispatch(event)
		case <-s.done:
			return
		}
	}
}

func (s *RedisStore) dispatch(event Event) {
	s.mu.RLock()
	matched := make([]func(Event), 0, 4)
	for _, sub := range s.subs {
		if PathMatches(sub.prefix, event.Path) {
			matched = append(matched, sub.fn)
		}
	}
	s.mu.RUnlock()

	for _, fn := range matched {
		fn(event)
	}
}

// Now 返回服务端毫秒时间戳。优先使用 Redis 服务器时钟，
// 并用一个只增计数键保证单调性。
func (s *RedisStore) Now(ctx context.Context) (int64, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read server time: %w", err)
	}
	now := t.UnixMilli()

	// 时钟兜底：若服务器时间未超过上次发放的时间戳，则顺延。
	// 脚本在 Redis 内原子执行，并发调用不会拿到相同的时间戳。
	issued, err := clockScript.Run(ctx, s.client, []string{clockKey}, now).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to issue timestamp: %w", err)
	}
	return issued, nil
}

// Get 读取文档
func (s *RedisStore) Get(ctx context.Context, path string, out interface{}) (bool, error) {
	data, err := s.client.Get(ctx, docKeyPrefix+path).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal document %s: %w", path, err)
	}
	return true, nil
}

// Set 写入文档并登记到父集合
func (s *RedisStore) Set(ctx context.Context, path string, value interface{}) error {
	return s.write(ctx, path, value, EventSet)
}

func (s *RedisStore) write(ctx context.Context, path string, value interface{}, kind EventKind) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", path, err)
	}

	now, err := s.Now(ctx)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, docKeyPrefix+path, data, 0)
	if parent := ParentPath(path); parent != "" {
		// NX：保留首次写入的集合排序位置，覆盖写不改变顺序
		pipe.ZAddNX(ctx, colKeyPrefix+parent, &redis.Z{
			Score:  float64(now),
			Member: ChildID(path),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}

	return s.publish(ctx, Event{Kind: kind, Path: path, At: now})
}

// Update 合并部分字段
func (s *RedisStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
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
	return s.write(ctx, path, current, EventUpdate)
}

// Remove 删除文档
func (s *RedisStore) Remove(ctx context.Context, path string) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, docKeyPrefix+path)
	if parent := ParentPath(path); parent != "" {
		pipe.ZRem(ctx, colKeyPrefix+parent, ChildID(path))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove document %s: %w", path, err)
	}

	return s.publish(ctx, Event{Kind: EventRemove, Path: path, At: now})
}

// RemoveChildren 清空集合及其子文档
func (s *RedisStore) RemoveChildren(ctx context.Context, path string) error {
	ids, err := s.client.ZRange(ctx, colKeyPrefix+path, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list collection %s: %w", path, err)
	}

	now, err := s.Now(ctx)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, docKeyPrefix+path+"/"+id)
	}
	pipe.Del(ctx, colKeyPrefix+path)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear collection %s: %w", path, err)
	}

	return s.publish(ctx, Event{Kind: EventRemove, Path: path, At: now})
}

// Push 生成ID写入子文档
func (s *RedisStore) Push(ctx context.Context, path string, value interface{}) (string, error) {
	id := uuid.NewString()
	if err := s.write(ctx, path+"/"+id, value, EventPush); err != nil {
		return "", err
	}
	return id, nil
}

// Children 按写入时间升序返回集合全部子文档
func (s *RedisStore) Children(ctx context.Context, path string) ([]Doc, error) {
	return s.rangeDocs(ctx, path, 0, -1)
}

// LastN 返回集合中最新的 n 个子文档（仍按升序排列）
func (s *RedisStore) LastN(ctx context.Context, path string, n int) ([]Doc, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.rangeDocs(ctx, path, int64(-n), -1)
}

func (s *RedisStore) rangeDocs(ctx context.Context, path string, start, stop int64) ([]Doc, error) {
	members, err := s.client.ZRangeWithScores(ctx, colKeyPrefix+path, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range collection %s: %w", path, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, docKeyPrefix+path+"/"+m.Member.(string))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection docs %s: %w", path, err)
	}

	docs := make([]Doc, 0, len(members))
	for i, m := range members {
		raw, ok := values[i].(string)
		if !ok {
			// 文档已被删除但集合登记尚存，跳过
			continue
		}
		docs = append(docs, Doc{
			ID:   m.Member.(string),
			At:   int64(m.Score),
			Data: json.RawMessage(raw),
		})
	}
	return docs, nil
}

// Subscribe 订阅路径前缀下的变更事件
func (s *RedisStore) Subscribe(prefix string, fn func(Event)) UnsubscribeFunc {
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

func (s *RedisStore) publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish store event: %w", err)
	}
	return nil
}
