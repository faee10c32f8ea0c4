// Package store 提供一个可观察的文档存储抽象：按路径寻址的 JSON 文档、
// 服务端分配的单调毫秒时间戳、以及路径前缀订阅的变更通知。
// 它是各客户端之间唯一的协调媒介。
package store

import (
	"context"
	"encoding/json"
	"strings"
)

// EventKind 变更事件类型
type EventKind string

const (
	EventSet    EventKind = "set"
	EventUpdate EventKind = "update"
	EventRemove EventKind = "remove"
	EventPush   EventKind = "push"
)

// Event 一次文档变更的通知
type Event struct {
	Kind EventKind `json:"kind"`
	Path string    `json:"path"`
	At   int64     `json:"at"` // 服务端毫秒时间戳
}

// Doc 集合查询返回的子文档
type Doc struct {
	ID   string          `json:"id"`
	At   int64           `json:"at"` // 写入时的服务端时间戳（集合内排序依据）
	Data json.RawMessage `json:"data"`
}

// Unmarshal 解码文档内容
func (d Doc) Unmarshal(out interface{}) error {
	return json.Unmarshal(d.Data, out)
}

// UnsubscribeFunc 取消订阅
type UnsubscribeFunc func()

// Store 共享文档存储。路径形如 "games/1234" 或
// "games-rounds/1234/r1"，最后一段为文档ID，其余为所属集合。
type Store interface {
	// Get 读取文档，不存在时返回 (false, nil)
	Get(ctx context.Context, path string, out interface{}) (bool, error)
	// Set 写入（覆盖）文档，并将其登记到父集合
	Set(ctx context.Context, path string, value interface{}) error
	// Update 合并部分字段到已有文档
	Update(ctx context.Context, path string, fields map[string]interface{}) error
	// Remove 删除文档及其父集合登记
	Remove(ctx context.Context, path string) error
	// RemoveChildren 清空一个集合及其全部子文档
	RemoveChildren(ctx context.Context, path string) error
	// Push 以生成的ID写入子文档，返回该ID
	Push(ctx context.Context, path string, value interface{}) (string, error)
	// Children 按写入时间升序返回集合的全部子文档
	Children(ctx context.Context, path string) ([]Doc, error)
	// LastN 按写入时间返回集合中最新的 n 个子文档（升序排列）
	LastN(ctx context.Context, path string, n int) ([]Doc, error)
	// Now 返回服务端当前毫秒时间戳，存储保证其单调递增
	Now(ctx context.Context) (int64, error)
	// Subscribe 订阅路径前缀下的变更事件
	Subscribe(prefix string, fn func(Event)) UnsubscribeFunc
}

// ParentPath 返回路径所属集合，根集合文档返回集合名本身
func ParentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// ChildID 返回路径的最后一段，即文档ID
func ChildID(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// PathMatches 判断事件路径是否落在订阅前缀之下
func PathMatches(prefix, path string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
