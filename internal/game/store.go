package game

import (
	"sync"
)

// RoomStore 房间注册表
type RoomStore interface {
	Get(code string) (*Room, bool)
	Set(code string, room *Room)
	Delete(code string)
	Exists(code string) bool
	Count() int
	List() []*Room
}

// MemoryStore 内存房间注册表
type MemoryStore struct {
	rooms map[string]*Room
	mu    sync.RWMutex
}

// NewMemoryStore 创建内存注册表
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]*Room),
	}
}

// Get 根据房间码获取房间
func (s *MemoryStore) Get(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, exists := s.rooms[code]
	return room, exists
}

// Set 保存房间
func (s *MemoryStore) Set(code string, room *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[code] = room
}

// Delete 删除房间
func (s *MemoryStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

// Exists 房间码是否已存在
func (s *MemoryStore) Exists(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.rooms[code]
	return exists
}

// Count 房间数
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// List 返回所有房间
func (s *MemoryStore) List() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
