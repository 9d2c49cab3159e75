package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/five82/shelf/internal/config"
	toml "github.com/pelletier/go-toml/v2"
	goredis "github.com/redis/go-redis/v9"
)

// Slot names used for durable storage.
const (
	SlotToken = "token"
	SlotUser  = "user"
)

// ErrSlotEmpty indicates that nothing is stored under the requested slot.
var ErrSlotEmpty = errors.New("slot empty")

// Storage persists opaque slot values.
type Storage interface {
	Load(ctx context.Context, slot string) ([]byte, error)
	Save(ctx context.Context, slot string, data []byte) error
	Clear(ctx context.Context, slot string) error
}

// MemoryStorage keeps slots in process memory.
type MemoryStorage struct {
	mu    sync.Mutex
	slots map[string][]byte
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{slots: make(map[string][]byte)}
}

func (m *MemoryStorage) Load(_ context.Context, slot string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.slots[slot]
	if !ok {
		return nil, ErrSlotEmpty
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Save(_ context.Context, slot string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots == nil {
		m.slots = make(map[string][]byte)
	}
	m.slots[slot] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slot)
	return nil
}

const defaultSessionPath = "~/.config/shelf/session.toml"

// FileStorage keeps every slot in one TOML file readable only by the owner.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage returns storage backed by path, or the default
// ~/.config/shelf/session.toml when path is empty.
func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		path = defaultSessionPath
	}
	resolved, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve session path: %w", err)
	}
	return &FileStorage{path: resolved}, nil
}

// Path returns the resolved file path.
func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) read() (map[string]string, error) {
	slots := map[string]string{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return slots, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if err := toml.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return slots, nil
}

func (f *FileStorage) write(slots map[string]string) error {
	if len(slots) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session file: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := toml.Marshal(slots)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (f *FileStorage) Load(_ context.Context, slot string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slots, err := f.read()
	if err != nil {
		return nil, err
	}
	v, ok := slots[slot]
	if !ok {
		return nil, ErrSlotEmpty
	}
	return []byte(v), nil
}

func (f *FileStorage) Save(_ context.Context, slot string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slots, err := f.read()
	if err != nil {
		// A corrupt file is replaced rather than blocking sign-in.
		slots = map[string]string{}
	}
	slots[slot] = string(data)
	return f.write(slots)
}

func (f *FileStorage) Clear(_ context.Context, slot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slots, err := f.read()
	if err != nil {
		return f.write(nil)
	}
	delete(slots, slot)
	return f.write(slots)
}

// RedisStorage keeps each slot under "<prefix>:<slot>".
type RedisStorage struct {
	rc     *goredis.Client
	prefix string
}

// NewRedisStorage returns storage using rc. An empty prefix defaults to
// "shelf:session".
func NewRedisStorage(rc *goredis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "shelf:session"
	}
	return &RedisStorage{rc: rc, prefix: prefix}
}

func (r *RedisStorage) slotKey(slot string) string {
	return fmt.Sprintf("%s:%s", r.prefix, slot)
}

func (r *RedisStorage) Load(ctx context.Context, slot string) ([]byte, error) {
	val, err := r.rc.Get(ctx, r.slotKey(slot)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("load %s from redis: %w", slot, err)
	}
	return val, nil
}

func (r *RedisStorage) Save(ctx context.Context, slot string, data []byte) error {
	if err := r.rc.Set(ctx, r.slotKey(slot), data, 0).Err(); err != nil {
		return fmt.Errorf("save %s to redis: %w", slot, err)
	}
	return nil
}

func (r *RedisStorage) Clear(ctx context.Context, slot string) error {
	if err := r.rc.Del(ctx, r.slotKey(slot)).Err(); err != nil {
		return fmt.Errorf("clear %s in redis: %w", slot, err)
	}
	return nil
}
