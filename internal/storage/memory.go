package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data         []byte
	lastModified time.Time
	storageClass StorageClass
	metadata     map[string]string
}

// MemoryStore is an in-memory ObjectStore for tests and local runs.
type MemoryStore struct {
	name    string
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:    name,
		objects: make(map[string]memoryObject),
	}
}

func (s *MemoryStore) Name() string {
	return s.name
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return data, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	class := opts.StorageClass
	if class == "" {
		class = ClassStandard
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[key] = memoryObject{
		data:         stored,
		lastModified: time.Now().UTC(),
		storageClass: class,
		metadata:     opts.Metadata,
	}
	return nil
}

func (s *MemoryStore) Copy(ctx context.Context, srcKey string, dst ObjectStore, dstKey string, opts CopyOptions) error {
	data, err := s.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	return dst.Put(ctx, dstKey, data, PutOptions{
		StorageClass: opts.StorageClass,
		Metadata:     opts.Metadata,
	})
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string, fn func(ObjectInfo) error) error {
	s.mu.RLock()
	infos := make([]ObjectInfo, 0, len(s.objects))
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
			StorageClass: obj.storageClass,
		})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	for _, info := range infos {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

// SetLastModified backdates an object, used by tests and tooling to exercise
// retention boundaries.
func (s *MemoryStore) SetLastModified(key string, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return false
	}
	obj.lastModified = t
	s.objects[key] = obj
	return true
}

// Metadata returns the stored user metadata for key, for assertions in tests.
func (s *MemoryStore) Metadata(key string) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return obj.metadata, true
}

var _ ObjectStore = (*MemoryStore)(nil)
