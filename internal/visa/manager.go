package visa

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// ResourceManager tracks the instrument resources this deployment knows
// about and opens sessions to them. Resources come from configuration; raw
// sockets have no discovery protocol to enumerate.
type ResourceManager struct {
	mu        sync.Mutex
	resources map[string]Resource
	opts      *SessionOptions
	log       *logrus.Logger
}

// NewResourceManager builds a manager over the given resource strings.
// Malformed strings are rejected up front.
func NewResourceManager(addrs []string, opts *SessionOptions, log *logrus.Logger) (*ResourceManager, error) {
	rm := &ResourceManager{
		resources: make(map[string]Resource, len(addrs)),
		opts:      opts,
		log:       log,
	}
	for _, a := range addrs {
		r, err := ParseResource(a)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", a, err)
		}
		rm.resources[r.String()] = r
	}
	return rm, nil
}

// Register adds a resource to the manager.
func (rm *ResourceManager) Register(addr string) error {
	r, err := ParseResource(addr)
	if err != nil {
		return err
	}
	rm.mu.Lock()
	rm.resources[r.String()] = r
	rm.mu.Unlock()
	return nil
}

// ListResources returns the known resource strings, sorted.
func (rm *ResourceManager) ListResources() []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]string, 0, len(rm.resources))
	for k := range rm.resources {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// OpenResource opens a session to the named resource. The resource does not
// have to be registered beforehand.
func (rm *ResourceManager) OpenResource(ctx context.Context, addr string) (*Session, error) {
	r, err := ParseResource(addr)
	if err != nil {
		return nil, err
	}
	rm.mu.Lock()
	rm.resources[r.String()] = r
	rm.mu.Unlock()
	return Dial(ctx, r, rm.opts, rm.log)
}

// Open opens a session when exactly one resource is known. With zero or
// several candidates the caller has to choose explicitly.
func (rm *ResourceManager) Open(ctx context.Context) (*Session, error) {
	rm.mu.Lock()
	var only *Resource
	n := len(rm.resources)
	for _, r := range rm.resources {
		r := r
		only = &r
	}
	rm.mu.Unlock()

	switch n {
	case 0:
		return nil, fmt.Errorf("no resources configured")
	case 1:
		return Dial(ctx, *only, rm.opts, rm.log)
	default:
		return nil, fmt.Errorf("%d resources configured, select one of: %v", n, rm.ListResources())
	}
}
