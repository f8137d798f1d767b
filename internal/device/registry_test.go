package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// MockRepository is an in-memory Repository for registry tests.
type MockRepository struct {
	mu        sync.Mutex
	devices   map[string]*Device
	listCalls int
	getCalls  int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Device)}
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *MockRepository) GetBySlug(ctx context.Context, slug string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.Slug == slug {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(ctx context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *MockRepository) ListByBeamline(ctx context.Context, beamline string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Device
	for _, d := range m.devices {
		if d.Beamline == beamline {
			out = append(out, *d.DeepCopy())
		}
	}
	return out, nil
}

func (m *MockRepository) ListByClass(ctx context.Context, class Class) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Device
	for _, d := range m.devices {
		if d.Class == class {
			out = append(out, *d.DeepCopy())
		}
	}
	return out, nil
}

func (m *MockRepository) Create(ctx context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.devices[d.ID]; exists {
		return ErrDeviceExists
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Update(ctx context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.devices[d.ID]; !exists {
		return ErrDeviceNotFound
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.devices[id]; !exists {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func TestRegistryRefreshAndGet(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()

	d := validTestDevice()
	repo.Create(ctx, d)

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}

	before := repo.getCalls
	got, err := reg.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("wrong device: %s", got.ID)
	}
	if repo.getCalls != before {
		t.Error("cached lookup should not hit the repository")
	}
}

func TestRegistryGetFallsBackToRepo(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()
	reg := NewRegistry(repo)

	d := validTestDevice()
	repo.Create(ctx, d)

	// Not cached yet: falls through and then caches.
	if _, err := reg.GetDevice(ctx, d.ID); err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	before := repo.getCalls
	if _, err := reg.GetDevice(ctx, d.ID); err != nil {
		t.Fatalf("second GetDevice failed: %v", err)
	}
	if repo.getCalls != before {
		t.Error("second lookup should come from cache")
	}

	if _, err := reg.GetDevice(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestRegistryCacheIsolation(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()
	reg := NewRegistry(repo)

	d := validTestDevice()
	d.Metadata = Metadata{"z": 1.0}
	if err := reg.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}

	got, _ := reg.GetDevice(ctx, d.ID)
	got.Metadata["z"] = 99.0

	again, _ := reg.GetDevice(ctx, d.ID)
	if again.Metadata["z"] != 1.0 {
		t.Error("mutating a returned device leaked into the cache")
	}
}

func TestRegistryCreateGeneratesIdentity(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()
	reg := NewRegistry(repo)

	d := validTestDevice()
	d.ID = ""
	d.Slug = ""
	if err := reg.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}
	if d.ID == "" {
		t.Error("expected generated ID")
	}
	if d.Slug != "sb2-gate-valve-01" {
		t.Errorf("expected generated slug, got %q", d.Slug)
	}
}

func TestRegistryCreateRejectsInvalid(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)

	d := validTestDevice()
	d.Prefix = ""
	if err := reg.CreateDevice(context.Background(), d); !errors.Is(err, ErrInvalidPrefix) {
		t.Errorf("expected ErrInvalidPrefix, got %v", err)
	}
}

func TestRegistryFilters(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()
	reg := NewRegistry(repo)

	valve := validTestDevice()
	stopper := &Device{
		ID: GenerateID(), Name: "SB2 Stopper", Slug: "sb2-stopper",
		Prefix: "XCS:SB2:STP:01", Class: ClassStopper, Beamline: "XCS",
		StateTable: "in_out",
	}
	mec := &Device{
		ID: GenerateID(), Name: "MEC Valve", Slug: "mec-valve",
		Prefix: "MEC:HXM:VGC:01", Class: ClassGateValve, Beamline: "MEC",
		StateTable: "open_closed",
	}
	for _, d := range []*Device{valve, stopper, mec} {
		if err := reg.CreateDevice(ctx, d); err != nil {
			t.Fatalf("CreateDevice %s failed: %v", d.Slug, err)
		}
	}

	xcs, err := reg.GetDevicesByBeamline(ctx, "XCS")
	if err != nil {
		t.Fatalf("GetDevicesByBeamline failed: %v", err)
	}
	if len(xcs) != 2 {
		t.Errorf("expected 2 XCS devices, got %d", len(xcs))
	}

	valves, err := reg.GetDevicesByClass(ctx, ClassGateValve)
	if err != nil {
		t.Fatalf("GetDevicesByClass failed: %v", err)
	}
	if len(valves) != 2 {
		t.Errorf("expected 2 valves, got %d", len(valves))
	}

	bySlug, err := reg.GetDeviceBySlug(ctx, "sb2-stopper")
	if err != nil {
		t.Fatalf("GetDeviceBySlug failed: %v", err)
	}
	if bySlug.ID != stopper.ID {
		t.Errorf("wrong device by slug: %s", bySlug.ID)
	}
}

func TestRegistryDeleteEvicts(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()
	reg := NewRegistry(repo)

	d := validTestDevice()
	if err := reg.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}
	if err := reg.DeleteDevice(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDevice failed: %v", err)
	}
	if _, err := reg.GetDevice(ctx, d.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound after delete, got %v", err)
	}
}
