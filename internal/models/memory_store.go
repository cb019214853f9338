package models

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
)

var _ Store = (*InMemorySalesStore)(nil)

// InMemorySalesStore implements Store with mutex-guarded maps. It backs unit
// tests and the seed tooling; the semantics mirror the Postgres store,
// including ErrDuplicate on uniqueness violations.
type InMemorySalesStore struct {
	mu          sync.RWMutex
	tenants     map[string]*Tenant
	principals  map[string]map[string]*Principal
	products    map[string]map[string]*Product
	profiles    map[string]map[string]*InventoryProfile
	mediaBuys   map[string]map[string]*MediaBuy
	creatives   map[string]map[string]*Creative
	assignments map[string]map[string]*CreativeAssignment
	formats     []adcp.Format
	contexts    map[string]map[string]*Context
	tasks       map[string]map[string]*Task
	steps       map[string]map[string]*WorkflowStep
	pushConfigs map[string]map[string]*PushNotificationConfig
}

// NewInMemorySalesStore creates an empty store.
func NewInMemorySalesStore() *InMemorySalesStore {
	return &InMemorySalesStore{
		tenants:     make(map[string]*Tenant),
		principals:  make(map[string]map[string]*Principal),
		products:    make(map[string]map[string]*Product),
		profiles:    make(map[string]map[string]*InventoryProfile),
		mediaBuys:   make(map[string]map[string]*MediaBuy),
		creatives:   make(map[string]map[string]*Creative),
		assignments: make(map[string]map[string]*CreativeAssignment),
		contexts:    make(map[string]map[string]*Context),
		tasks:       make(map[string]map[string]*Task),
		steps:       make(map[string]map[string]*WorkflowStep),
		pushConfigs: make(map[string]map[string]*PushNotificationConfig),
	}
}

func sub[T any](m map[string]map[string]*T, tenantID string) map[string]*T {
	s, ok := m[tenantID]
	if !ok {
		s = make(map[string]*T)
		m[tenantID] = s
	}
	return s
}

// --- Tenants ---

func (s *InMemorySalesStore) GetTenant(_ context.Context, tenantID string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemorySalesStore) GetTenantBySubdomain(_ context.Context, subdomain string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.Subdomain == subdomain {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemorySalesStore) GetTenantByVirtualHost(_ context.Context, host string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.VirtualHost != "" && t.VirtualHost == host {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemorySalesStore) ListTenants(_ context.Context) ([]Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (s *InMemorySalesStore) InsertTenant(_ context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.TenantID]; ok {
		return ErrDuplicate
	}
	for _, other := range s.tenants {
		if other.Subdomain == t.Subdomain {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	cp := *t
	s.tenants[t.TenantID] = &cp
	return nil
}

func (s *InMemorySalesStore) UpdateTenant(_ context.Context, t Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.TenantID]; !ok {
		return ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	s.tenants[t.TenantID] = &t
	return nil
}

func (s *InMemorySalesStore) DeleteTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenantID]; !ok {
		return ErrNotFound
	}
	delete(s.tenants, tenantID)
	return nil
}

// --- Principals ---

func (s *InMemorySalesStore) GetPrincipal(_ context.Context, tenantID, principalID string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[tenantID][principalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemorySalesStore) GetPrincipalByToken(_ context.Context, tenantID, token string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.principals[tenantID] {
		if p.AccessToken == token {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemorySalesStore) FindPrincipalByToken(_ context.Context, token string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, byID := range s.principals {
		for _, p := range byID {
			if p.AccessToken == token {
				cp := *p
				return &cp, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (s *InMemorySalesStore) ListPrincipals(_ context.Context, tenantID string) ([]Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Principal, 0, len(s.principals[tenantID]))
	for _, p := range s.principals[tenantID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrincipalID < out[j].PrincipalID })
	return out, nil
}

func (s *InMemorySalesStore) InsertPrincipal(_ context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := sub(s.principals, p.TenantID)
	if _, ok := byID[p.PrincipalID]; ok {
		return ErrDuplicate
	}
	for _, tenant := range s.principals {
		for _, other := range tenant {
			if other.AccessToken == p.AccessToken {
				return ErrDuplicate
			}
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	byID[p.PrincipalID] = &cp
	return nil
}

func (s *InMemorySalesStore) UpdatePrincipal(_ context.Context, p Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.principals[p.TenantID]
	if _, ok := byID[p.PrincipalID]; !ok {
		return ErrNotFound
	}
	byID[p.PrincipalID] = &p
	return nil
}

func (s *InMemorySalesStore) DeletePrincipal(_ context.Context, tenantID, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.principals[tenantID]
	if _, ok := byID[principalID]; !ok {
		return ErrNotFound
	}
	delete(byID, principalID)
	return nil
}

// --- Products ---

func (s *InMemorySalesStore) GetProduct(_ context.Context, tenantID, productID string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[tenantID][productID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemorySalesStore) ListProducts(_ context.Context, tenantID string) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products[tenantID]))
	for _, p := range s.products[tenantID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (s *InMemorySalesStore) InsertProduct(_ context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := sub(s.products, p.TenantID)
	if _, ok := byID[p.ProductID]; ok {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	byID[p.ProductID] = &cp
	return nil
}

func (s *InMemorySalesStore) UpdateProduct(_ context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.products[p.TenantID]
	if _, ok := byID[p.ProductID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	byID[p.ProductID] = &p
	return nil
}

func (s *InMemorySalesStore) DeleteProduct(_ context.Context, tenantID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.products[tenantID]
	if _, ok := byID[productID]; !ok {
		return ErrNotFound
	}
	delete(byID, productID)
	return nil
}

// --- Inventory profiles ---

func (s *InMemorySalesStore) GetInventoryProfile(_ context.Context, tenantID, profileID string) (*InventoryProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[tenantID][profileID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemorySalesStore) ListInventoryProfiles(_ context.Context, tenantID string) ([]InventoryProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InventoryProfile, 0, len(s.profiles[tenantID]))
	for _, p := range s.profiles[tenantID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProfileID < out[j].ProfileID })
	return out, nil
}

func (s *InMemorySalesStore) InsertInventoryProfile(_ context.Context, p *InventoryProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := sub(s.profiles, p.TenantID)
	if _, ok := byID[p.ProfileID]; ok {
		return ErrDuplicate
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	byID[p.ProfileID] = &cp
	return nil
}

func (s *InMemorySalesStore) UpdateInventoryProfile(_ context.Context, p InventoryProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.profiles[p.TenantID]
	if _, ok := byID[p.ProfileID]; !ok {
		return ErrNotFound
	}
	byID[p.ProfileID] = &p
	return nil
}

// --- Media buys ---

func (s *InMemorySalesStore) GetMediaBuy(_ context.Context, tenantID, mediaBuyID string) (*MediaBuy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mediaBuys[tenantID][mediaBuyID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *InMemorySalesStore) GetMediaBuyByBuyerRef(_ context.Context, tenantID, principalID, buyerRef string) (*MediaBuy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.mediaBuys[tenantID] {
		if m.PrincipalID == principalID && m.BuyerRef == buyerRef {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemorySalesStore) ListMediaBuys(_ context.Context, tenantID string) ([]MediaBuy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MediaBuy, 0, len(s.mediaBuys[tenantID]))
	for _, m := range s.mediaBuys[tenantID] {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MediaBuyID < out[j].MediaBuyID })
	return out, nil
}

func (s *InMemorySalesStore) InsertMediaBuy(_ context.Context, m *MediaBuy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := sub(s.mediaBuys, m.TenantID)
	if _, ok := byID[m.MediaBuyID]; ok {
		return ErrDuplicate
	}
	for _, other := range byID {
		if other.PrincipalID == m.PrincipalID && other.BuyerRef == m.BuyerRef {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	cp := *m
	byID[m.MediaBuyID] = &cp
	return nil
}

func (s *InMemorySalesStore) UpdateMediaBuy(_ context.Context, m MediaBuy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.mediaBuys[m.TenantID]
	if _, ok := byID[m.MediaBuyID]; !ok {
		return ErrNotFound
	}
	m.UpdatedAt = time.Now().UTC()
	byID[m.MediaBuyID] = &m
	return nil
}

func (s *InMemorySalesStore) MediaBuysDueForReport(_ context.Context, now time.Time) ([]MediaBuy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []MediaBuy
	for _, byID := range s.mediaBuys {
		for _, m := range byID {
			if m.NextReportAt != nil && !m.NextReportAt.After(now) {
				out = append(out, *m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MediaBuyID < out[j].MediaBuyID })
	return out, nil
}

func (s *InMemorySalesStore) NextReportTime(_ context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var next *time.Time
	for _, byID := range s.mediaBuys {
		for _, m := range byID {
			if m.NextReportAt == nil {
				continue
			}
			if next == nil || m.NextReportAt.Before(*next) {
				t := *m.NextReportAt
				next = &t
			}
		}
	}
	return next, nil
}

func (s *InMemorySalesStore) MediaBuysByStatus(_ context.Context, statuses ...string) ([]MediaBuy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []MediaBuy
	for _, byID := range s.mediaBuys {
		for _, m := range byID {
			if want[m.Status] {
				out = append(out, *m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MediaBuyID < out[j].MediaBuyID })
	return out, nil
}

// --- Creatives ---

func (s *InMemorySalesStore) GetCreative(_ context.Context, tenantID, creativeID string) (*Creative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creatives[tenantID][creativeID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemorySalesStore) ListCreatives(_ context.Context, tenantID, principalID string) ([]Creative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Creative
	for _, c := range s.creatives[tenantID] {
		if principalID == "" || c.PrincipalID == principalID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreativeID < out[j].CreativeID })
	return out, nil
}

func (s *InMemorySalesStore) InsertCreative(_ context.Context, c *Creative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := sub(s.creatives, c.TenantID)
	if _, ok := byID[c.CreativeID]; ok {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	cp := *c
	byID[c.CreativeID] = &cp
	return nil
}

func (s *InMemorySalesStore) UpdateCreative(_ context.Context, c Creative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.creatives[c.TenantID]
	if _, ok := byID[c.CreativeID]; !ok {
		return ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	byID[c.CreativeID] = &c
	return nil
}

// --- Creative assignments ---

func assignmentKey(a *CreativeAssignment) string {
	return a.CreativeID + "\x00" + a.MediaBuyID + "\x00" + a.PackageID
}

func (s *InMemorySalesStore) AssignCreative(_ context.Context, a *CreativeAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey := sub(s.assignments, a.TenantID)
	key := assignmentKey(a)
	if existing, ok := byKey[key]; ok {
		a.AssignmentID = existing.AssignmentID
		a.CreatedAt = existing.CreatedAt
		return nil
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	byKey[key] = &cp
	return nil
}

func (s *InMemorySalesStore) UnassignCreative(_ context.Context, tenantID, creativeID, mediaBuyID, packageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey := s.assignments[tenantID]
	key := creativeID + "\x00" + mediaBuyID + "\x00" + packageID
	if _, ok := byKey[key]; !ok {
		return ErrNotFound
	}
	delete(byKey, key)
	return nil
}

func (s *InMemorySalesStore) ListAssignmentsByCreative(_ context.Context, tenantID, creativeID string) ([]CreativeAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CreativeAssignment
	for _, a := range s.assignments[tenantID] {
		if a.CreativeID == creativeID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignmentID < out[j].AssignmentID })
	return out, nil
}

func (s *InMemorySalesStore) ListAssignmentsByMediaBuy(_ context.Context, tenantID, mediaBuyID string) ([]CreativeAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CreativeAssignment
	for _, a := range s.assignments[tenantID] {
		if a.MediaBuyID == mediaBuyID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignmentID < out[j].AssignmentID })
	return out, nil
}

// --- Creative formats ---

func (s *InMemorySalesStore) ListCreativeFormats(_ context.Context) ([]adcp.Format, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]adcp.Format, len(s.formats))
	copy(out, s.formats)
	return out, nil
}

func (s *InMemorySalesStore) InsertCreativeFormat(_ context.Context, f adcp.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.formats {
		if existing.AgentURL == f.AgentURL && existing.FormatID == f.FormatID {
			return ErrDuplicate
		}
	}
	s.formats = append(s.formats, f)
	return nil
}

// --- Contexts ---

func (s *InMemorySalesStore) GetContext(_ context.Context, tenantID, contextID string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[tenantID][contextID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemorySalesStore) UpsertContext(_ context.Context, c *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := sub(s.contexts, c.TenantID)
	now := time.Now().UTC()
	if existing, ok := byID[c.ContextID]; ok {
		existing.LastActivityAt = now
		c.CreatedAt = existing.CreatedAt
		c.LastActivityAt = now
		return nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.LastActivityAt = now
	cp := *c
	byID[c.ContextID] = &cp
	return nil
}

// --- Tasks ---

func (s *InMemorySalesStore) GetTask(_ context.Context, tenantID, taskID string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[tenantID][taskID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemorySalesStore) ListTasks(_ context.Context, tenantID, principalID string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Task
	for _, t := range s.tasks[tenantID] {
		if principalID == "" || t.PrincipalID == principalID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemorySalesStore) InsertTask(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := sub(s.tasks, t.TenantID)
	if _, ok := byID[t.TaskID]; ok {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	cp := *t
	byID[t.TaskID] = &cp
	return nil
}

func (s *InMemorySalesStore) UpdateTask(_ context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.tasks[t.TenantID]
	if _, ok := byID[t.TaskID]; !ok {
		return ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	byID[t.TaskID] = &t
	return nil
}

// --- Workflow steps ---

func (s *InMemorySalesStore) InsertWorkflowStep(_ context.Context, step *WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := sub(s.steps, step.TenantID)
	if _, ok := byID[step.StepID]; ok {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	if step.CreatedAt.IsZero() {
		step.CreatedAt = now
	}
	step.UpdatedAt = now
	cp := *step
	byID[step.StepID] = &cp
	return nil
}

func (s *InMemorySalesStore) UpdateWorkflowStep(_ context.Context, step WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.steps[step.TenantID]
	if _, ok := byID[step.StepID]; !ok {
		return ErrNotFound
	}
	step.UpdatedAt = time.Now().UTC()
	byID[step.StepID] = &step
	return nil
}

func (s *InMemorySalesStore) ListWorkflowSteps(_ context.Context, tenantID, taskID string) ([]WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []WorkflowStep
	for _, step := range s.steps[tenantID] {
		if step.TaskID == taskID {
			out = append(out, *step)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Push notification configs ---

func (s *InMemorySalesStore) GetPushConfig(_ context.Context, tenantID, taskID, configID string) (*PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.pushConfigs[tenantID][configID]
	if !ok || c.TaskID != taskID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemorySalesStore) ListPushConfigs(_ context.Context, tenantID, taskID string) ([]PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PushNotificationConfig
	for _, c := range s.pushConfigs[tenantID] {
		if c.TaskID == taskID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemorySalesStore) UpsertPushConfig(_ context.Context, c *PushNotificationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := sub(s.pushConfigs, c.TenantID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	byID[c.ID] = &cp
	return nil
}

func (s *InMemorySalesStore) DeletePushConfig(_ context.Context, tenantID, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.pushConfigs[tenantID]
	c, ok := byID[configID]
	if !ok || c.TaskID != taskID {
		return ErrNotFound
	}
	delete(byID, configID)
	return nil
}
