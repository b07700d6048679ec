package chat

import (
	"sync"
	"time"
)

// ===== 配置 =====

type RegistryConf struct {
	MaxPerUser int              // max live connections per user (<=0 means unlimited)
	Clock      func() time.Time // injectable clock for tests; nil => time.Now
}

func (c *RegistryConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Stats is a read-only snapshot of registry occupancy.
type Stats struct {
	Users      int     `json:"users"`
	Conns      int     `json:"conns"`
	AvgPerUser float64 `json:"avgPerUser"`
	MaxPerUser int     `json:"maxPerUser"`
}

// Registry tracks user<->connection<->device state for one gateway process.
// This state is never shared across processes; cross-instance visibility goes
// through the fanout bus and the presence mirror.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*Conn            // conn_id -> conn
	byUser map[string]map[string]*Conn // user -> conn_id -> conn
	conf   RegistryConf
}

func NewRegistry(conf RegistryConf) *Registry {
	conf.norm()
	return &Registry{
		byConn: make(map[string]*Conn),
		byUser: make(map[string]map[string]*Conn),
		conf:   conf,
	}
}

func (r *Registry) Clock() time.Time { return r.conf.Clock() }

// Add admits c under c.UserID. ok is false with no mutation when the user
// already holds MaxPerUser live connections; prior entries stay intact.
// first reports the offline→online transition, decided under the same lock
// as the insert so two concurrent adds cannot both observe it. It is the
// mirror of Remove's wentOffline.
func (r *Registry) Add(c *Conn) (ok, first bool) {
	if c == nil || c.ID == "" || c.UserID == "" {
		return false, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	mm := r.byUser[c.UserID]
	if r.conf.MaxPerUser > 0 && len(mm) >= r.conf.MaxPerUser {
		return false, false
	}
	first = len(mm) == 0
	if mm == nil {
		mm = make(map[string]*Conn)
		r.byUser[c.UserID] = mm
	}
	mm[c.ID] = c
	r.byConn[c.ID] = c
	return true, first
}

// Remove drops every trace of connID. When this was the user's last
// connection it returns (userID, true) — the presence offline signal, emitted
// exactly once per offline transition.
func (r *Registry) Remove(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)

	mm := r.byUser[c.UserID]
	if mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(r.byUser, c.UserID)
			return c.UserID, true
		}
	}
	return "", false
}

func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byConn[connID]
	return c, ok
}

func (r *Registry) UserConns(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mm := r.byUser[userID]
	if len(mm) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(mm))
	for _, c := range mm {
		out = append(out, c)
	}
	return out
}

// IsOnline: a user is online iff it has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) UserDevices(userID string) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mm := r.byUser[userID]
	out := make([]Device, 0, len(mm))
	for _, c := range mm {
		out = append(out, c.Device)
	}
	return out
}

func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	return out
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		Users:      len(r.byUser),
		Conns:      len(r.byConn),
		MaxPerUser: r.conf.MaxPerUser,
	}
	if s.Users > 0 {
		s.AvgPerUser = float64(s.Conns) / float64(s.Users)
	}
	return s
}

// HasReachedMax and RemainingSlots support pre-flight checks before accepting
// a new session.
func (r *Registry) HasReachedMax(userID string) bool {
	if r.conf.MaxPerUser <= 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) >= r.conf.MaxPerUser
}

func (r *Registry) RemainingSlots(userID string) int {
	if r.conf.MaxPerUser <= 0 {
		return -1
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.conf.MaxPerUser - len(r.byUser[userID])
	if n < 0 {
		n = 0
	}
	return n
}

// CloseAll is shutdown cleanup.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		conns = append(conns, c)
	}
	r.byConn = make(map[string]*Conn)
	r.byUser = make(map[string]map[string]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
