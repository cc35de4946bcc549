package client

import (
	"sync"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

const (
	ModeDineIn   = "Comer aquí"
	ModeTakeaway = "Para llevar"
)

// Session is one customer's cart at a kiosk. Each client owns its sessions;
// nothing is shared between kiosks.
type Session struct {
	mu    sync.Mutex
	items []int64
	mode  string
}

func NewSession() *Session {
	return &Session{mode: ModeDineIn}
}

func (s *Session) Add(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, id)
}

// Remove drops one unit of id from the cart.
func (s *Session) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range s.items {
		if it == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) Items() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.items...)
}

func (s *Session) SetMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Total(c *domain.Catalog) float64 {
	return c.Price(s.Items())
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}
