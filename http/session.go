package http

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const sessionCookie = "iris_session"

// Session 浏览器会话
type Session struct {
	ID string

	mu      sync.Mutex
	proceed bool
}

// Proceeded 是否已离开引导页
func (s *Session) Proceeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proceed
}

// MarkProceeded 标记已离开引导页
func (s *Session) MarkProceeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proceed = true
}

// SessionStore 会话存储，超出容量时淘汰最久未使用的会话
type SessionStore struct {
	sessions *lru.Cache[string, *Session]
}

// NewSessionStore 创建会话存储
func NewSessionStore(size int) (*SessionStore, error) {
	if size <= 0 {
		size = 1024
	}
	sessions, err := lru.New[string, *Session](size)
	if err != nil {
		return nil, err
	}
	return &SessionStore{sessions: sessions}, nil
}

// Get 返回请求对应的会话，不存在时新建并写入Cookie
func (s *SessionStore) Get(w http.ResponseWriter, r *http.Request) *Session {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if session, ok := s.sessions.Get(cookie.Value); ok {
			return session
		}
	}

	session := &Session{ID: uuid.NewString()}
	s.sessions.Add(session.ID, session)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return session
}

// Len 当前会话数
func (s *SessionStore) Len() int {
	return s.sessions.Len()
}
