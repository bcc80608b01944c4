package session

import "time"

// NoticeKind distinguishes informational notices from failures.
type NoticeKind string

const (
	NoticeInfo        NoticeKind = "info"
	NoticeDestructive NoticeKind = "destructive"
)

// maxNotices bounds the notice ring.
const maxNotices = 10

// Notice is a transient user-facing message. Notices never carry state the
// rest of the session depends on.
type Notice struct {
	ID      uint64     `json:"id"`
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message,omitempty"`
	At      time.Time  `json:"at"`
}

func (s *Session) noticeLocked(kind NoticeKind, title, msg string) {
	s.noticeSeq++
	s.notices = append(s.notices, Notice{
		ID:      s.noticeSeq,
		Kind:    kind,
		Title:   title,
		Message: msg,
		At:      s.cfg.Clock.Now(),
	})
	if n := len(s.notices); n > maxNotices {
		s.notices = append([]Notice(nil), s.notices[n-maxNotices:]...)
	}
}

// DismissNotice removes a notice by ID. Unknown IDs are ignored.
func (s *Session) DismissNotice(id uint64) {
	s.mu.Lock()
	for i, n := range s.notices {
		if n.ID == id {
			s.notices = append(s.notices[:i:i], s.notices[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}
