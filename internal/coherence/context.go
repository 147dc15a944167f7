package coherence

import "sync"

// Context is a bounded, insertion-ordered window of recent utterances plus
// an optional subject label. It is scoring input only and never persisted.
type Context struct {
	mu         sync.Mutex
	students   []string
	tutors     []string
	subject    string
	maxStudent int
	maxTutor   int
}

// NewContext builds a context retaining the last n student and m tutor
// utterances.
func NewContext(n, m int) *Context {
	if n <= 0 {
		n = 6
	}
	if m <= 0 {
		m = 4
	}
	return &Context{maxStudent: n, maxTutor: m}
}

// AddStudentUtterance appends a confirmed student utterance, evicting the
// oldest once the window is full.
func (c *Context) AddStudentUtterance(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.students = appendBounded(c.students, text, c.maxStudent)
}

// AddTutorUtterance appends a tutor utterance, evicting the oldest once the
// window is full.
func (c *Context) AddTutorUtterance(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tutors = appendBounded(c.tutors, text, c.maxTutor)
}

// SetSubject records the session subject label.
func (c *Context) SetSubject(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subject = subject
}

// snapshot returns all context text, oldest first, subject last.
func (c *Context) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.students)+len(c.tutors)+1)
	out = append(out, c.students...)
	out = append(out, c.tutors...)
	if c.subject != "" {
		out = append(out, c.subject)
	}
	return out
}

func appendBounded(window []string, text string, max int) []string {
	if text == "" {
		return window
	}
	window = append(window, text)
	if len(window) > max {
		window = window[len(window)-max:]
	}
	return window
}
