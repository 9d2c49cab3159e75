package ui

import (
	"fmt"
	"time"

	"github.com/five82/shelf/internal/api"
)

const (
	toastLifetime = 5 * time.Second
	maxToasts     = 4
)

type toastLevel int

const (
	toastInfo toastLevel = iota
	toastSuccess
	toastWarn
	toastError
)

type toast struct {
	level   toastLevel
	text    string
	expires time.Time
}

func (m *Model) pushToast(level toastLevel, text string) {
	m.toasts = append(m.toasts, toast{level: level, text: text, expires: m.now().Add(toastLifetime)})
	if len(m.toasts) > maxToasts {
		m.toasts = m.toasts[len(m.toasts)-maxToasts:]
	}
}

// pushAPIError turns an observed request failure into a toast. Conflicts
// already get a friendlier toast from the action that caused them.
func (m *Model) pushAPIError(e *api.Error) {
	if e == nil {
		return
	}
	level := toastError
	switch e.Kind {
	case api.KindConflict:
		return
	case api.KindUnauthorized:
		if m.login.visible {
			return
		}
		level = toastWarn
	case api.KindNotFound, api.KindValidation, api.KindBadRequest, api.KindForbidden:
		level = toastWarn
	}
	text := e.Message
	if text == "" {
		text = e.Kind.String()
	}
	m.pushToast(level, fmt.Sprintf("%s: %s", capitalize(e.Kind.String()), text))
}

func (m *Model) pruneToasts() {
	now := m.now()
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if now.Before(t.expires) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

// latestToast returns the newest live toast.
func (m Model) latestToast() (toast, bool) {
	if len(m.toasts) == 0 {
		return toast{}, false
	}
	return m.toasts[len(m.toasts)-1], true
}
