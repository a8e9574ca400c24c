package render

import (
	"sync"
	"time"
)

// Toaster 显示提示并在 TTL 后隐藏; 较旧的定时器不会隐藏较新的提示
type Toaster struct {
	r   Renderer
	ttl time.Duration

	mu      sync.Mutex
	gen     uint64
	current Toast

	afterFunc func(d time.Duration, f func())
}

func NewToaster(r Renderer, ttl time.Duration) *Toaster {
	return &Toaster{
		r:   r,
		ttl: ttl,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Show 渲染提示并安排隐藏
func (t *Toaster) Show(message string, kind ToastKind) Toast {
	t.mu.Lock()
	t.gen++
	toast := Toast{ID: t.gen, Message: message, Kind: kind, Visible: true}
	t.current = toast
	t.mu.Unlock()

	t.r.RenderToast(toast)
	t.afterFunc(t.ttl, func() { t.hide(toast.ID) })
	return toast
}

func (t *Toaster) hide(id uint64) {
	t.mu.Lock()
	if id != t.gen || !t.current.Visible {
		t.mu.Unlock()
		return
	}
	t.current.Visible = false
	toast := t.current
	t.mu.Unlock()

	t.r.RenderToast(toast)
}

// Current 返回最近一次提示的状态
func (t *Toaster) Current() Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
