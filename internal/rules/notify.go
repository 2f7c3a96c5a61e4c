package rules

import "sync"

// Notifier fans a payload-free "rules changed" signal out to any number of listeners.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]chan struct{}
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan struct{})}
}

// Subscribe registers a listener. cancel unregisters it and closes the channel.
func (n *Notifier) Subscribe(buf int) (ch <-chan struct{}, cancel func()) {
	if buf <= 0 {
		buf = 1
	}
	c := make(chan struct{}, buf)

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = c
	n.mu.Unlock()

	return c, func() {
		n.mu.Lock()
		if ch2, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(ch2)
		}
		n.mu.Unlock()
	}
}

// Notify signals every listener without blocking.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
			// 监听方尚未消费上一次信号：信号无负载，合并即可。
		}
	}
}

// Len returns the number of active listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
