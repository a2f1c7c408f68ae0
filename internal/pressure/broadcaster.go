// Package pressure delivers process-wide memory-pressure events to subscribers.
// The host pushes events with Notify; each subscriber runs on its own goroutine
// so a slow handler never blocks the signal source or in-flight fetches.
package pressure

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Broadcaster 实现 cache.PressureSource，支持订阅/取消订阅与异步广播。
type Broadcaster struct {
	logger *logrus.Logger

	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]func()
	wg       sync.WaitGroup
}

// NewBroadcaster 创建空的广播器；logger 为空时使用 logrus 标准 logger。
func NewBroadcaster(logger *logrus.Logger) *Broadcaster {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Broadcaster{
		logger:   logger,
		handlers: make(map[uint64]func()),
	}
}

// Subscribe 注册 handler，返回的函数可重复调用以取消订阅。
func (b *Broadcaster) Subscribe(handler func()) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Notify 异步触发所有订阅者，返回被通知的订阅者数量。
func (b *Broadcaster) Notify() int {
	b.mu.Lock()
	handlers := make([]func(), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"action":      "memory_pressure",
		"subscribers": len(handlers),
	}).Info("memory pressure signal")

	for _, h := range handlers {
		b.wg.Add(1)
		go func(h func()) {
			defer b.wg.Done()
			h()
		}(h)
	}
	return len(handlers)
}

// Subscribers 返回当前订阅者数量。
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

// Wait 阻塞直到此前 Notify 派发的 handler 全部返回。
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}
