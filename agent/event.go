package agent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType 事件类型
type EventType string

const (
	// EventTrace 编排运行轨迹事件
	EventTrace EventType = "trace"
	// EventAll 订阅全部事件类型
	EventAll EventType = "*"
)

var subscriptionCounter int64

// Event 事件接口
type Event interface {
	Timestamp() time.Time
	Type() EventType
}

// EventHandler 事件处理器
type EventHandler func(Event)

// EventBus 定义事件总线接口
type EventBus interface {
	Publish(event Event)
	Subscribe(eventType EventType, handler EventHandler) string
	Unsubscribe(subscriptionID string)
	Stop()
}

// SimpleEventBus 单 goroutine 分发的事件总线。
// 同一订阅者按发布顺序收到事件。
type SimpleEventBus struct {
	mu           sync.RWMutex
	handlers     map[EventType]map[string]EventHandler
	order        []string
	eventChannel chan Event
	done         chan struct{}
	stopOnce     sync.Once
	logger       *zap.Logger
}

// NewEventBus 创建新的事件总线
func NewEventBus(logger ...*zap.Logger) EventBus {
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	bus := &SimpleEventBus{
		handlers:     make(map[EventType]map[string]EventHandler),
		eventChannel: make(chan Event, 256),
		done:         make(chan struct{}),
		logger:       l.With(zap.String("component", "event_bus")),
	}
	go bus.processEvents()
	return bus
}

// Publish 发布事件；缓冲区满时阻塞，总线停止后丢弃
func (b *SimpleEventBus) Publish(event Event) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.eventChannel <- event:
	case <-b.done:
	}
}

// Subscribe 订阅事件
func (b *SimpleEventBus) Subscribe(eventType EventType, handler EventHandler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]EventHandler)
	}

	id := fmt.Sprintf("%s-%d", eventType, atomic.AddInt64(&subscriptionCounter, 1))
	b.handlers[eventType][id] = handler
	b.order = append(b.order, id)
	return id
}

// Unsubscribe 取消订阅
func (b *SimpleEventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.handlers, eventType)
			}
			break
		}
	}
	for i, id := range b.order {
		if id == subscriptionID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *SimpleEventBus) snapshot(t EventType) []EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	typed, all := b.handlers[t], b.handlers[EventAll]
	out := make([]EventHandler, 0, len(typed)+len(all))
	for _, id := range b.order {
		if h, ok := typed[id]; ok {
			out = append(out, h)
		} else if h, ok := all[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (b *SimpleEventBus) processEvents() {
	for {
		select {
		case event := <-b.eventChannel:
			for _, h := range b.snapshot(event.Type()) {
				b.dispatch(h, event)
			}
		case <-b.done:
			return
		}
	}
}

func (b *SimpleEventBus) dispatch(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", zap.Any("recover", r))
		}
	}()
	h(event)
}

// Stop 停止事件总线
func (b *SimpleEventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}
