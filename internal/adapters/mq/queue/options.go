package queue

// Option configures an InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds the number of queued records; Enqueue fails beyond it.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithBufferSize sizes the record channel. It never drops below capacity.
func WithBufferSize(size int) Option {
	return func(q *InMemoryQueue) {
		if size > 0 {
			q.bufferSize = size
		}
	}
}

// WithComponent sets the component label used when rejections are counted.
func WithComponent(name string) Option {
	return func(q *InMemoryQueue) {
		if name != "" {
			q.component = name
		}
	}
}
