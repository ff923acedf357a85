// internal/service/port_locks.go
package service

import (
	"fmt"
	"sync"
)

// PortLocks grants exclusive use of a port to one task at a time
type PortLocks struct {
	mutex sync.Mutex
	owner map[string]string
}

// NewPortLocks creates an empty lock table
func NewPortLocks() *PortLocks {
	return &PortLocks{owner: make(map[string]string)}
}

// Acquire claims port for task. It fails with ErrPortBusy while another task
// holds it.
func (p *PortLocks) Acquire(port, task string) (release func(), err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if holder, busy := p.owner[port]; busy {
		return nil, fmt.Errorf("%s is used by %s: %w", port, holder, ErrPortBusy)
	}
	p.owner[port] = task

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mutex.Lock()
			delete(p.owner, port)
			p.mutex.Unlock()
		})
	}, nil
}

// Holder returns the task holding port, if any
func (p *PortLocks) Holder(port string) (string, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	task, ok := p.owner[port]
	return task, ok
}
