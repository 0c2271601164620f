package plc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor watches one facade's connection state, attempts a reconnect
// when it drops, and reports transitions to an optional callback.
type Monitor struct {
	facade   Facade
	name     string
	interval time.Duration
	logger   *zap.Logger
	onChange func(name string, connected bool)

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewMonitor(name string, facade Facade, interval time.Duration, logger *zap.Logger, onChange func(string, bool)) *Monitor {
	return &Monitor{
		facade:   facade,
		name:     name,
		interval: interval,
		logger:   logger,
		onChange: onChange,
		stopChan: make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.running = true
	m.wg.Add(1)
	go m.watchLoop()

	m.logger.Info("Connection monitor started",
		zap.String("facade", m.name),
		zap.Duration("interval", m.interval))
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.logger.Info("Connection monitor stopped", zap.String("facade", m.name))
}

func (m *Monitor) watchLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	last := m.facade.IsConnected()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			connected := m.facade.IsConnected()
			if !connected {
				ctx, cancel := context.WithTimeout(context.Background(), m.interval)
				if err := m.facade.Reconnect(ctx); err != nil {
					m.logger.Warn("Reconnect attempt failed",
						zap.String("facade", m.name),
						zap.Error(err))
				} else {
					connected = true
				}
				cancel()
			}

			if connected != last {
				m.logger.Info("Connection state changed",
					zap.String("facade", m.name),
					zap.Bool("connected", connected))
				if m.onChange != nil {
					m.onChange(m.name, connected)
				}
				last = connected
			}
		}
	}
}
