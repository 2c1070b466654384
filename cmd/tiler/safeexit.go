package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SafeExit runs registered cleanup functions when the process is asked to
// stop. A second signal exits immediately.
type SafeExit struct {
	funcs []func()
	mu    sync.Mutex
	once  sync.Once
	sigs  chan os.Signal
}

// NewSafeExit 开始监听系统信号
func NewSafeExit() *SafeExit {
	s := &SafeExit{sigs: make(chan os.Signal, 1)}
	signal.Notify(s.sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go s.listen()
	return s
}

// Register adds f to the cleanup list.
func (s *SafeExit) Register(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.funcs = append(s.funcs, f)
}

// Exit runs the cleanup functions once, in registration order.
func (s *SafeExit) Exit() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, f := range s.funcs {
			f()
		}
	})
}

// Stop 停止监听
func (s *SafeExit) Stop() {
	signal.Stop(s.sigs)
}

func (s *SafeExit) listen() {
	stopping := false
	for sig := range s.sigs {
		if stopping {
			os.Exit(1)
		}
		stopping = true
		fmt.Fprintf(os.Stderr, "收到系统信号 %v, 正在停止任务, 请稍后\n", sig)
		go s.Exit()
	}
}
