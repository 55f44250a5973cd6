package dispatch

import (
	"fmt"
	"sort"
)

// Registry 命令名 → 处理函数注册表
//
// 注册在进程启动时完成，请求处理期间只读。
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register 注册命令
func (r *Registry) Register(name string, h HandlerFunc) error {
	if name == "" {
		return fmt.Errorf("register: empty command name")
	}
	if h == nil {
		return fmt.Errorf("register %q: nil handler", name)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("register %q: already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// MustRegister 注册命令，失败时 panic（仅用于启动阶段）
func (r *Registry) MustRegister(name string, h HandlerFunc) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

// Lookup 查找命令处理函数
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names 返回已注册命令名（排序）
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len 返回已注册命令数量
func (r *Registry) Len() int {
	return len(r.handlers)
}
