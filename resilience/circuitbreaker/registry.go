package circuitbreaker

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry 熔断器注册表，按目标（agent / service）管理熔断器
type Registry struct {
	breakers map[string]*Breaker
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewRegistry 创建熔断器注册表，config 作为未单独配置目标的默认值
func NewRegistry(config Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		config:   config,
		logger:   logger,
	}
}

// Get 获取或创建目标的熔断器
func (r *Registry) Get(target string) *Breaker {
	r.mu.RLock()
	if cb, ok := r.breakers[target]; ok {
		r.mu.RUnlock()
		return cb
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// 双重检查
	if cb, ok := r.breakers[target]; ok {
		return cb
	}

	cb := New(target, r.config, r.logger)
	r.breakers[target] = cb
	return cb
}

// Configure 以专属配置创建目标熔断器，替换已存在的实例。
// 未设置的回调沿用注册表默认配置。
func (r *Registry) Configure(target string, config Config) *Breaker {
	if config.OnStateChange == nil {
		config.OnStateChange = r.config.OnStateChange
	}
	if config.Now == nil {
		config.Now = r.config.Now
	}
	if config.IsFailure == nil {
		config.IsFailure = r.config.IsFailure
	}
	cb := New(target, config, r.logger)

	r.mu.Lock()
	r.breakers[target] = cb
	r.mu.Unlock()
	return cb
}

// Allow 判断目标是否放行请求
func (r *Registry) Allow(target string) bool {
	return r.Get(target).Allow()
}

// RecordSuccess 记录目标调用成功
func (r *Registry) RecordSuccess(target string) {
	r.Get(target).RecordSuccess()
}

// RecordFailure 记录目标调用失败
func (r *Registry) RecordFailure(target string) {
	r.Get(target).RecordFailure()
}

// Remove 删除目标熔断器
func (r *Registry) Remove(target string) {
	r.mu.Lock()
	delete(r.breakers, target)
	r.mu.Unlock()
}

// States 获取所有熔断器快照，按目标名排序
func (r *Registry) States() []Snapshot {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// ResetAll 重置所有熔断器
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}
