package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool 固定大小的协程池
//
// 用于使用日志这类不需要在请求路径上等待的写入，
// 队列有界，拒绝策略交由调用方决定。
type WorkerPool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	log     *zap.Logger
}

// NewWorkerPool 创建协程池，workers 为并发数，queueSize 为队列容量
func NewWorkerPool(workers, queueSize int, log *zap.Logger) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		workers: workers,
		tasks:   make(chan func(), queueSize),
		log:     log,
	}
}

// Start 启动全部工作协程
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

// Submit 提交任务，队列满时阻塞
func (p *WorkerPool) Submit(task func()) {
	p.tasks <- task
}

// TrySubmit 提交任务，队列满时立即返回 false
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop 关闭队列并等待在途任务完成
func (p *WorkerPool) Stop() {
	close(p.tasks)
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.execute(task)
		}
	}
}

// execute 单独包一层以捕获任务 panic，不让单个任务拖垮协程
func (p *WorkerPool) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
