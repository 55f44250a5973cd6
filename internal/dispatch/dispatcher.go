// Package dispatch 批量命令调度器
//
// 调度器按顺序执行 Payload 中的命令：
//
//	Validating → Executing(i) → {Executing(i+1) | Aborted | Completed | Streamed}
//
// 错误分类：
//   - 请求级：Payload 无效或命令未注册 → 返回错误，不产生汇总结果
//   - 命令级：处理函数返回错误或 panic → 合成 SYSERR 结果，按 ignoreErrors 决定是否中止
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"

	"batchrpc/internal/hook"
	"batchrpc/internal/ledger"
	"batchrpc/internal/payload"
	"batchrpc/internal/response"
	"batchrpc/pkg/logging"
)

// ErrUnknownCommand 批量中包含未注册的命令，整批拒绝
var ErrUnknownCommand = fmt.Errorf("unknown command: %w", errdefs.ErrInvalidArgument)

// Outcome 批量执行的终止状态
type Outcome int

const (
	OutcomeRejected  Outcome = iota // Payload 无效或命令未注册
	OutcomeCompleted                // 全部命令已尝试
	OutcomeAborted                  // 命令失败且未设置 ignoreErrors
	OutcomeStreamed                 // 命令已自行发送响应，不再生成汇总结果
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeStreamed:
		return "streamed"
	default:
		return "rejected"
	}
}

// Observer 命令执行观测（指标）
type Observer interface {
	ObserveCommand(cmd, outcome string, d time.Duration)
}

// Env 请求级环境，命令处理函数通过 Call 访问
type Env struct {
	Request   *http.Request
	Writer    http.ResponseWriter
	Finalizer *response.Finalizer
}

// Options 调度器选项
type Options struct {
	Fields   ResultFields
	Debug    bool
	Hooks    hook.Set
	Logger   *logging.Logger
	Observer Observer
}

// Dispatcher 命令调度器
type Dispatcher struct {
	registry *Registry
	fields   ResultFields
	debug    bool
	hooks    hook.Set
	logger   *logging.Logger
	observer Observer

	newID func() string
}

// New 创建调度器
func New(registry *Registry, opts Options) *Dispatcher {
	if opts.Fields == (ResultFields{}) {
		opts.Fields = DefaultFields()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Dispatcher{
		registry: registry,
		fields:   opts.Fields,
		debug:    opts.Debug,
		hooks:    opts.Hooks,
		logger:   opts.Logger,
		observer: opts.Observer,
		newID:    uuid.NewString,
	}
}

// Fields 返回保留字段配置
func (d *Dispatcher) Fields() ResultFields {
	return d.fields
}

// PanicError 处理函数 panic 时的错误
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Run 顺序执行批量命令
//
// files 可为 nil（GET 调用）。返回 OutcomeStreamed 时汇总结果为 nil，响应已由命令发送。
func (d *Dispatcher) Run(ctx context.Context, p *payload.Payload, files *ledger.Ledger, env Env) (*Aggregate, Outcome, error) {
	if err := p.Validate(); err != nil {
		return nil, OutcomeRejected, err
	}

	var (
		opts    = p.Options
		start   = time.Now()
		agg     = &Aggregate{CommandCount: len(p.Commands), Results: make([]Result, 0, len(p.Commands))}
		outcome = OutcomeCompleted
	)

	for i, cmd := range p.Commands {
		d.hooks.OnPreCommand(env.Request, env.Writer, cmd)

		handler, ok := d.registry.Lookup(cmd.Cmd)
		if !ok {
			d.logger.WithContext(ctx).Warn("Unknown command, batch rejected", "cmd", cmd.Cmd, "index", i)
			return nil, OutcomeRejected, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Cmd)
		}

		correlationID := d.newID()
		cmdCtx := context.WithValue(ctx, logging.CorrelationIDKey, correlationID)
		cmdCtx = context.WithValue(cmdCtx, logging.CommandKey, cmd.Cmd)

		d.emit(cmdCtx, hook.EventPreCommand, map[string]any{
			"correlationId": correlationID,
			"cmd":           cmd.Cmd,
			"args":          cmd.Args,
		})

		call := &Call{
			Command:       cmd.Cmd,
			Args:          cmd.Args,
			CorrelationID: correlationID,
			Request:       env.Request,
			Writer:        env.Writer,
			Response:      env.Finalizer,
			fields:        d.fields,
		}
		if files != nil {
			call.Files = files.Take()
		}

		cmdStart := time.Now()
		res, err := d.invoke(cmdCtx, handler, call)
		elapsed := time.Since(cmdStart)

		if env.Finalizer != nil && env.Finalizer.Finalized() {
			// 命令已自行发送响应（如文件下载），不再执行后续命令
			if err != nil {
				d.logger.WithContext(cmdCtx).WithError(err).Error("Command failed after sending response")
			}
			d.observe(cmd.Cmd, OutcomeStreamed.String(), elapsed)
			outcome = OutcomeStreamed
			break
		}

		if err != nil {
			d.logger.WithContext(cmdCtx).WithError(err).Error("Command raised a system error", "args", cmd.Args)
			res = d.systemError(cmd, err)
		} else {
			// 处理函数可能直接返回 call.Args，标记字段不能写回命令描述
			res = res.clone()
		}

		if opts.Benchmark {
			res[d.fields.ExecTime] = millis(elapsed)
		}
		if cmd.HasID() {
			res[d.fields.ID] = cmd.ID
		}

		d.hooks.OnPostCommand(env.Request, env.Writer, cmd, res)
		agg.Results = append(agg.Results, res)

		failed := res.Failed(d.fields)
		status := "succeeded"
		if failed {
			status = "failed"
			agg.Failed++
		} else {
			agg.Succeeded++
		}
		d.logger.WithContext(cmdCtx).CommandLog(cmd.Cmd, correlationID, status, elapsed)
		d.observe(cmd.Cmd, status, elapsed)
		d.emit(cmdCtx, hook.EventPostCommand, map[string]any{
			"correlationId": correlationID,
			"cmd":           cmd.Cmd,
			"result":        map[string]any(res),
		})

		if failed && !opts.IgnoreErrors {
			agg.Aborted = agg.CommandCount - (i + 1)
			outcome = OutcomeAborted
			break
		}
	}

	if files != nil {
		files.ReleaseAll()
	}
	if outcome == OutcomeStreamed {
		return nil, outcome, nil
	}
	if opts.Benchmark {
		total := millis(time.Since(start))
		agg.TotalExecTime = &total
	}
	return agg, outcome, nil
}

// invoke 调用处理函数，将 panic 转换为错误
func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, call *Call) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return h(ctx, call)
}

// systemError 合成系统错误结果，原始错误仅在调试模式下返回给客户端
func (d *Dispatcher) systemError(cmd *payload.Command, err error) Result {
	res := Result{
		d.fields.ErrCode: SysErrCode,
		d.fields.ErrMsg:  SysErrMessage,
		d.fields.ErrLoc:  cmd.Cmd,
		d.fields.Args:    cmd.Args,
	}
	if d.debug {
		res[d.fields.Exception] = faultDetail(err)
	}
	return res
}

func faultDetail(err error) any {
	var pe *PanicError
	if errors.As(err, &pe) {
		return map[string]any{"error": pe.Error(), "stack": string(pe.Stack)}
	}
	return err.Error()
}

// emit 写入命令日志，失败只记录告警
func (d *Dispatcher) emit(ctx context.Context, event string, data map[string]any) {
	if err := d.hooks.OnLog(ctx, event, data); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("API log sink failed", "event", event)
	}
}

func (d *Dispatcher) observe(cmd, outcome string, elapsed time.Duration) {
	if d.observer != nil {
		d.observer.ObserveCommand(cmd, outcome, elapsed)
	}
}

// millis 以毫秒表示的耗时（保留微秒精度）
func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
