package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/containerd/errdefs"

	"batchrpc/internal/dispatch"
	"batchrpc/internal/ledger"
	"batchrpc/internal/payload"
	"batchrpc/internal/response"
	"batchrpc/pkg/logging"
)

var (
	// ErrMethodNotAllowed 不支持的方法，或 GET 调用未启用
	ErrMethodNotAllowed = fmt.Errorf("method not allowed: %w", errdefs.ErrNotImplemented)

	errMissingPayload = fmt.Errorf("%w: missing %q field", payload.ErrInvalid, "payload")
	errBadGetPath     = fmt.Errorf("%w: path does not map to a command", payload.ErrInvalid)
)

// statusFor 将错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsResourceExhausted(err):
		return http.StatusRequestEntityTooLarge
	case errdefs.IsNotImplemented(err):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// ServeRPC 批量调用入口
func (h *Handler) ServeRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.requests.Add(1)

	requestID := generateID()
	w.Header().Set("X-Request-ID", requestID)
	ctx := context.WithValue(r.Context(), logging.RequestIDKey, requestID)
	r = r.WithContext(ctx)
	log := h.logger.WithContext(ctx)

	// 命令与拦截函数只能通过 rw 写响应，直接写入会占用 Stream 模式
	var rw http.ResponseWriter
	fin := response.New(w, r, func() { h.hooks.OnPreResponse(r, rw) })
	rw = fin.Writer()
	files := ledger.New(h.fileLimits, h.tempDir)
	defer files.ReleaseAll()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Panic while serving request", "panic", rec, "stack", string(debug.Stack()))
			if !fin.Finalized() {
				fin.SendStatus(http.StatusInternalServerError)
			}
			h.metrics.RecordBatch(dispatch.OutcomeRejected)
		}
		log.HTTPRequestLog(r.Method, r.URL.Path, fin.Status(), time.Since(start), clientIP(r))
	}()

	h.hooks.OnPreRequest(r, rw)

	var (
		agg     *dispatch.Aggregate
		outcome dispatch.Outcome
		err     error
	)
	env := dispatch.Env{Request: r, Writer: rw, Finalizer: fin}

	switch r.Method {
	case http.MethodOptions:
		if err := fin.Preflight(); err != nil {
			log.WithError(err).Error("Failed to send preflight response")
		}
		return
	case http.MethodPost:
		agg, outcome, err = h.servePost(ctx, r, files, env)
	case http.MethodGet, http.MethodHead:
		if h.getBase == "" {
			if r.URL.Path == "/" {
				fin.SendStatus(http.StatusNoContent)
				return
			}
			err = ErrMethodNotAllowed
			break
		}
		if r.Method == http.MethodHead {
			// HEAD 只校验路径和命令名，不执行命令
			if err = h.checkHead(r); err == nil {
				fin.SendStatus(http.StatusOK)
				return
			}
			break
		}
		agg, outcome, err = h.serveGet(ctx, r, env)
	default:
		err = ErrMethodNotAllowed
	}

	h.finish(log, fin, w, agg, outcome, err)
}

func (h *Handler) servePost(ctx context.Context, r *http.Request, files *ledger.Ledger, env dispatch.Env) (*dispatch.Aggregate, dispatch.Outcome, error) {
	req, err := h.assembler.Assemble(r, files)
	if err != nil {
		var limitErr *ledger.LimitError
		if errors.As(err, &limitErr) {
			h.metrics.RecordLimit(limitErr.Kind)
		}
		return nil, dispatch.OutcomeRejected, err
	}
	h.metrics.RecordUploads(files.Files())

	raw, ok := req.Payload()
	if !ok {
		return nil, dispatch.OutcomeRejected, errMissingPayload
	}
	p, err := payload.Decode(raw)
	if err != nil {
		return nil, dispatch.OutcomeRejected, err
	}
	return h.dispatcher.Run(ctx, p, files, env)
}

func (h *Handler) serveGet(ctx context.Context, r *http.Request, env dispatch.Env) (*dispatch.Aggregate, dispatch.Outcome, error) {
	p, ok := payload.FromURL(r.URL.EscapedPath(), r.URL.RawQuery, h.getBase)
	if !ok {
		return nil, dispatch.OutcomeRejected, errBadGetPath
	}
	return h.dispatcher.Run(ctx, p, nil, env)
}

func (h *Handler) checkHead(r *http.Request) error {
	p, ok := payload.FromURL(r.URL.EscapedPath(), r.URL.RawQuery, h.getBase)
	if !ok {
		return errBadGetPath
	}
	name := p.Commands[0].Cmd
	if _, ok := h.registry.Lookup(name); !ok {
		return fmt.Errorf("%w: %q", dispatch.ErrUnknownCommand, name)
	}
	return nil
}

// finish 根据调度结果发送响应
func (h *Handler) finish(log *logging.Logger, fin *response.Finalizer, w http.ResponseWriter, agg *dispatch.Aggregate, outcome dispatch.Outcome, err error) {
	h.metrics.RecordBatch(outcome)

	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.WithError(err).Error("Request failed")
		} else {
			log.WithError(err).Warn("Request rejected", "status", status)
		}
		if status == http.StatusMethodNotAllowed {
			w.Header().Set("Allow", response.AllowMethods)
		}
		if fin.Finalized() {
			log.Error("Response already sent, dropping error status", "status", status)
			return
		}
		if sendErr := fin.SendStatus(status); sendErr != nil {
			log.WithError(sendErr).Error("Failed to send error response")
		}
		return
	}

	if outcome == dispatch.OutcomeStreamed {
		return
	}
	if sendErr := fin.SendAggregate(http.StatusOK, agg); sendErr != nil {
		if errors.Is(sendErr, response.ErrAlreadyFinalized) {
			log.WithError(sendErr).Error("Command sent a response without streaming")
			return
		}
		log.WithError(sendErr).Error("Failed to send aggregate response")
	}
}
