package router

import (
	"context"
	"runtime/debug"
	"time"

	logx "remibot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that the first listed middleware is the outermost.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

const defaultCommandTimeout = 30 * time.Second

func MWTimeout(d time.Duration) Middleware {
	if d <= 0 {
		d = defaultCommandTimeout
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			c, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(c, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic in command handler",
						logx.String("cmd", req.Command),
						logx.String("rid", req.ReqID),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					_, _ = req.Adapter.SendText(ctx, req.Chat, "internal error", nil)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			fields := []logx.Field{
				logx.String("rid", req.ReqID),
				logx.String("cmd", req.Command),
				logx.Int64("from_id", req.FromID),
				logx.Duration("took", time.Since(start)),
			}
			if err != nil {
				log.Warn("command failed", append(fields, logx.Err(err))...)
			} else {
				log.Debug("command handled", fields...)
			}
			return err
		}
	}
}
