package postbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Plugin extends the service. A plugin that also implements SendHook or
// ReadHook is called around the matching operations; one that only wants to
// watch should subscribe to Service.Events instead.
type Plugin interface {
	Name() string
	// Init runs during Connect, in registration order.
	Init(ctx context.Context) error
	// Close runs during Close, in reverse registration order.
	Close(ctx context.Context) error
}

// SendHook can veto a send and observe committed ones.
type SendHook interface {
	Plugin
	// BeforeSend sees a request whose sender and recipients all resolved.
	// A non-nil error aborts the send with nothing written.
	BeforeSend(ctx context.Context, req SendRequest) error
	// AfterSend sees the stored message. Its error is only logged.
	AfterSend(ctx context.Context, msg *SentMessage) error
}

// ReadHook observes MarkRead after the read flag is stored.
type ReadHook interface {
	Plugin
	AfterRead(ctx context.Context, messageID, recipientEmail string) error
}

// PluginError reports which plugin failed and in which call.
type PluginError struct {
	Plugin string
	Op     string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s %s: %v", e.Plugin, e.Op, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

type pluginRegistry struct {
	logger  *slog.Logger
	plugins []Plugin
	senders []SendHook
	readers []ReadHook
}

func newPluginRegistry(logger *slog.Logger) *pluginRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &pluginRegistry{logger: logger}
}

func (r *pluginRegistry) register(p Plugin) {
	r.plugins = append(r.plugins, p)
	if h, ok := p.(SendHook); ok {
		r.senders = append(r.senders, h)
	}
	if h, ok := p.(ReadHook); ok {
		r.readers = append(r.readers, h)
	}
}

// initAll starts every plugin. If one fails, those already started are
// closed again, newest first.
func (r *pluginRegistry) initAll(ctx context.Context) error {
	for i, p := range r.plugins {
		err := p.Init(ctx)
		if err == nil {
			continue
		}
		for _, started := range slices.Backward(r.plugins[:i]) {
			if cerr := started.Close(ctx); cerr != nil {
				r.logger.Error("plugin close after failed init", "plugin", started.Name(), "error", cerr)
			}
		}
		return &PluginError{Plugin: p.Name(), Op: "init", Err: err}
	}
	return nil
}

func (r *pluginRegistry) closeAll(ctx context.Context) error {
	var errs []error
	for _, p := range slices.Backward(r.plugins) {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, &PluginError{Plugin: p.Name(), Op: "close", Err: err})
		}
	}
	return errors.Join(errs...)
}

// guard runs a hook, turning both errors and panics into *PluginError.
func guard(p Plugin, op string, fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PluginError{Plugin: p.Name(), Op: op, Err: fmt.Errorf("panic: %v", v)}
		}
	}()
	if err = fn(); err != nil {
		return &PluginError{Plugin: p.Name(), Op: op, Err: err}
	}
	return nil
}

func (r *pluginRegistry) beforeSend(ctx context.Context, req SendRequest) error {
	for _, h := range r.senders {
		if err := guard(h, "BeforeSend", func() error { return h.BeforeSend(ctx, req) }); err != nil {
			return err
		}
	}
	return nil
}

func (r *pluginRegistry) afterSend(ctx context.Context, msg *SentMessage) {
	for _, h := range r.senders {
		if err := guard(h, "AfterSend", func() error { return h.AfterSend(ctx, msg) }); err != nil {
			r.logger.Warn("after-send hook failed", "message_id", msg.ID, "error", err)
		}
	}
}

func (r *pluginRegistry) afterRead(ctx context.Context, messageID, recipientEmail string) {
	for _, h := range r.readers {
		if err := guard(h, "AfterRead", func() error { return h.AfterRead(ctx, messageID, recipientEmail) }); err != nil {
			r.logger.Warn("after-read hook failed", "message_id", messageID, "error", err)
		}
	}
}
