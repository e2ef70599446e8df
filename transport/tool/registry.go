// Package tool exposes postbox operations as named tools and URI resources
// for agent-style clients.
//
// Tools take a JSON object of arguments and always answer with text: a JSON
// document, a confirmation sentence, or an "Error <action>: <reason>" line.
// Failures that are not domain errors are reported as "Unexpected error: ...".
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rbaliyan/postbox"
)

var (
	// ErrUnknownTool is returned by Call for unregistered tool names.
	ErrUnknownTool = errors.New("tool: unknown tool")
	// ErrUnknownResource is returned by Read for unsupported URIs.
	ErrUnknownResource = errors.New("tool: unknown resource")
)

// Argument describes one tool argument.
type Argument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Descriptor describes a registered tool.
type Descriptor struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Arguments   []Argument `json:"arguments"`
}

// ResourceTemplate describes a resource URI family.
type ResourceTemplate struct {
	URI         string `json:"uri"`
	Description string `json:"description"`
}

type entry struct {
	desc Descriptor
	call func(ctx context.Context, raw json.RawMessage) string
}

type resource struct {
	tmpl ResourceTemplate
	// fixed is the only accepted path for singleton resources like users://all.
	fixed string
	read  func(ctx context.Context, param string) string
}

// Registry dispatches tool calls and resource reads to a postbox.Service.
type Registry struct {
	svc      postbox.Service
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate

	tools     map[string]entry
	order     []string
	resources map[string]resource
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for unexpected failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock sets the time source for the stats resource.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Registry with every tool and resource registered.
func New(svc postbox.Service, opts ...Option) *Registry {
	r := &Registry{
		svc:       svc,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		validate:  newValidator(),
		tools:     make(map[string]entry),
		resources: make(map[string]resource),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerTools()
	r.registerResources()
	return r
}

// Tools lists the registered tools in registration order.
func (r *Registry) Tools() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].desc)
	}
	return out
}

// Resources lists the supported resource URI templates.
func (r *Registry) Resources() []ResourceTemplate {
	out := make([]ResourceTemplate, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res.tmpl)
	}
	slices.SortFunc(out, func(a, b ResourceTemplate) int { return strings.Compare(a.URI, b.URI) })
	return out
}

// Call runs the named tool. Tool failures are reported in the text; the
// error is only set when the tool does not exist.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	e, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return e.call(ctx, args), nil
}

// Read returns the text of the resource at uri, e.g. "inbox://bob@example.com".
func (r *Registry) Read(ctx context.Context, uri string) (string, error) {
	scheme, param, ok := strings.Cut(uri, "://")
	res, known := r.resources[scheme]
	if !ok || !known || param == "" || (res.fixed != "" && param != res.fixed) {
		return "", fmt.Errorf("%w: %s", ErrUnknownResource, uri)
	}
	return res.read(ctx, param), nil
}

// register adds a tool whose arguments decode into A.
func register[A any](r *Registry, name, description, action string, args []Argument, fn func(ctx context.Context, a A) (string, error)) {
	call := func(ctx context.Context, raw json.RawMessage) string {
		var a A
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &a); err != nil {
				return fmt.Sprintf("Error %s: invalid arguments: %v", action, err)
			}
		}
		if err := r.validate.Struct(a); err != nil {
			return fmt.Sprintf("Error %s: %s", action, describe(err))
		}
		out, err := fn(ctx, a)
		if err != nil {
			return r.failure(action, err)
		}
		return out
	}
	r.tools[name] = entry{
		desc: Descriptor{Name: name, Description: description, Arguments: args},
		call: call,
	}
	r.order = append(r.order, name)
}

func (r *Registry) failure(action string, err error) string {
	if postbox.IsDomainError(err) {
		return fmt.Sprintf("Error %s: %s", action, strings.TrimPrefix(err.Error(), "postbox: "))
	}
	r.logger.Error("tool call failed", "action", action, "error", err)
	return "Unexpected error: " + err.Error()
}

// toJSON renders v as indented JSON.
func toJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// eventOnly reports whether err only signals a failed event publish, in which
// case the operation itself succeeded.
func eventOnly(err error) bool {
	_, ok := postbox.IsEventPublishError(err)
	return ok
}
