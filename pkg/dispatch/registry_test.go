package dispatch

import (
	"context"
	"testing"
)

type stubHandler struct {
	desc   Descriptor
	handle func(ctx context.Context, cmd *CommandContext) (bool, error)
}

func (h *stubHandler) Descriptor() Descriptor { return h.desc }

func (h *stubHandler) Handle(ctx context.Context, cmd *CommandContext) (bool, error) {
	if h.handle == nil {
		return true, nil
	}
	return h.handle(ctx, cmd)
}

func newStubHandler(name string, aliases ...string) *stubHandler {
	return &stubHandler{desc: Descriptor{
		Name:    name,
		Aliases: aliases,
		Usage:   "/" + name,
		MaxArgs: -1,
	}}
}

func TestRegistryResolveByName(t *testing.T) {
	reg := NewRegistry(nil)
	handler := newStubHandler("list", "ls", "show")
	reg.Register(handler)

	got, ok := reg.Resolve("list")
	if !ok {
		t.Fatal("expected to resolve registered command")
	}
	if got != handler {
		t.Fatal("resolved wrong handler")
	}
}

func TestRegistryResolveAlias(t *testing.T) {
	reg := NewRegistry(nil)
	handler := newStubHandler("remove", "delete", "del")
	reg.Register(handler)

	for _, token := range []string{"delete", "del"} {
		got, ok := reg.Resolve(token)
		if !ok {
			t.Fatalf("alias %q did not resolve", token)
		}
		if got != handler {
			t.Fatalf("alias %q resolved to wrong handler", token)
		}
	}
}

func TestRegistryResolveCaseInsensitive(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(newStubHandler("check", "bal"))

	for _, token := range []string{"CHECK", "Check", "BAL", " bal "} {
		if _, ok := reg.Resolve(token); !ok {
			t.Fatalf("token %q did not resolve", token)
		}
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(newStubHandler("help"))

	if _, ok := reg.Resolve("halp"); ok {
		t.Fatal("unexpected resolution of unknown command")
	}
}

func TestRegistryOverwrite(t *testing.T) {
	reg := NewRegistry(nil)
	first := newStubHandler("start")
	second := newStubHandler("start", "begin")
	reg.Register(first)
	reg.Register(second)

	got, ok := reg.Resolve("start")
	if !ok || got != second {
		t.Fatal("expected second registration to win")
	}
	if got, ok := reg.Resolve("begin"); !ok || got != second {
		t.Fatal("expected alias from second registration")
	}
}

func TestRegistryUnregisterRemovesAliases(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(newStubHandler("add", "create", "new"))

	if !reg.Unregister("add") {
		t.Fatal("expected Unregister to report removal")
	}
	for _, token := range []string{"add", "create", "new"} {
		if _, ok := reg.Resolve(token); ok {
			t.Fatalf("token %q still resolves after unregister", token)
		}
	}
	if reg.Unregister("add") {
		t.Fatal("second Unregister should report nothing removed")
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(newStubHandler("help", "h"))
	reg.Register(newStubHandler("list", "ls"))

	names := reg.List()
	if len(names) != 2 {
		t.Fatalf("expected 2 primary names, got %d: %v", len(names), names)
	}
	seen := map[string]bool{}
	for _, name := range names {
		seen[name] = true
	}
	if !seen["help"] || !seen["list"] {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRegistryIgnoresEmptyName(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(newStubHandler(""))

	if len(reg.List()) != 0 {
		t.Fatal("handler with empty name should not register")
	}
}
