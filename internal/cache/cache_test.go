package cache

import (
	"context"
	"debug/elf"
	"errors"
	"sync"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrowasm/internal/arch/amd64"
	"github.com/retroenv/retrowasm/internal/options"
	"github.com/retroenv/retrowasm/internal/pipeline"
	"github.com/retroenv/retrowasm/internal/symbols"
	"github.com/retroenv/retrowasm/internal/symbols/mocks"
	"go.uber.org/goleak"
)

var errTranslation = errors.New("translation failed")

type fakeTranslator struct {
	names   []string
	failing map[string]error
	gate    chan struct{} // translations block until closed if set

	mu    sync.Mutex
	calls map[string]int
}

func newFakeTranslator(names ...string) *fakeTranslator {
	return &fakeTranslator{
		names:   names,
		failing: map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeTranslator) Functions() []symbols.Symbol {
	functions := make([]symbols.Symbol, 0, len(f.names))
	for i, name := range f.names {
		functions = append(functions, symbols.Symbol{Name: name, Address: uint64(i) * 16, Size: 16})
	}
	return functions
}

func (f *fakeTranslator) Translate(ctx context.Context, name string) (*pipeline.Result, error) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.failing[name]; err != nil {
		return nil, err
	}
	return &pipeline.Result{Name: name, Module: []byte(name)}, nil
}

func (f *fakeTranslator) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func TestTranslateOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	translator := newFakeTranslator("add_one")
	translator.gate = make(chan struct{})
	s := New(log.NewTestLogger(t), translator)

	const requests = 16
	results := make([]*pipeline.Result, requests)
	errs := make([]error, requests)

	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.Translate(context.Background(), "add_one")
		}()
	}
	close(translator.gate)
	wg.Wait()

	for i := range requests {
		assert.NoError(t, errs[i])
		assert.Equal(t, "add_one", results[i].Name)
	}
	assert.Equal(t, 1, translator.callCount("add_one"))

	_, err := s.Translate(context.Background(), "add_one")
	assert.NoError(t, err)
	assert.Equal(t, 1, translator.callCount("add_one"))
}

func TestUnknownFunction(t *testing.T) {
	translator := newFakeTranslator("add_one", "is_positive")
	s := New(log.NewTestLogger(t), translator, "add_one")

	tests := []struct {
		name string
	}{
		{name: "missing"},
		{name: "is_positive"}, // not allowed
		{name: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, s.Known(tt.name))

			_, err := s.Translate(context.Background(), tt.name)
			assert.True(t, errors.Is(err, ErrUnknownFunction))

			module, ok := s.ModuleFor(tt.name)
			assert.False(t, ok)
			assert.Nil(t, module)

			assert.Equal(t, 0, translator.callCount(tt.name))
		})
	}

	assert.True(t, s.Known("add_one"))
}

func TestFailureCached(t *testing.T) {
	translator := newFakeTranslator("broken")
	translator.failing["broken"] = errTranslation
	s := New(log.NewTestLogger(t), translator)

	for range 2 {
		_, err := s.Translate(context.Background(), "broken")
		assert.True(t, errors.Is(err, errTranslation))
	}
	assert.Equal(t, 1, translator.callCount("broken"))

	_, err := s.Lookup(context.Background(), "broken")
	assert.True(t, errors.Is(err, ErrNotTranslatable))
	assert.False(t, errors.Is(err, errTranslation))

	_, ok := s.GetCached("broken")
	assert.False(t, ok)
}

func TestLookupUniformError(t *testing.T) {
	translator := newFakeTranslator("broken")
	translator.failing["broken"] = errTranslation
	s := New(log.NewTestLogger(t), translator)

	_, errBroken := s.Lookup(context.Background(), "broken")
	_, errMissing := s.Lookup(context.Background(), "missing")

	assert.True(t, errors.Is(errBroken, ErrNotTranslatable))
	assert.True(t, errors.Is(errMissing, ErrNotTranslatable))
	assert.False(t, errors.Is(errMissing, ErrUnknownFunction))
}

func TestGetCached(t *testing.T) {
	translator := newFakeTranslator("add_one")
	s := New(log.NewTestLogger(t), translator)

	module, ok := s.GetCached("add_one")
	assert.False(t, ok)
	assert.Nil(t, module)
	assert.Equal(t, 0, translator.callCount("add_one"))

	module, ok = s.ModuleFor("add_one")
	assert.True(t, ok)
	assert.Equal(t, []byte("add_one"), module)

	module, ok = s.GetCached("add_one")
	assert.True(t, ok)
	assert.Equal(t, []byte("add_one"), module)
	assert.Equal(t, 1, translator.callCount("add_one"))
}

func TestModuleCopied(t *testing.T) {
	translator := newFakeTranslator("add_one")
	s := New(log.NewTestLogger(t), translator)

	module, ok := s.ModuleFor("add_one")
	assert.True(t, ok)
	module[0] = 'X'

	cached, ok := s.GetCached("add_one")
	assert.True(t, ok)
	assert.Equal(t, []byte("add_one"), cached)
	cached[0] = 'Y'

	module, err := s.Lookup(context.Background(), "add_one")
	assert.NoError(t, err)
	assert.Equal(t, []byte("add_one"), module)

	result, err := s.Translate(context.Background(), "add_one")
	assert.NoError(t, err)
	assert.Equal(t, []byte("add_one"), result.Module)
	assert.Equal(t, 1, translator.callCount("add_one"))
}

func TestCancelledNotCached(t *testing.T) {
	translator := newFakeTranslator("add_one")
	translator.gate = make(chan struct{})
	s := New(log.NewTestLogger(t), translator)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Translate(ctx, "add_one")
	assert.True(t, errors.Is(err, context.Canceled))

	close(translator.gate)
	result, err := s.Translate(context.Background(), "add_one")
	assert.NoError(t, err)
	assert.Equal(t, "add_one", result.Name)
	assert.Equal(t, 2, translator.callCount("add_one"))
}

func TestWarm(t *testing.T) {
	defer goleak.VerifyNone(t)

	translator := newFakeTranslator("a", "b", "c", "d", "e", "broken")
	translator.failing["broken"] = errTranslation
	s := New(log.NewTestLogger(t), translator)

	names := []string{"a", "b", "c", "d", "e", "broken", "missing"}
	assert.NoError(t, s.Warm(context.Background(), names))

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		_, ok := s.GetCached(name)
		assert.True(t, ok)
		assert.Equal(t, 1, translator.callCount(name))
	}
	_, ok := s.GetCached("broken")
	assert.False(t, ok)
	assert.Equal(t, 0, translator.callCount("missing"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(log.NewTestLogger(t), newFakeTranslator("a")).Warm(ctx, []string{"a"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestServicePipeline(t *testing.T) {
	functions := []mocks.Function{
		{
			Name: "add_one",
			Code: []byte{0x89, 0xf8, 0x83, 0xc0, 0x01, 0xc3}, // mov eax, edi; add eax, 1; ret
		},
		{
			Name: "pushes",
			Code: []byte{0x55, 0x5d, 0xc3}, // push rbp; pop rbp; ret
		},
	}

	p := pipeline.New(log.NewTestLogger(t), options.NewTranslation(amd64.SystemVConvention()))
	assert.NoError(t, p.LoadBytes(mocks.BuildELF(elf.ET_REL, 0, functions...)))
	s := New(log.NewTestLogger(t), p)

	module, ok := s.ModuleFor("add_one")
	assert.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d}, module[:4])

	cached, ok := s.GetCached("add_one")
	assert.True(t, ok)
	assert.Equal(t, module, cached)

	_, ok = s.ModuleFor("pushes")
	assert.False(t, ok)
	_, err := s.Lookup(context.Background(), "pushes")
	assert.True(t, errors.Is(err, ErrNotTranslatable))
}
