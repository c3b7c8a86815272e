// Package libystest provides a recording stub of the libys entry points for
// tests of code that embeds goys.
package libystest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/caffeineduck/goys/libys"
)

// Responder produces the raw response for one load_ys_to_json call.
// Returning ok == false simulates a NULL result.
type Responder func(input string) (raw string, ok bool)

// Stats counts the entry-point calls a Library has received.
type Stats struct {
	Creates   int
	TearDowns int
	Loads     int
}

// Library is an in-memory libys.Library. The zero value is not usable;
// create one with New.
type Library struct {
	// CreateCode is returned by CreateIsolate. Non-zero fails creation.
	CreateCode int32
	// TearDownCode is returned by TearDownIsolate.
	TearDownCode int32
	// CallErr, if set, is returned by every entry point as a call failure.
	CallErr error

	respond Responder

	mu     sync.Mutex
	stats  Stats
	next   uintptr
	live   map[uintptr]bool
	inputs []string
}

// New returns a stub that answers with respond. A nil respond uses Flat.
func New(respond Responder) *Library {
	if respond == nil {
		respond = Flat
	}
	return &Library{
		respond: respond,
		live:    make(map[uintptr]bool),
	}
}

// Loader returns a libys.Loader that always hands out l.
func (l *Library) Loader() libys.Loader {
	return func(path string) (libys.Library, error) {
		return l, nil
	}
}

func (l *Library) CreateIsolate() (libys.IsolateHandle, int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.Creates++
	if l.CallErr != nil {
		return libys.IsolateHandle{}, 0, l.CallErr
	}
	if l.CreateCode != 0 {
		return libys.IsolateHandle{}, l.CreateCode, nil
	}

	l.next++
	thread := l.next
	l.live[thread] = true
	return libys.IsolateHandle{Isolate: 0x1000 + thread, Thread: thread}, 0, nil
}

func (l *Library) TearDownIsolate(thread uintptr) (int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.TearDowns++
	if l.CallErr != nil {
		return 0, l.CallErr
	}
	if !l.live[thread] {
		return -1, nil
	}
	delete(l.live, thread)
	return l.TearDownCode, nil
}

func (l *Library) LoadYSToJSON(thread uintptr, input []byte) ([]byte, error) {
	l.mu.Lock()
	l.stats.Loads++
	l.inputs = append(l.inputs, string(input))
	callErr := l.CallErr
	live := l.live[thread]
	l.mu.Unlock()

	if callErr != nil {
		return nil, callErr
	}
	if !live {
		return nil, fmt.Errorf("thread %#x is not attached", thread)
	}

	raw, ok := l.respond(string(input))
	if !ok {
		return nil, nil
	}
	return []byte(raw), nil
}

// Stats returns a snapshot of the call counters.
func (l *Library) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Live returns the number of isolates created and not yet torn down.
func (l *Library) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// Inputs returns every input passed to LoadYSToJSON, in call order.
func (l *Library) Inputs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.inputs...)
}

// Flat answers like libys for documents made only of "key: value" lines:
// a data envelope mapping each key to its string value. Any other line
// yields an error envelope.
func Flat(input string) (string, bool) {
	data := make(map[string]string)
	for i, line := range strings.Split(input, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok || key == "" || strings.HasPrefix(key, " ") || strings.TrimSpace(value) == "" {
			return ErrorEnvelope(fmt.Sprintf("Parse error at line %d: %q", i+1, line)), true
		}
		data[key] = strings.TrimSpace(value)
	}
	return DataEnvelope(data), true
}

// Raw answers every call with raw.
func Raw(raw string) Responder {
	return func(string) (string, bool) {
		return raw, true
	}
}

// Null answers every call with NULL.
func Null(string) (string, bool) {
	return "", false
}

// DataEnvelope returns {"data": v}.
func DataEnvelope(v any) string {
	b, err := json.Marshal(map[string]any{"data": v})
	if err != nil {
		panic(err)
	}
	return string(b)
}

// ErrorEnvelope returns {"error": {"cause": cause}}.
func ErrorEnvelope(cause string) string {
	b, err := json.Marshal(map[string]any{
		"error": map[string]any{"cause": cause, "type": "compile"},
	})
	if err != nil {
		panic(err)
	}
	return string(b)
}
