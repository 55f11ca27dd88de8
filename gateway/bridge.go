package gateway

import (
	"sync"
	"time"
)

// HostBridge is what the host container lets the app do. A plain browser
// has no host, see NoopBridge.
type HostBridge interface {
	// Embedded reports whether the app runs inside the host webview
	Embedded() bool
	Haptic(style string)
	// Navigate moves within the app, keeping the host frame
	Navigate(path string)
	OpenExternal(url string)
	OpenTab(url string)
	Close()
}

// DelayedCloser is implemented by bridges that schedule the close themselves
type DelayedCloser interface {
	CloseAfter(delay time.Duration)
}

// NoopBridge is a non-embedded host that ignores every directive
type NoopBridge struct{}

func (NoopBridge) Embedded() bool      { return false }
func (NoopBridge) Haptic(string)       {}
func (NoopBridge) Navigate(string)     {}
func (NoopBridge) OpenExternal(string) {}
func (NoopBridge) OpenTab(string)      {}
func (NoopBridge) Close()              {}

// Directive is one recorded host instruction
type Directive struct {
	Action     string `json:"action"`
	Target     string `json:"target,omitempty"`
	DelayMilli int64  `json:"delay_ms,omitempty"`
}

// Directive actions
const (
	ActionHaptic       = "haptic"
	ActionNavigate     = "navigate"
	ActionOpenExternal = "open_external"
	ActionOpenTab      = "open_tab"
	ActionClose        = "close"
)

// RecordingBridge collects directives so the API can hand them to the front end
type RecordingBridge struct {
	embedded bool

	mu         sync.Mutex
	directives []Directive
}

func NewRecordingBridge(embedded bool) *RecordingBridge {
	return &RecordingBridge{embedded: embedded}
}

func (b *RecordingBridge) Embedded() bool {
	return b.embedded
}

func (b *RecordingBridge) Haptic(style string) {
	b.record(Directive{Action: ActionHaptic, Target: style})
}

func (b *RecordingBridge) Navigate(path string) {
	b.record(Directive{Action: ActionNavigate, Target: path})
}

func (b *RecordingBridge) OpenExternal(url string) {
	b.record(Directive{Action: ActionOpenExternal, Target: url})
}

func (b *RecordingBridge) OpenTab(url string) {
	b.record(Directive{Action: ActionOpenTab, Target: url})
}

func (b *RecordingBridge) Close() {
	b.record(Directive{Action: ActionClose})
}

// CloseAfter leaves the delay to the front end
func (b *RecordingBridge) CloseAfter(delay time.Duration) {
	b.record(Directive{Action: ActionClose, DelayMilli: delay.Milliseconds()})
}

// Directives returns what was recorded so far
func (b *RecordingBridge) Directives() []Directive {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Directive(nil), b.directives...)
}

func (b *RecordingBridge) record(d Directive) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.directives = append(b.directives, d)
}
