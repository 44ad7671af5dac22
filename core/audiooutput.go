package calls

import (
	"reflect"

	"github.com/voxfront/voxfront-core/core/audio"
)

// audioOutput normalizes playback clients behind one facade used by
// the playback scheduler.
//
// The facade caches typed capabilities derived from base so the
// scheduling path can route without repeated type assertions.
//
// NOTE: methods do best-effort forwarding and ignore client return
// errors because playback is a non-fatal side effect of the session;
// a chunk the device refuses is simply lost.
type audioOutput struct {
	// base stores the configured output client.
	base audioOutputBase
	// clearable is set when the output client supports flushing
	// buffered-but-unplayed audio.
	clearable AudioOutputClearable
}

func newAudioOutput(client audioOutputBase) *audioOutput {
	audioOutput := audioOutput{}
	audioOutput.Set(client)
	return &audioOutput
}

// Set replaces the configured output client and recomputes
// capabilities. Nil and typed-nil clients are treated as unconfigured.
func (a *audioOutput) Set(client audioOutputBase) {
	if a == nil {
		return
	}

	a.base = nil
	a.clearable = nil

	if isNilAudioOutputBase(client) {
		return
	}
	a.base = client

	if clearable, ok := client.(AudioOutputClearable); ok {
		a.clearable = clearable
	}
}

func (a *audioOutput) isConfigured() bool {
	return a != nil && a.base != nil
}

// SendAudio forwards a chunk to the configured output client. If no
// client is configured, the chunk is dropped.
func (a *audioOutput) SendAudio(audio []byte) {
	if a == nil || a.base == nil {
		return
	}

	if err := a.base.SendAudio(audio); err != nil {
		logger.Warn("audio output rejected chunk", "error", err)
	}
}

// Clear flushes buffered output on the configured client, best effort.
//
// Not every playback engine can revoke audio it has already accepted;
// clients without the capability keep playing what they hold and only
// subsequent scheduling restarts from the interrupt point.
func (a *audioOutput) Clear() {
	if a == nil || a.clearable == nil {
		return
	}

	a.clearable.ClearBuffer()
}

// EncodingInfo returns the active output encoding metadata, falling
// back to the service's fixed playback encoding.
func (a *audioOutput) EncodingInfo() audio.EncodingInfo {
	if a == nil || a.base == nil {
		return audio.GetPlaybackEncodingInfo()
	}

	return a.base.EncodingInfo()
}

// Close releases the underlying device if the client exposes release
// semantics. Clients are expected to make release idempotent.
func (a *audioOutput) Close() {
	if a == nil || a.base == nil {
		return
	}

	if closer, ok := a.base.(interface{ Close() }); ok {
		closer.Close()
	}
}

// isNilAudioOutputBase detects nil and typed-nil interface values so
// Set can avoid storing unusable interface wrappers as configured
// clients.
func isNilAudioOutputBase(client audioOutputBase) bool {
	if client == nil {
		return true
	}

	v := reflect.ValueOf(client)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
