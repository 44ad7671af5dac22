// Package miniaudio provides microphone capture and speaker playback
// clients on top of the malgo bindings, matching the fixed encodings
// of the live speech service: 16 kHz mono PCM16 in, 24 kHz mono PCM16
// out.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/voxfront/voxfront-core/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is
	// an ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient

	closeOnce sync.Once
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("miniaudio context initialization failed: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
	}

	if err := client.playbackClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.captureClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) Stream(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) StartPlayback(_ context.Context) error {
	return c.playbackClient.Start()
}

func (c *Client) StopPlayback() error {
	return c.playbackClient.Stop()
}

// Close releases both devices and the context. Safe to call twice:
// session teardown releases the capture and playback sides
// independently, which may resolve to the same client.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.captureClient.Uninit()
		_ = c.playbackClient.Uninit()
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
	})
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playbackClient.SendAudio(audio)
}

func (c *Client) ClearBuffer() {
	c.playbackClient.ClearBuffer()
}

// EncodingInfo reports the capture-side encoding; the playback side is
// fixed at the service's output rate.
func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetCaptureEncodingInfo()
}
