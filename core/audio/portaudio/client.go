// Package portaudio provides an alternate microphone client for
// hosts where miniaudio is unavailable. Capture only: the input and
// output sides of a live call run at different sample rates, and a
// single portaudio stream is fixed to one.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/voxfront/voxfront-core/core/audio"
)

const defaultBlockSize = 4096

type Client struct {
	blockSize int
	stream    *portaudio.Stream

	in []int16

	closeOnce sync.Once
}

func NewClient(blockSize int) (*Client, error) {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, blockSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.CaptureSampleRate, blockSize, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		blockSize: blockSize,
		stream:    stream,
		in:        in,
	}, nil
}

// Stream reads fixed-size blocks until the context is cancelled,
// handing each block to onAudio as little-endian PCM16 bytes.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.stream.Read(); err != nil {
				return fmt.Errorf("failed to read from portaudio stream: %w", err)
			}

			audioBuffer := bytes.Buffer{}
			if err := binary.Write(&audioBuffer, binary.LittleEndian, c.in); err != nil {
				return fmt.Errorf("failed to encode captured block: %w", err)
			}
			onAudio(audioBuffer.Bytes())
		}
	}
}

// Close releases the stream and the portaudio runtime. Safe to call
// twice.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.stream.Close()
		_ = portaudio.Terminate()
	})
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetCaptureEncodingInfo()
}
