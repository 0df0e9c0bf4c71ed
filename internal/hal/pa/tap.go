package pa

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Tap records the samples flowing through a patch to a 32-bit WAV file.
// Write is called from the audio callback; Start and Stop from elsewhere.
type Tap struct {
	isRecording int32 // Atomic flag for thread-safe state

	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion
}

// StartTap creates filename and begins recording.
func StartTap(filename string, sampleRate, channels, framesPerBuffer int) (*Tap, error) {
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid tap format %d Hz x %d", sampleRate, channels)
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	t := &Tap{
		outputFile: file,
		wavEncoder: wav.NewEncoder(file, sampleRate, 32, channels, 1),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: 32,
			Data:           make([]int, framesPerBuffer*channels),
		},
	}
	atomic.StoreInt32(&t.isRecording, 1)
	return t, nil
}

// Recording reports whether the tap still accepts samples.
func (t *Tap) Recording() bool {
	return atomic.LoadInt32(&t.isRecording) == 1
}

// Write appends interleaved samples.
func (t *Tap) Write(samples []int32) error {
	if !t.Recording() {
		return nil
	}
	if cap(t.sampleBuf.Data) < len(samples) {
		t.sampleBuf.Data = make([]int, len(samples))
	}
	t.sampleBuf.Data = t.sampleBuf.Data[:len(samples)]
	for i, sample := range samples {
		t.sampleBuf.Data[i] = int(sample)
	}
	return t.wavEncoder.Write(t.sampleBuf)
}

// Stop finalizes the WAV header and closes the file. The audio callback must
// no longer call Write.
func (t *Tap) Stop() error {
	if !atomic.CompareAndSwapInt32(&t.isRecording, 1, 0) {
		return nil
	}
	if err := t.wavEncoder.Close(); err != nil {
		t.outputFile.Close()
		return err
	}
	return t.outputFile.Close()
}
