package command

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldUnfoldRoundTrip(t *testing.T) {
	sessions := []SessionID{NoSession, 0, 1, 3, 7, 255, MaxSession}
	values := []int32{0, 1, 2, 1000, 65535, MaxFoldValue}
	ops := []Opcode{OpStartDecode, OpOpenDecoder, OpCloseDecoder, OpClientDied, MaxFoldValue}

	for _, s := range sessions {
		for _, op := range ops {
			for _, p1 := range values {
				for _, p2 := range []int32{0, MaxFoldValue} {
					env := Envelope{Op: op, Param1: p1, Param2: p2, Session: s}
					require.True(t, env.Foldable(), "%v", env)

					got, err := Unfold(env.Fold())
					require.NoError(t, err)
					if got != env {
						t.Fatalf("round trip mismatch: folded %+v, got %+v want %+v", env.Fold(), got, env)
					}
				}
			}
		}
	}
}

func TestFoldCarriesSessionInHighBits(t *testing.T) {
	env := Envelope{Op: OpSetMute, Param1: 1, Param2: 0, Session: 2}
	f := env.Fold()
	off := int32(3) << FoldShift
	assert.Equal(t, Folded{Command: int32(OpSetMute) + off, Param1: 1 + off, Param2: off}, f)

	plain := Envelope{Op: OpSetMute, Param1: 1, Session: NoSession}.Fold()
	assert.Equal(t, Folded{Command: int32(OpSetMute), Param1: 1}, plain)
}

func TestFoldable(t *testing.T) {
	assert.False(t, Envelope{Op: OpSetVolume, Param1: -1, Session: NoSession}.Foldable())
	assert.False(t, Envelope{Op: OpSetVolume, Param1: MaxFoldValue + 1, Session: 1}.Foldable())
	assert.False(t, Envelope{Op: OpSetVolume, Session: MaxSession + 1}.Foldable())
	assert.True(t, Envelope{Op: OpSetVolume, Session: MaxSession}.Foldable())
}

func TestUnfoldRejectsNegative(t *testing.T) {
	_, err := Unfold(Folded{Command: -5})
	assert.Error(t, err)
}

func TestOpcodeNames(t *testing.T) {
	for op := OpStartDecode; op <= OpClientDied; op++ {
		got, ok := ParseOpcode(op.String())
		require.True(t, ok, "opcode %d has no name", op)
		assert.Equal(t, op, got)
	}
	assert.Equal(t, "op(99)", Opcode(99).String())
}

func TestMuxPreservesPerProducerOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got = map[Source][]int32{}
	)
	m := NewMux(HandlerFunc(func(env Envelope) error {
		mu.Lock()
		got[env.Source] = append(got[env.Source], env.Param1)
		mu.Unlock()
		return nil
	}))

	const n = 200
	var wg sync.WaitGroup
	for _, src := range []Source{SourceTunerHAL, SourceTvInput} {
		p := m.Producer(src)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := int32(0); i < n; i++ {
				assert.NoError(t, p.Emit(OpSetVolume, i, 0, NoSession))
			}
		}()
	}
	wg.Wait()

	for _, src := range []Source{SourceTunerHAL, SourceTvInput} {
		require.Len(t, got[src], n)
		for i, v := range got[src] {
			assert.Equal(t, int32(i), v)
		}
	}
	assert.Equal(t, uint64(n), m.Counts()[SourceTvInput])
	assert.Same(t, m.Producer(SourceTunerHAL), m.Producer(SourceTunerHAL))
}

func TestMuxEmitFoldedAndClose(t *testing.T) {
	var last Envelope
	m := NewMux(HandlerFunc(func(env Envelope) error {
		last = env
		return nil
	}))
	p := m.Producer(SourceTvInput)

	want := Envelope{Op: OpOpenDecoder, Param1: 5, Param2: 9, Session: 4, Source: SourceTvInput}
	require.NoError(t, p.EmitFolded(want.Fold()))
	assert.Equal(t, want, last)

	require.NoError(t, p.Emit(OpStopDecode, 0, 0, -7))
	assert.Equal(t, NoSession, last.Session)

	m.Close()
	assert.ErrorIs(t, p.Emit(OpStopDecode, 0, 0, NoSession), ErrMuxClosed)
}

func TestSessionValidityIsIndependentOfFold(t *testing.T) {
	big := MaxSession + 1
	assert.True(t, big.Valid())
	assert.False(t, big.Foldable())
	assert.False(t, NoSession.Valid())
	assert.Equal(t, "open_decoder(0,0) session=2047 from tuner_hal", Envelope{Op: OpOpenDecoder, Session: big}.String())
}
