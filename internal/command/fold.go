package command

import "fmt"

// FoldShift is the bit offset at which the session tag is added to each
// folded value.
const FoldShift = 20

const (
	// MaxFoldValue bounds command and parameter values that fold losslessly.
	MaxFoldValue = 1<<FoldShift - 1
	// MaxSession is the largest session id whose tag fits in int32. The tag
	// is session+1 so that session 0 stays distinguishable from no session.
	MaxSession SessionID = (1 << (31 - FoldShift)) - 2
)

// Folded is the legacy packed triple some hardware services expect: the
// session tag rides in the high bits of the command and both parameters.
type Folded struct {
	Command int32
	Param1  int32
	Param2  int32
}

func foldOffset(id SessionID) int32 {
	return int32(id+1) << FoldShift
}

// Fold packs the envelope. Without a foldable session the values pass through.
func (e Envelope) Fold() Folded {
	f := Folded{Command: int32(e.Op), Param1: e.Param1, Param2: e.Param2}
	if e.Session.Foldable() {
		off := foldOffset(e.Session)
		f.Command += off
		f.Param1 += off
		f.Param2 += off
	}
	return f
}

// Foldable reports whether Fold followed by Unfold recovers the envelope.
func (e Envelope) Foldable() bool {
	in := func(v int32) bool { return v >= 0 && v <= MaxFoldValue }
	if !in(int32(e.Op)) || !in(e.Param1) || !in(e.Param2) {
		return false
	}
	return e.Session == NoSession || e.Session.Foldable()
}

// Unfold inverts Fold. The source tag is not part of the packed form.
func Unfold(f Folded) (Envelope, error) {
	if f.Command < 0 {
		return Envelope{}, fmt.Errorf("command: negative folded command %d", f.Command)
	}
	tag := f.Command >> FoldShift
	if tag == 0 {
		return Envelope{Op: Opcode(f.Command), Param1: f.Param1, Param2: f.Param2, Session: NoSession}, nil
	}
	session := SessionID(tag - 1)
	off := foldOffset(session)
	return Envelope{
		Op:      Opcode(f.Command - off),
		Param1:  f.Param1 - off,
		Param2:  f.Param2 - off,
		Session: session,
	}, nil
}
