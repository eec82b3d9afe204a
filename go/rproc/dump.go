package rproc

import (
	"io"

	"github.com/pkg/errors"

	"github.com/ohadbc/upstream-rpmsg/go/rproc/trace"
)

// DumpTraces snapshots every live trace buffer into w. Useful right
// after a crash report, before the last Put tears the buffers down.
// w is closed on return.
func (p *RemoteProc) DumpTraces(w io.WriteCloser) error {
	tw, err := trace.NewWriter(w, p.name)
	if err != nil {
		return err
	}
	defer tw.Close()
	for i := 0; ; i++ {
		b, ok := p.TraceBuf(i)
		if !ok {
			break
		}
		if err := tw.Snap(i, b); err != nil {
			return errors.Wrapf(err, "trace buffer %d", i)
		}
	}
	return nil
}
