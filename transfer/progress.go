package transfer

import "io"

// progressReader wraps an io.Reader, reporting bytes read as they're
// consumed so transfer progress can be tracked without buffering.
type progressReader struct {
	r        io.Reader
	reporter func(n int64)
}

var _ io.Reader = (*progressReader)(nil)

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.r.Read(p)
	if n > 0 && pr.reporter != nil {
		pr.reporter(int64(n))
	}
	return
}
