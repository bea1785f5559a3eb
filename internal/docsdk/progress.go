package docsdk

import (
	"io"
	"time"
)

const progressInterval = 500 * time.Millisecond

// progressReader wraps an io.Reader and reports the bytes read so far.
type progressReader struct {
	reader   io.Reader
	read     int64
	total    int64
	callback ProgressCallback
	onRead   func(n int64)
	lastCall time.Time
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.onRead != nil {
			pr.onRead(int64(n))
		}
	}

	if pr.callback != nil {
		now := time.Now()
		if now.Sub(pr.lastCall) > progressInterval || err == io.EOF {
			pr.callback(pr.read, pr.total)
			pr.lastCall = now
		}
	}

	return n, err
}

// progressWriter is the io.Writer counterpart of progressReader.
type progressWriter struct {
	writer   io.Writer
	written  int64
	total    int64
	callback ProgressCallback
	onWrite  func(n int64)
	lastCall time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	if n > 0 {
		pw.written += int64(n)
		if pw.onWrite != nil {
			pw.onWrite(int64(n))
		}
	}

	if pw.callback != nil {
		now := time.Now()
		if now.Sub(pw.lastCall) > progressInterval || (pw.total > 0 && pw.written >= pw.total) {
			pw.callback(pw.written, pw.total)
			pw.lastCall = now
		}
	}

	return n, err
}

// flush reports the final count regardless of throttling.
func (pw *progressWriter) flush() {
	if pw.callback != nil {
		pw.callback(pw.written, pw.total)
	}
}
