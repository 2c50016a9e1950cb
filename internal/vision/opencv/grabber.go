package opencv

import (
	"context"
	"image"
	"io"
	"os"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/tphakala/faceattend/internal/capture"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

const captureOptionsEnv = "OPENCV_FFMPEG_CAPTURE_OPTIONS"

// frameReader is the part of gocv.VideoCapture the grabber uses.
type frameReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// VideoGrabber reads frames from a device index, file or stream URL through
// gocv.VideoCapture.
//
// A native read cannot be interrupted. Close during a blocked Grab only marks
// the grabber closed; the reading goroutine releases the capture once Read
// returns, so the native handle is never freed under it.
type VideoGrabber struct {
	source string

	mu      sync.Mutex
	vc      frameReader
	frame   gocv.Mat
	reading bool
	closed  bool
}

// NewVideoGrabber creates a grabber for source. A numeric source is treated
// as a device index.
func NewVideoGrabber(source string) *VideoGrabber {
	return &VideoGrabber{source: source}
}

// Open opens the capture. Network streams use UDP transport and a one frame
// buffer.
func (g *VideoGrabber) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	network := capture.IsNetworkSource(g.source)
	if network {
		_ = os.Setenv(captureOptionsEnv, "rtsp_transport;udp")
	}

	var device any = g.source
	if idx, err := strconv.Atoi(g.source); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return errors.New(err).Component("capture").Category(errors.CategoryCamera).Build()
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return errors.Newf("video capture did not open").Component("capture").Category(errors.CategoryCamera).Build()
	}
	if network {
		vc.Set(gocv.VideoCaptureBufferSize, 1)
	}

	return g.attach(vc)
}

// attach installs an opened reader.
func (g *VideoGrabber) attach(r frameReader) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		_ = r.Close()
		return io.ErrClosedPipe
	}
	g.vc = r
	g.frame = gocv.NewMat()
	return nil
}

// Grab blocks until the next frame. A failed read ends the stream.
func (g *VideoGrabber) Grab() (image.Image, error) {
	g.mu.Lock()
	if g.closed || g.vc == nil {
		g.mu.Unlock()
		return nil, io.ErrClosedPipe
	}
	g.reading = true
	vc := g.vc
	g.mu.Unlock()

	var (
		img image.Image
		err = io.EOF
	)
	if vc.Read(&g.frame) && !g.frame.Empty() {
		img, err = g.frame.ToImage()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.reading = false
	if g.closed {
		if relErr := g.release(); relErr != nil {
			capture.GetLogger().Warn("video capture release failed", logger.Error(relErr))
		}
		return nil, io.ErrClosedPipe
	}
	return img, err
}

// Close releases the capture, or leaves that to the in-flight Grab. Safe to
// call more than once.
func (g *VideoGrabber) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.reading {
		return nil
	}
	return g.release()
}

// release frees the native capture. Callers hold mu.
func (g *VideoGrabber) release() error {
	if g.vc == nil {
		return nil
	}
	err := g.vc.Close()
	_ = g.frame.Close()
	g.vc = nil
	return err
}
