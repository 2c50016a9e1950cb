package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/privacy"
)

// maxJPEGSize caps a single MJPEG frame so a corrupt stream cannot grow the
// buffer without bound.
const maxJPEGSize = 16 << 20

// FFmpegGrabber runs ffmpeg and decodes the MJPEG frames it writes to stdout.
type FFmpegGrabber struct {
	ffmpegPath string
	source     string

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr bytes.Buffer
}

// NewFFmpegGrabber creates a grabber for a URL, file or device index.
func NewFFmpegGrabber(ffmpegPath, source string) *FFmpegGrabber {
	return &FFmpegGrabber{ffmpegPath: ffmpegPath, source: source}
}

// buildFFmpegArgs returns the ffmpeg arguments for source. Network sources get
// the lowest latency options ffmpeg offers.
func buildFFmpegArgs(source string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	input := source
	switch {
	case IsNetworkSource(source):
		if strings.HasPrefix(strings.ToLower(source), "rtsp") {
			args = append(args, "-rtsp_transport", "udp")
		}
		args = append(args, "-fflags", "nobuffer", "-flags", "low_delay")
	case isDeviceIndex(source):
		switch runtime.GOOS {
		case "linux":
			args = append(args, "-f", "v4l2")
			input = "/dev/video" + source
		case "darwin":
			args = append(args, "-f", "avfoundation")
		case "windows":
			args = append(args, "-f", "dshow")
		}
	}

	return append(args,
		"-i", input,
		"-an",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

func isDeviceIndex(source string) bool {
	n, err := strconv.Atoi(source)
	return err == nil && n >= 0
}

// Open starts the ffmpeg process. The process lives until Close, not until
// ctx is done.
func (g *FFmpegGrabber) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, g.ffmpegPath, buildFFmpegArgs(g.source)...) //nolint:gosec // G204: path from validated settings, args built internally
	setupProcessGroup(cmd)
	g.stderr.Reset()
	cmd.Stderr = &g.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return g.processError(err, "stdout_pipe")
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return g.processError(err, "start_process")
	}

	g.cmd, g.cancel, g.stdout = cmd, cancel, stdout
	g.reader = bufio.NewReaderSize(stdout, 256<<10)
	return nil
}

func (g *FFmpegGrabber) processError(err error, op string) error {
	return errors.New(fmt.Errorf("ffmpeg: %w", err)).
		Component("capture").
		Category(errors.CategoryCommand).
		Context("operation", op).
		Context("url", privacy.SanitizeStreamURL(g.source)).
		Build()
}

// Grab reads and decodes the next JPEG from ffmpeg's output.
func (g *FFmpegGrabber) Grab() (image.Image, error) {
	g.mu.Lock()
	r := g.reader
	g.mu.Unlock()
	if r == nil {
		return nil, io.ErrClosedPipe
	}

	data, err := readJPEG(r)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryFileParsing).
			Context("frame_bytes", len(data)).
			Build()
	}
	return img, nil
}

// Close kills ffmpeg and its process group.
func (g *FFmpegGrabber) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cmd == nil {
		return nil
	}
	_ = killProcessGroup(g.cmd)
	g.cancel()
	_ = g.stdout.Close()
	_ = g.cmd.Wait()

	if tail := g.stderr.String(); tail != "" {
		if len(tail) > 512 {
			tail = tail[len(tail)-512:]
		}
		GetLogger().Debug("ffmpeg exited",
			logger.String("url", privacy.SanitizeStreamURL(g.source)),
			logger.String("stderr", privacy.ScrubMessage(tail)))
	}
	g.cmd, g.reader = nil, nil
	return nil
}

// readJPEG returns the next complete JPEG (SOI to EOI) from r. Bytes before
// the SOI marker are skipped.
func readJPEG(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xFF {
			continue
		}
		next, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if next == 0xD8 {
			break
		}
		if next == 0xFF {
			_ = r.UnreadByte()
		}
	}

	buf := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		buf = append(buf, b)
		if b == 0xD9 && buf[len(buf)-2] == 0xFF {
			return buf, nil
		}
		if len(buf) > maxJPEGSize {
			return nil, fmt.Errorf("mjpeg frame exceeds %d bytes", maxJPEGSize)
		}
	}
}
