package pipeline

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswatch/internal/logging"
)

func TestClassifyDevice(t *testing.T) {
	tests := map[string]SourceKind{
		"rtsp://10.0.0.5/stream":        SourceRTSP,
		"http://cam.local/snapshot.jpg": SourceHTTPImage,
		"http://cam.local/image":        SourceHTTPImage,
		"https://cam.local/live.mjpg":   SourceHTTPStream,
		"/dev/video2":                   SourceV4L2,
		"0":                             SourceV4L2,
		"videos/door.mp4":               SourceFile,
	}
	for device, want := range tests {
		assert.Equal(t, want, ClassifyDevice(device), device)
	}
}

func TestFFmpegArgs(t *testing.T) {
	tail := []string{"-f", "image2pipe", "-vcodec", "mjpeg", "-r", "15", "-q:v", "5", "-"}

	tests := []struct {
		name   string
		device string
		w, h   int
		head   []string
	}{
		{
			name:   "rtsp scaled",
			device: "rtsp://cam/1",
			w:      640, h: 480,
			head: []string{"-rtsp_transport", "tcp", "-i", "rtsp://cam/1", "-vf", "scale=640:480"},
		},
		{
			name:   "camera index",
			device: "0",
			w:      640, h: 480,
			head: []string{"-f", "v4l2", "-video_size", "640x480", "-framerate", "15", "-i", "/dev/video0"},
		},
		{
			name:   "file unscaled",
			device: "clips/../door.mp4",
			head:   []string{"-re", "-i", "door.mp4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := append(append([]string{}, tt.head...), tail...)
			assert.Equal(t, want, ffmpegArgs(tt.device, 15, tt.w, tt.h))
		})
	}
}

func TestExtractJPEGFrame(t *testing.T) {
	buf := []byte{0x00, 0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9, 0xFF, 0xD8, 0x03}

	frame := extractJPEGFrame(&buf)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}, frame)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x03}, buf)

	// Incomplete frame stays buffered
	assert.Nil(t, extractJPEGFrame(&buf))
	buf = append(buf, 0xFF, 0xD9)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x03, 0xFF, 0xD9}, extractJPEGFrame(&buf))
	assert.Empty(t, buf)
}

func TestFFmpegFrameProvider_HTTPImagePolling(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0x42, 0xFF, 0xD9}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(jpeg)
	}))
	defer srv.Close()

	p := NewFFmpegFrameProvider(logging.NewNop())
	require.NoError(t, p.Start("snap", srv.URL+"/snapshot.jpg", 10, 0, 0))
	defer p.Stop("snap")
	assert.Error(t, p.Start("snap", srv.URL+"/snapshot.jpg", 10, 0, 0))

	sub, err := p.Subscribe("snap", 2)
	require.NoError(t, err)

	select {
	case frame := <-sub.Channel:
		assert.Equal(t, "snap", frame.SourceID)
		assert.Equal(t, jpeg, frame.Data)
		assert.NotZero(t, frame.Seq)
	case <-time.After(3 * time.Second):
		t.Fatal("no frame received")
	}

	assert.True(t, p.IsRunning("snap"))
	assert.NotZero(t, p.GetStats("snap").FramesCaptured)

	p.Unsubscribe(sub)
	select {
	case <-sub.Done:
	default:
		t.Fatal("unsubscribe must close Done")
	}
}

func TestFFmpegFrameProvider_MissingFileFinishes(t *testing.T) {
	p := NewFFmpegFrameProvider(logging.NewNop())
	require.NoError(t, p.Start("file", t.TempDir()+"/missing.mp4", 15, 0, 0))

	assert.Eventually(t, func() bool {
		stats := p.GetStats("file")
		return stats != nil && stats.Finished && !p.IsRunning("file")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop("file"))
	assert.Error(t, p.Stop("file"))
	_, err := p.Subscribe("file", 1)
	assert.Error(t, err)
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestFrameSize(t *testing.T) {
	w, h := frameSize(encodeJPEG(t, 1280, 720), 640, 480)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	w, h = frameSize([]byte{0xFF, 0xD8, 0x42, 0xFF, 0xD9}, 640, 480)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestFFmpegFrameProvider_ReportsDecodedFrameSize(t *testing.T) {
	frameData := encodeJPEG(t, 1920, 1080)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(frameData)
	}))
	defer srv.Close()

	p := NewFFmpegFrameProvider(logging.NewNop())
	require.NoError(t, p.Start("hd", srv.URL+"/snapshot.jpg", 10, 640, 480))
	defer p.Stop("hd")

	sub, err := p.Subscribe("hd", 2)
	require.NoError(t, err)
	defer p.Unsubscribe(sub)

	select {
	case frame := <-sub.Channel:
		assert.Equal(t, 1920, frame.Width)
		assert.Equal(t, 1080, frame.Height)
	case <-time.After(3 * time.Second):
		t.Fatal("no frame received")
	}
}
