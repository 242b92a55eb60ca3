package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswatch/internal/counting"
	"crosswatch/internal/logging"
	"crosswatch/internal/session"
)

const walkOut = `
# one person walks down across y=240 while holding a phone
{"width":640,"height":480,"detections":[{"class":"OUT","confidence":0.9,"bbox":{"x1":300,"y1":150,"x2":340,"y2":250}},{"class":"MOBILE","confidence":0.8,"bbox":{"x1":310,"y1":180,"x2":320,"y2":200}}],"faces":[{"name":"Alice","confidence":0.7,"bbox":{"x1":305,"y1":150,"x2":330,"y2":175}}]}
{"width":640,"height":480,"detections":[{"class":"OUT","confidence":0.9,"bbox":{"x1":300,"y1":180,"x2":340,"y2":280}},{"class":"MOBILE","confidence":0.8,"bbox":{"x1":310,"y1":210,"x2":320,"y2":230}}],"faces":[{"name":"Alice","confidence":0.9,"bbox":{"x1":305,"y1":180,"x2":330,"y2":205}}]}
{"width":640,"height":480,"detections":[{"class":"OUT","confidence":0.9,"bbox":{"x1":300,"y1":220,"x2":340,"y2":320}}],"faces":[{"name":"Unknown","confidence":0.2,"bbox":{"x1":305,"y1":220,"x2":330,"y2":245}}]}
`

func TestReplay_CountsAlertsAndRecognitions(t *testing.T) {
	summary, err := replay(strings.NewReader(walkOut), session.DefaultConfig(), 15, logging.NewNop())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.SessionID)
	assert.Equal(t, uint64(3), summary.Frames)
	assert.Equal(t, 0, summary.In)
	assert.Equal(t, 1, summary.Out)
	assert.Equal(t, "horizontal(y=240)", summary.Boundary)

	require.Len(t, summary.Crossings, 1)
	assert.Equal(t, counting.DirectionOut, summary.Crossings[0].Direction)

	require.Len(t, summary.Alerts, 1)
	assert.Equal(t, uint64(1), summary.Alerts[0].FrameIndex)
	assert.Equal(t, 2, summary.Alerts[0].Consecutive)

	require.Len(t, summary.Recognitions, 1)
	assert.Equal(t, "Alice", summary.Recognitions[0].Name)
	assert.Equal(t, uint64(0), summary.Recognitions[0].FrameIndex)
}

func TestReplay_SpacesUntimedFrames(t *testing.T) {
	input := `{"width":640,"height":480}
{"width":640,"height":480}
{"width":640,"height":480,"detections":[{"class":"MOBILE","bbox":{"x1":1,"y1":1,"x2":2,"y2":2}}]}
{"width":640,"height":480,"detections":[{"class":"MOBILE","bbox":{"x1":1,"y1":1,"x2":2,"y2":2}}]}
`
	summary, err := replay(strings.NewReader(input), session.DefaultConfig(), 10, logging.NewNop())
	require.NoError(t, err)

	require.Len(t, summary.Alerts, 1)
	first := summary.Alerts[0].Time
	assert.Equal(t, int64(300), first.UnixMilli())
}

func TestReplay_Empty(t *testing.T) {
	summary, err := replay(strings.NewReader(""), session.DefaultConfig(), 15, logging.NewNop())
	require.NoError(t, err)

	assert.Zero(t, summary.Frames)
	assert.Equal(t, "unset", summary.Boundary)
	assert.NotNil(t, summary.Crossings)
	assert.NotNil(t, summary.Alerts)
	assert.NotNil(t, summary.Recognitions)
}

func TestReplay_BadLine(t *testing.T) {
	_, err := replay(strings.NewReader("{\"width\":640}\nnot json\n"), session.DefaultConfig(), 15, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
