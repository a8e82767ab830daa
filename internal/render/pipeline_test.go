package render

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func htmlJob() Job {
	return Job{
		Content:   Content{Kind: ContentHTML, Markup: "<p>x</p>"},
		Geometry:  Geometry{Width: 100, Height: 50},
		DPR:       2,
		Format:    FormatPNG,
		Quality:   90,
		WaitUntil: WaitNetworkIdle,
		Timeout:   time.Second,
	}
}

func TestPipelineStepOrder(t *testing.T) {
	t.Parallel()

	page := &fakePage{}
	data, err := NewPipeline(nil).Run(context.Background(), page, htmlJob())
	require.NoError(t, err)
	assert.Equal(t, []byte("image"), data)
	assert.Equal(t, []string{"viewport", "media", "setContent", "viewport", "dpr", "capture"}, page.Calls())
}

func TestPipelineURLWithCSSAndSelector(t *testing.T) {
	t.Parallel()

	job := htmlJob()
	job.Content = Content{Kind: ContentURL, Target: "https://example.com", CSS: "body{}"}
	job.WaitFor = &WaitFor{Selector: "#ready"}

	page := &fakePage{}
	_, err := NewPipeline(nil).Run(context.Background(), page, job)
	require.NoError(t, err)
	assert.Equal(t, []string{"viewport", "media", "navigate", "addStyle", "waitVisible", "viewport", "dpr", "capture"}, page.Calls())
}

func TestPipelineCaptureOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Job)
		quality *int
		full    bool
		clip    bool
		omit    bool
	}{
		{"png has no quality", func(j *Job) {}, nil, false, false, false},
		{"jpeg quality", func(j *Job) { j.Format = FormatJPEG; j.Quality = 40 }, intPtr(40), false, false, false},
		{"webp default quality", func(j *Job) { j.Format = FormatWebP; j.Quality = 0 }, intPtr(90), false, false, false},
		{"full page", func(j *Job) { j.FullPage = true }, nil, true, false, false},
		{"clip beats full page", func(j *Job) {
			j.FullPage = true
			j.Geometry.Clip = &Clip{Width: 10, Height: 10}
		}, nil, false, true, false},
		{"omit background with jpeg accepted", func(j *Job) {
			j.Format = FormatJPEG
			j.OmitBackground = true
		}, intPtr(90), false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := htmlJob()
			tt.mutate(&job)
			page := &fakePage{}
			_, err := NewPipeline(nil).Run(context.Background(), page, job)
			require.NoError(t, err)

			opts := page.capture
			assert.Equal(t, tt.quality, opts.Quality)
			assert.Equal(t, tt.full, opts.FullPage)
			assert.Equal(t, tt.clip, opts.Clip != nil)
			assert.Equal(t, tt.omit, opts.OmitBackground)
		})
	}
}

func TestPipelineLoadTimeout(t *testing.T) {
	t.Parallel()

	job := htmlJob()
	job.Timeout = 20 * time.Millisecond
	page := &fakePage{blockLoad: true}
	_, err := NewPipeline(nil).Run(context.Background(), page, job)
	require.ErrorIs(t, err, ErrContentLoadTimeout)
	assert.NotContains(t, page.Calls(), "capture")
}

func TestPipelineSelectorTimeout(t *testing.T) {
	t.Parallel()

	job := htmlJob()
	job.WaitFor = &WaitFor{Selector: "#never"}
	page := &fakePage{waitErr: context.DeadlineExceeded}
	_, err := NewPipeline(nil).Run(context.Background(), page, job)
	require.ErrorIs(t, err, ErrSelectorWaitTimeout)
}

func TestPipelineDelay(t *testing.T) {
	t.Parallel()

	job := htmlJob()
	job.WaitFor = &WaitFor{Delay: intPtr(30)}
	start := time.Now()
	_, err := NewPipeline(nil).Run(context.Background(), &fakePage{}, job)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPipelineDelayLongerThanTimeout(t *testing.T) {
	t.Parallel()

	job := htmlJob()
	job.Timeout = 40 * time.Millisecond
	job.WaitFor = &WaitFor{Delay: intPtr(120)}
	page := &fakePage{}

	data, err := NewPipeline(nil).Run(context.Background(), page, job)
	require.NoError(t, err)
	assert.Equal(t, []byte("image"), data)
	// Capture runs on a fresh budget rather than what the delay left over.
	assert.Greater(t, page.captureBudget, 20*time.Millisecond)
	assert.LessOrEqual(t, page.captureBudget, job.Timeout)
}

func TestPipelineDelayEndsOnCancel(t *testing.T) {
	t.Parallel()

	job := htmlJob()
	job.WaitFor = &WaitFor{Delay: intPtr(5000)}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewPipeline(nil).Run(ctx, &fakePage{}, job)
	require.ErrorIs(t, err, ErrRenderFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPipelineErrorKinds(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(nil).Run(context.Background(), &fakePage{loadErr: errors.New("boom")}, htmlJob())
	assert.ErrorIs(t, err, ErrRenderFailed)

	closed := fmtClosed()
	_, err = NewPipeline(nil).Run(context.Background(), &fakePage{loadErr: closed}, htmlJob())
	assert.ErrorIs(t, err, ErrEngineClosed)
	assert.NotErrorIs(t, err, ErrRenderFailed)

	_, err = NewPipeline(nil).Run(context.Background(), &fakePage{data: []byte{}}, htmlJob())
	assert.ErrorIs(t, err, ErrRenderFailed)

	job := htmlJob()
	job.Content.Kind = 0
	_, err = NewPipeline(nil).Run(context.Background(), &fakePage{}, job)
	assert.ErrorIs(t, err, ErrRenderFailed)
}

func fmtClosed() error {
	return errors.Join(errors.New("websocket: close 1006"), ErrEngineClosed)
}
