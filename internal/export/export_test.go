package export

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclast/docfill/internal/errors"
)

type fakeStrategy struct {
	name   string
	canRun bool
	err    error
	calls  int
	seen   string
}

func (f *fakeStrategy) Name() string { return f.name }
func (f *fakeStrategy) CanRun(context.Context) bool { return f.canRun }
func (f *fakeStrategy) Run(_ context.Context, job *Job) (*Result, error) {
	f.calls++
	f.seen = job.HTML
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Data: []byte("%PDF-1.3"), Pages: 1}, nil
}

func TestCheckContent(t *testing.T) {
	for _, content := range []string{"", "   \n", "<p></p>", "  <p></p>\n"} {
		err := CheckContent(content)
		require.Error(t, err, "%q", content)
		assert.True(t, errors.HasCode(err, errors.ErrCodeEmptyContent))
	}
	assert.NoError(t, CheckContent("<p>x</p>"))
}

func TestEmptyContentNeverReachesStrategies(t *testing.T) {
	primary := &fakeStrategy{name: Rasterize, canRun: true}
	fallback := &fakeStrategy{name: Print, canRun: true}
	p := NewPipeline([]Strategy{primary, fallback})

	_, err := p.Export(context.Background(), &Job{HTML: "<p></p>"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeEmptyContent))
	assert.Zero(t, primary.calls)
	assert.Zero(t, fallback.calls)
}

func TestFallbackRunsPrintOnce(t *testing.T) {
	primary := &fakeStrategy{name: Rasterize, canRun: true, err: fmt.Errorf("capture failed")}
	fallback := &fakeStrategy{name: Print, canRun: true}
	p := NewPipeline([]Strategy{primary, fallback})

	res, err := p.Export(context.Background(), &Job{Title: "NDA", Filename: "nda", HTML: "<h1>NDA</h1>"})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, Print, res.Strategy)
	assert.Equal(t, "nda.pdf", res.Filename)
	assert.Equal(t, ContentTypePDF, res.ContentType)
}

func TestPrimarySuccessSkipsFallback(t *testing.T) {
	primary := &fakeStrategy{name: Structured, canRun: true}
	fallback := &fakeStrategy{name: Print, canRun: true}
	p := NewPipeline([]Strategy{primary, fallback})

	res, err := p.Export(context.Background(), &Job{HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, Structured, res.Strategy)
	assert.Zero(t, fallback.calls)
	assert.Equal(t, "document.pdf", res.Filename)
}

func TestUnavailableStrategyIsSkipped(t *testing.T) {
	primary := &fakeStrategy{name: Rasterize, canRun: false}
	fallback := &fakeStrategy{name: Print, canRun: true}
	p := NewPipeline([]Strategy{primary, fallback})

	_, err := p.Export(context.Background(), &Job{HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.Zero(t, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestAllStrategiesFail(t *testing.T) {
	primary := &fakeStrategy{name: Rasterize, canRun: true, err: fmt.Errorf("boom")}
	fallback := &fakeStrategy{name: Print, canRun: true, err: fmt.Errorf("no printer")}
	p := NewPipeline([]Strategy{primary, fallback})

	_, err := p.Export(context.Background(), &Job{HTML: "<p>x</p>"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeExportFailed))
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "no printer")
}

func TestStrategiesSeeSanitizedContent(t *testing.T) {
	primary := &fakeStrategy{name: Rasterize, canRun: true}
	p := NewPipeline([]Strategy{primary})

	in := `<p>Party: <span class="locked-field-node" data-field-name="party" data-field-value="Acme" contenteditable="false">🔒 Acme</span></p>`
	_, err := p.Export(context.Background(), &Job{HTML: in})
	require.NoError(t, err)
	assert.NotContains(t, primary.seen, "locked-field-node")
	assert.NotContains(t, primary.seen, "🔒")
	assert.Contains(t, primary.seen, "Acme")
}

func TestScriptsNeverReachStrategies(t *testing.T) {
	primary := &fakeStrategy{name: Rasterize, canRun: true}
	p := NewPipeline([]Strategy{primary})

	in := `<p>Edited</p><script>fetch("http://169.254.169.254/latest/meta-data/")</script><img src=x onerror="alert(1)">`
	_, err := p.Export(context.Background(), &Job{HTML: in})
	require.NoError(t, err)
	assert.Contains(t, primary.seen, "<p>Edited</p>")
	assert.NotContains(t, primary.seen, "<script")
	assert.NotContains(t, primary.seen, "169.254.169.254")
	assert.NotContains(t, primary.seen, "onerror")
}

func TestStrictExportAllowsMarkerNamesInText(t *testing.T) {
	primary := &fakeStrategy{name: Rasterize, canRun: true}
	p := NewPipeline([]Strategy{primary})

	in := `<p>Use fef3c7 for highlights and keep data-field-name in the schema.</p>`
	_, err := p.Export(context.Background(), &Job{HTML: in})
	require.NoError(t, err)
	assert.Contains(t, primary.seen, "data-field-name in the schema")
}

func TestNoStrategies(t *testing.T) {
	_, err := NewPipeline(nil).Export(context.Background(), &Job{HTML: "<p>x</p>"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeExportFailed))
}

func TestHTMLDownload(t *testing.T) {
	p := NewPipeline(nil)
	res, err := p.HTMLDownload(&Job{Title: "NDA", Filename: "nda", HTML: "<h1>NDA</h1>"})
	require.NoError(t, err)
	assert.Equal(t, HTML, res.Strategy)
	assert.Equal(t, "nda.html", res.Filename)
	assert.Contains(t, string(res.Data), "<title>NDA</title>")
	assert.Contains(t, string(res.Data), "<h1>NDA</h1>")

	_, err = p.HTMLDownload(&Job{HTML: " "})
	assert.True(t, errors.HasCode(err, errors.ErrCodeEmptyContent))
}

func TestExportWithPinsOneStrategy(t *testing.T) {
	primary := &fakeStrategy{name: Rasterize, canRun: true}
	fallback := &fakeStrategy{name: Print, canRun: true, err: fmt.Errorf("print failed")}
	p := NewPipeline([]Strategy{primary, fallback})

	_, err := p.ExportWith(context.Background(), &Job{HTML: "<p>x</p>"}, Print)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeExportFailed))
	assert.Zero(t, primary.calls, "no fallback to the primary")
	assert.Equal(t, 1, fallback.calls)

	_, err = p.ExportWith(context.Background(), &Job{HTML: "<p>x</p>"}, Structured)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	res, err := p.ExportWith(context.Background(), &Job{HTML: "<p>x</p>"}, "")
	require.NoError(t, err)
	assert.Equal(t, Rasterize, res.Strategy)
}
