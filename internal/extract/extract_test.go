package extract

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/comic-crawler/internal/comic"
)

const pageURL = "https://www.penny-arcade.com/comic/1998/11/18/test"

func TestExtractMetadata(t *testing.T) {
	t.Parallel()

	html := `
<html>
<head><title>The SIN Of Long Load Times - Penny Arcade</title></head>
<body>
	<p class="details date">November 18, 1998</p>
	<div class="comic-area">
		<div class="comic-panel">
			<img src="https://assets.penny-arcade.com/comics/panels/test.jpg" alt="">
		</div>
	</div>
</body>
</html>`

	issue, err := New(nil).Extract([]byte(html), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "The SIN Of Long Load Times", issue.Title)
	assert.Equal(t, pageURL, issue.URL)
	require.NotNil(t, issue.PublicationDate)
	assert.True(t, time.Date(1998, time.November, 18, 0, 0, 0, 0, time.UTC).Equal(*issue.PublicationDate))
	assert.Equal(t, comic.Panels{"https://assets.penny-arcade.com/comics/panels/test.jpg"}, issue.PanelURLs)
}

func TestExtractTitleVariants(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		html string
		want string
	}{
		"no suffix": {`<html><head><title>Just A Title</title></head><body></body></html>`, "Just A Title"},
		"no title":  {`<html><body><p class="details date">November 18, 1998</p></body></html>`, "Untitled"},
		"padded":    {`<html><head><title>  Test Comic - Penny Arcade  </title></head></html>`, "Test Comic"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			issue, err := New(nil).Extract([]byte(tc.html), pageURL)
			require.NoError(t, err)
			assert.Equal(t, tc.want, issue.Title)
		})
	}
}

func TestExtractDateAbsentOrUnparseable(t *testing.T) {
	t.Parallel()

	issue, err := New(nil).Extract([]byte(`<html><head><title>Test Comic - Penny Arcade</title></head><body></body></html>`), pageURL)
	require.NoError(t, err)
	assert.Nil(t, issue.PublicationDate)

	core, logs := observer.New(zap.WarnLevel)
	issue, err = New(zap.New(core)).Extract([]byte(`<p class="details date">sometime in 1998</p>`), pageURL)
	require.NoError(t, err)
	assert.Nil(t, issue.PublicationDate)
	assert.Equal(t, 1, logs.FilterMessage("unparseable publication date").Len())
}

func TestPanelsThreePanelsPrefer2x(t *testing.T) {
	t.Parallel()

	html := `
<div class="comic-area">
	<a id="comic-panels" class="three-panel alt" href="/comic/1998/11/25/john-romero-artiste">
		<div class="comic-panel">
			<img src="https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p1.jpg"
				srcset="https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p1.jpg 1x,https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p1@2x.jpg 2x" alt="">
		</div>
		<div class="comic-panel">
			<img src="https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p2.jpg"
				srcset="https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p2.jpg 1x,https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p2@2x.jpg 2x" alt="">
		</div>
		<div class="comic-panel">
			<img src="https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p3.jpg"
				srcset="https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p3.jpg 1x,https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p3@2x.jpg 2x" alt="">
		</div>
	</a>
</div>`

	issue, err := New(nil).Extract([]byte(html), pageURL)
	require.NoError(t, err)
	assert.Equal(t, comic.Panels{
		"https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p1@2x.jpg",
		"https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p2@2x.jpg",
		"https://assets.penny-arcade.com/comics/panels/19981118-3eI0Y0JV-p3@2x.jpg",
	}, issue.PanelURLs)
}

func TestPanelsFallbacks(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		html string
		want comic.Panels
	}{
		"no srcset": {
			`<div class="comic-area">
				<div class="comic-panel"><img src="https://a/test-p1.jpg" alt=""></div>
				<div class="comic-panel"><img src="https://a/test-p2.jpg" alt=""></div>
			</div>`,
			comic.Panels{"https://a/test-p1.jpg", "https://a/test-p2.jpg"},
		},
		"srcset without 2x": {
			`<div class="comic-area"><div class="comic-panel"><img src="https://a/p1.jpg" srcset="https://a/p1.jpg 1x"></div></div>`,
			comic.Panels{"https://a/p1.jpg"},
		},
		"panel without img still counts": {
			`<div class="comic-area">
				<div class="comic-panel"><img src="https://a/p1.jpg"></div>
				<div class="comic-panel"><span>ad</span></div>
				<div class="comic-panel"><img src="https://a/p3.jpg"></div>
			</div>`,
			comic.Panels{"https://a/p1.jpg", "", "https://a/p3.jpg"},
		},
		"img without src": {
			`<div class="comic-area"><div class="comic-panel"><img alt="x"></div></div>`,
			comic.Panels{""},
		},
		"no comic area":      {`<div><p>Some other content</p></div>`, comic.Panels{}},
		"empty panels":       {`<div class="comic-area"><p>No panels here</p></div>`, comic.Panels{}},
		"panel outside area": {`<div class="comic-panel"><img src="https://a/p.jpg"></div>`, comic.Panels{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			issue, err := New(nil).Extract([]byte(tc.html), pageURL)
			require.NoError(t, err)
			assert.Equal(t, tc.want, issue.PanelURLs)
			assert.Equal(t, len(tc.want), issue.PanelURLs.Len())
		})
	}
}

func TestPanelsCappedAtLimit(t *testing.T) {
	t.Parallel()

	html := `<div class="comic-area">` +
		strings.Repeat(`<div class="comic-panel"><img src="https://a/p.jpg"></div>`, comic.MaxPanels+5) +
		`</div>`
	issue, err := New(nil).Extract([]byte(html), pageURL)
	require.NoError(t, err)
	assert.Equal(t, comic.MaxPanels, issue.PanelURLs.Len())
}

func TestExtractEmptyDocument(t *testing.T) {
	t.Parallel()

	for _, html := range []string{"", "   \n\t"} {
		_, err := New(nil).Extract([]byte(html), pageURL)
		require.True(t, errors.Is(err, ErrEmptyDocument), "got %v", err)
	}
}

func TestNextLink(t *testing.T) {
	t.Parallel()

	e := New(nil)

	href, ok, err := e.NextLink([]byte(`<a class="orange-btn older" href="/comic/old">Older</a><a class="orange-btn newer" href="/comic/1998/11/25/john-romero-artiste">Newer</a>`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/comic/1998/11/25/john-romero-artiste", href)

	_, ok, err = e.NextLink([]byte(`<a class="orange-btn older" href="/comic/old">Older</a>`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = e.NextLink([]byte(`<a class="orange-btn newer" href="">Newer</a>`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = e.NextLink(nil)
	require.ErrorIs(t, err, ErrEmptyDocument)
}
