package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/comic-crawler/internal/comic"
	"github.com/JakeFAU/comic-crawler/internal/extract"
)

const first = "https://www.penny-arcade.com/comic/1998/11/18/the-sin-of-long-load-times"

type fakePages struct {
	pages map[string]string
	err   error
	calls []string
}

func (f *fakePages) FetchPage(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.pages[url]), nil
}

func newResolver(t *testing.T, pages *fakePages) *Resolver {
	t.Helper()
	r, err := New(pages, extract.New(nil), Config{BaseURL: "https://www.penny-arcade.com", FirstIssueURL: first}, nil)
	require.NoError(t, err)
	return r
}

func TestNextEmptyStoreReturnsBootstrap(t *testing.T) {
	t.Parallel()

	pages := &fakePages{}
	next, ok, err := newResolver(t, pages).Next(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first, next)
	assert.Empty(t, pages.calls)
}

func TestNextCaughtUp(t *testing.T) {
	t.Parallel()

	latest := &comic.Issue{ID: 1, URL: "https://www.penny-arcade.com/comic/2024/01/01/latest"}
	pages := &fakePages{pages: map[string]string{
		latest.URL: `<html><a class="orange-btn older" href="/comic/old">Older</a></html>`,
	}}

	next, ok, err := newResolver(t, pages).Next(context.Background(), latest)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, next)
}

func TestNextResolvesRelativeAndAbsolute(t *testing.T) {
	t.Parallel()

	latest := &comic.Issue{ID: 1, URL: first}
	cases := map[string]string{
		"/comic/1998/11/25/john-romero-artiste":                             "https://www.penny-arcade.com/comic/1998/11/25/john-romero-artiste",
		"https://www.penny-arcade.com/comic/1998/11/25/john-romero-artiste": "https://www.penny-arcade.com/comic/1998/11/25/john-romero-artiste",
	}
	for href, want := range cases {
		pages := &fakePages{pages: map[string]string{
			first: `<a class="orange-btn newer" href="` + href + `">Newer</a>`,
		}}
		next, ok, err := newResolver(t, pages).Next(context.Background(), latest)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, next)
	}
}

func TestNextFetchFailureIsNotCaughtUp(t *testing.T) {
	t.Parallel()

	pages := &fakePages{err: comic.ErrFetch}
	_, ok, err := newResolver(t, pages).Next(context.Background(), &comic.Issue{ID: 1, URL: first})
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, comic.ErrFetch))
}

func TestNextLatestWithoutURL(t *testing.T) {
	t.Parallel()

	pages := &fakePages{}
	_, ok, err := newResolver(t, pages).Next(context.Background(), &comic.Issue{ID: 9})
	require.ErrorIs(t, err, ErrMissingURL)
	assert.False(t, ok)
	assert.Empty(t, pages.calls)
}

func TestNextEmptyLatestPage(t *testing.T) {
	t.Parallel()

	pages := &fakePages{pages: map[string]string{}}
	_, _, err := newResolver(t, pages).Next(context.Background(), &comic.Issue{ID: 1, URL: first})
	require.ErrorIs(t, err, extract.ErrEmptyDocument)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(&fakePages{}, extract.New(nil), Config{BaseURL: "not-absolute", FirstIssueURL: first}, nil)
	require.Error(t, err)
	_, err = New(&fakePages{}, extract.New(nil), Config{BaseURL: "https://x"}, nil)
	require.Error(t, err)
	_, err = New(nil, extract.New(nil), Config{BaseURL: "https://x", FirstIssueURL: first}, nil)
	require.Error(t, err)
}
