package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOpts(retries int) HTTPOptions {
	return HTTPOptions{
		Timeout:     2 * time.Second,
		MaxRetries:  retries,
		InitBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}
}

func TestSerperSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tokyo hotels", body["q"])
		assert.EqualValues(t, 2, body["num"])

		w.Write([]byte(`{"organic":[
			{"title":"A","link":"https://a.com","snippet":"first"},
			{"title":"B","link":"https://b.com","snippet":"second"},
			{"title":"C","link":"https://c.com","snippet":"third"}
		]}`))
	}))
	defer srv.Close()

	s, err := NewSerper("secret", srv.URL, fastOpts(0))
	require.NoError(t, err)
	assert.Equal(t, "serper", s.Name())

	res, err := s.Search(context.Background(), "tokyo hotels", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, WebResult{Content: "first", Link: "https://a.com", Title: "A"}, res[0])
}

func TestSerperRequiresKey(t *testing.T) {
	_, err := NewSerper(" ", "", HTTPOptions{})
	assert.Error(t, err)
}

func TestBraveSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "tok", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "kyoto temples", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		w.Write([]byte(`{"web":{"results":[{"title":"T","url":"https://t.com","description":"  temples  "}]}}`))
	}))
	defer srv.Close()

	b, err := NewBrave("tok", srv.URL, fastOpts(0))
	require.NoError(t, err)
	res, err := b.Search(context.Background(), "kyoto temples", 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "temples", res[0].Content)
	assert.Equal(t, "https://t.com", res[0].Link)
}

const ddgPage = `<html><body><table>
<tr><td><a rel="nofollow" href="https://osaka.example/food" class="result-link">Osaka <b>Food</b></a></td></tr>
<tr><td class="result-snippet">Street food in
   Dotonbori.</td></tr>
<tr><td><a href="https://osaka.example/castle" class="result-link">Castle</a></td></tr>
<tr><td class="result-snippet">Osaka castle hours.</td></tr>
</table></body></html>`

func TestDuckDuckGoSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "osaka food", r.PostForm.Get("q"))
		w.Write([]byte(ddgPage))
	}))
	defer srv.Close()

	d := NewDuckDuckGo(srv.URL, fastOpts(0))
	res, err := d.Search(context.Background(), "osaka food", 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, WebResult{Content: "Street food in Dotonbori.", Link: "https://osaka.example/food", Title: "Osaka Food"}, res[0])
	assert.Equal(t, "Castle", res[1].Title)

	res, err = d.Search(context.Background(), "osaka food", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestWebRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"organic":[{"title":"A","link":"https://a.com","snippet":"ok"}]}`))
	}))
	defer srv.Close()

	s, err := NewSerper("k", srv.URL, fastOpts(3))
	require.NoError(t, err)
	res, err := s.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestWebDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	s, err := NewSerper("k", srv.URL, fastOpts(3))
	require.NoError(t, err)
	_, err = s.Search(context.Background(), "q", 5)
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestNewWebSearcher(t *testing.T) {
	for _, p := range []string{"serper", "brave", "duckduckgo"} {
		ws, err := NewWebSearcher(p, "key", "", HTTPOptions{})
		require.NoError(t, err, p)
		assert.Equal(t, p, ws.Name())
	}
	_, err := NewWebSearcher("altavista", "", "", HTTPOptions{})
	assert.Error(t, err)
}
