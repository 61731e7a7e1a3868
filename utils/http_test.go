package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopify-catalog-scraper/internal/types"
)

func testConfig() *types.Config {
	config := types.DefaultConfig()
	config.RequestDelay = 10 * time.Millisecond
	config.MaxRetries = 1
	return config
}

func TestNewHTTPClient(t *testing.T) {
	config := types.DefaultConfig()
	logger := logrus.New()

	client := NewHTTPClient(config, logger)

	assert.NotNil(t, client)
	assert.Equal(t, config, client.config)
	assert.NotNil(t, client.client)
	assert.NotNil(t, client.limiter)

	client.Close()
}

func TestHTTPClient_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test response"))
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(), logrus.New())
	defer client.Close()

	body, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "test response", string(body))
}

func TestHTTPClient_Get_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(), logrus.New())
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 404")
}

func TestHTTPClient_Get_ContextCancelled(t *testing.T) {
	config := types.DefaultConfig()
	config.RequestDelay = 100 * time.Millisecond
	client := NewHTTPClient(config, logrus.New())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "http://example.com")

	assert.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}

func TestHTTPClient_PostForm_KeepsCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code_client") != "C42" || r.PostForm.Get("_token") != "abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "ok", Path: "/"})
		w.Write([]byte("welcome"))
	})
	mux.HandleFunc("/catalogue", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("sid")
		if err != nil || c.Value != "ok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("catalogue"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewHTTPClient(testConfig(), logrus.New())
	defer client.Close()
	ctx := context.Background()

	body, _, err := client.PostForm(ctx, server.URL+"/login", map[string]string{"code_client": "C42", "_token": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "welcome", string(body))

	body, err = client.Get(ctx, server.URL+"/catalogue")
	require.NoError(t, err)
	assert.Equal(t, "catalogue", string(body))
}

func TestHTTPClient_SetCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("PHPSESSID")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(c.Value))
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(), logrus.New())
	defer client.Close()

	client.SetCookies(server.URL, []*http.Cookie{{Name: "PHPSESSID", Value: "from-browser", Path: "/"}})

	body, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "from-browser", string(body))
	assert.Len(t, client.Cookies(server.URL), 1)
}

func TestHTTPPage_FollowsLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a class="next" href="/list?page=` + "2" + `">next</a> page ` + r.URL.Query().Get("page")))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewHTTPClient(testConfig(), logrus.New())
	defer client.Close()
	page := NewHTTPPage(client)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, server.URL+"/list"))
	require.NoError(t, page.Click(ctx, types.Control{Selector: "a.next", Href: "/list?page=2"}))

	html, err := page.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "page 2")

	current, err := page.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/list?page=2", current)

	err = page.Click(ctx, types.Control{Selector: "li.next a", Href: "javascript:void(0)"})
	assert.ErrorIs(t, err, types.ErrUnsupported)
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "https://shop.test/products/A1,/", ResolveURL("https://shop.test/home", "/products/A1,/"))
	assert.Equal(t, "https://cdn.test/x.jpg", ResolveURL("https://shop.test/a/b", "https://cdn.test/x.jpg"))
	assert.Equal(t, "https://shop.test/a/c", ResolveURL("https://shop.test/a/b", "c"))
}

func TestHTTPClient_Close(t *testing.T) {
	client := NewHTTPClient(types.DefaultConfig(), logrus.New())

	// Should not panic
	client.Close()
}
