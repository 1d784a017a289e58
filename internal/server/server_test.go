package server_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blockadesystems/serve/internal/model"
	"github.com/blockadesystems/serve/internal/server"
	"github.com/blockadesystems/serve/internal/testutils"
)

var siteFiles = map[string]string{
	"index.html":               "<h1>home</h1>",
	"app/dashboard/index.html": "<h1>dashboard</h1>",
	"css/site.css":             "body{}",
	"docs/readme.txt":          "read me",
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_IndexFallback(t *testing.T) {
	root := testutils.NewSite(t, siteFiles)
	s := server.New(testutils.NewServerConfig(t, root), nil, zaptest.NewLogger(t))

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"client route resolves to its index", "/app/dashboard", "<h1>dashboard</h1>"},
		{"trailing slash", "/app/dashboard/", "<h1>dashboard</h1>"},
		{"site root", "/", "<h1>home</h1>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s.Handler(), tt.target)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestHandler_StaticFiles(t *testing.T) {
	root := testutils.NewSite(t, siteFiles)
	s := server.New(testutils.NewServerConfig(t, root), nil, zaptest.NewLogger(t))

	rec := get(t, s.Handler(), "/css/site.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	assert.Equal(t, "body{}", rec.Body.String())

	rec = get(t, s.Handler(), "/docs/readme.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "read me", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandler_NotFoundIsPreserved(t *testing.T) {
	root := testutils.NewSite(t, siteFiles)
	s := server.New(testutils.NewServerConfig(t, root), nil, zaptest.NewLogger(t))

	plain := get(t, s.Handler(), "/definitely/missing")
	require.Equal(t, http.StatusNotFound, plain.Code)

	for _, target := range []string{"/app/missing", "/docs", "/docs/", "/../../etc/passwd"} {
		rec := get(t, s.Handler(), target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, plain.Body.String(), rec.Body.String(), target)
		assert.Equal(t, plain.Header().Get("Content-Type"), rec.Header().Get("Content-Type"), target)
	}
}

func TestHandler_RequestsRecordActivity(t *testing.T) {
	root := testutils.NewSite(t, siteFiles)
	s := server.New(testutils.NewServerConfig(t, root), nil, nil)

	s.Activity().TouchAt(time.Now().Add(-time.Hour))
	get(t, s.Handler(), "/definitely/missing")
	assert.Less(t, s.Activity().IdleFor(time.Now()), time.Minute, "even a 404 counts as activity")
}

func TestServer_ShutsDownWhenIdle(t *testing.T) {
	root := testutils.NewSite(t, siteFiles)
	cfg := testutils.NewServerConfig(t, root)
	cfg.IdleTimeout = 300 * time.Millisecond

	var opened []string
	s := server.New(cfg, nil, zaptest.NewLogger(t),
		server.WithPollInterval(20*time.Millisecond),
		server.WithBrowser(func(url string) error {
			opened = append(opened, url)
			return errors.New("no display")
		}),
	)
	require.NoError(t, s.Listen())
	port := s.Addr().(*net.TCPAddr).Port

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()

	resp, err := http.Get("http://localhost:" + strconv.Itoa(port) + "/app/dashboard")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>dashboard</h1>", string(body))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after the idle timeout")
	}
	assert.Equal(t, server.WatchdogShuttingDown, s.Watchdog().State())
	assert.Equal(t, []string{"http://localhost:" + strconv.Itoa(port) + "/"}, opened, "browser failure is not fatal")

	_, err = net.DialTimeout("tcp", s.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err, "listener should be closed")
}

func TestServer_ServesTLSWithRecord(t *testing.T) {
	record := testutils.Certificate(t)
	root := testutils.NewSite(t, siteFiles)
	s := server.New(testutils.NewServerConfig(t, root), record, zaptest.NewLogger(t))
	require.NoError(t, s.Listen())
	assert.Contains(t, s.URL(), "https://localhost:")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	pool := x509.NewCertPool()
	pool.AddCert(record.Certificate)
	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}},
	}
	resp, err := client.Get(s.URL())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>home</h1>", string(body))
	require.NotNil(t, resp.TLS)
	assert.Equal(t, record.Certificate.Raw, resp.TLS.PeerCertificates[0].Raw)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
	assert.Equal(t, server.WatchdogRunning, s.Watchdog().State())
}

func TestServer_ConcurrentRequests(t *testing.T) {
	root := testutils.NewSite(t, siteFiles)
	s := server.New(testutils.NewServerConfig(t, root), nil, nil)
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	targets := []string{"/", "/app/dashboard", "/css/site.css", "/missing"}
	want := []int{http.StatusOK, http.StatusOK, http.StatusOK, http.StatusNotFound}

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Get(s.URL() + targets[i%len(targets)][1:])
			if err != nil {
				errs <- err
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode != want[i%len(want)] {
				errs <- errors.New(resp.Request.URL.Path + ": unexpected status " + resp.Status)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	cancel()
	require.NoError(t, <-done)
}

func TestServer_ListenFailures(t *testing.T) {
	root := testutils.NewSite(t, siteFiles)

	t.Run("port in use", func(t *testing.T) {
		taken, err := net.Listen("tcp", "localhost:0")
		require.NoError(t, err)
		defer taken.Close()

		cfg := testutils.NewServerConfig(t, root)
		cfg.Port = taken.Addr().(*net.TCPAddr).Port
		err = server.New(cfg, nil, nil).Run(context.Background())
		assert.ErrorIs(t, err, server.ErrListen)
	})

	t.Run("record without key", func(t *testing.T) {
		s := server.New(testutils.NewServerConfig(t, root), &model.CertificateRecord{}, nil)
		assert.ErrorIs(t, s.Listen(), server.ErrCertificate)
		assert.Nil(t, s.Addr())
	})

	t.Run("serve before listen", func(t *testing.T) {
		s := server.New(testutils.NewServerConfig(t, root), nil, nil)
		assert.Error(t, s.Serve(context.Background()))
	})
}
