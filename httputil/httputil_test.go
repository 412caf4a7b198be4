// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2026 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package httputil_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	. "gopkg.in/check.v1"
	"gopkg.in/retry.v1"

	"github.com/backpork/backpork/httputil"
	"github.com/backpork/backpork/logger"
	"github.com/backpork/backpork/testutil"
)

func Test(t *testing.T) { TestingT(t) }

type retrySuite struct{}

var _ = Suite(&retrySuite{})

var testRetryStrategy = retry.LimitCount(5, retry.LimitTime(1*time.Second,
	retry.Exponential{
		Initial: 1 * time.Millisecond,
		Factor:  1,
	},
))

func decodeInto(got *interface{}, failure *bool) func(resp *http.Response) error {
	return func(resp *http.Response) error {
		*failure = false
		if resp.StatusCode != 200 {
			*failure = true
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(got)
	}
}

func (s *retrySuite) TestRetryRequestOnEOF(c *C) {
	n := 0
	var mockServer *httptest.Server
	mockServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		if n < 4 {
			io.WriteString(w, "{")
			mockServer.CloseClientConnections()
			return
		}
		io.WriteString(w, `{"ok": true}`)
	}))
	defer mockServer.Close()

	cli := httputil.NewHTTPClient(nil)
	doRequest := func() (*http.Response, error) {
		return cli.Get(mockServer.URL)
	}

	failure := false
	var got interface{}
	_, err := httputil.RetryRequest("endp", doRequest, decodeInto(&got, &failure), testRetryStrategy)
	c.Assert(err, IsNil)

	c.Assert(failure, Equals, false)
	c.Check(got, DeepEquals, map[string]interface{}{"ok": true})
	c.Assert(n, Equals, 4)
}

func (s *retrySuite) TestRetryRequestFailWithEOF(c *C) {
	n := 0
	var mockServer *httptest.Server
	mockServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		io.WriteString(w, "{")
		mockServer.CloseClientConnections()
	}))
	defer mockServer.Close()

	cli := httputil.NewHTTPClient(nil)
	doRequest := func() (*http.Response, error) {
		return cli.Get(mockServer.URL)
	}

	failure := false
	var got interface{}
	_, err := httputil.RetryRequest("endp", doRequest, decodeInto(&got, &failure), testRetryStrategy)
	c.Assert(err, NotNil)
	c.Check(err, ErrorMatches, `.*EOF$`)
	c.Check(failure, Equals, false)
	c.Assert(n, Equals, 5)
}

func (s *retrySuite) TestRetryRequestOn500(c *C) {
	n := 0
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		if n < 4 {
			w.WriteHeader(500)
			return
		}
		io.WriteString(w, `{"ok": true}`)
	}))
	defer mockServer.Close()

	cli := httputil.NewHTTPClient(nil)
	doRequest := func() (*http.Response, error) {
		return cli.Get(mockServer.URL)
	}

	failure := false
	var got interface{}
	_, err := httputil.RetryRequest("endp", doRequest, decodeInto(&got, &failure), testRetryStrategy)
	c.Assert(err, IsNil)
	c.Assert(failure, Equals, false)
	c.Check(got, DeepEquals, map[string]interface{}{"ok": true})
	c.Assert(n, Equals, 4)
}

func (s *retrySuite) TestRetryRequestFailOn500(c *C) {
	n := 0
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		w.WriteHeader(500)
	}))
	defer mockServer.Close()

	cli := httputil.NewHTTPClient(nil)
	doRequest := func() (*http.Response, error) {
		return cli.Get(mockServer.URL)
	}

	failure := false
	var got interface{}
	resp, err := httputil.RetryRequest("endp", doRequest, decodeInto(&got, &failure), testRetryStrategy)
	c.Assert(err, IsNil)
	c.Assert(resp.StatusCode, Equals, 500)
	c.Check(failure, Equals, true)
	c.Assert(n, Equals, 5)
}

func (s *retrySuite) TestRetryDoesNotRetryNotFound(c *C) {
	n := 0
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		w.WriteHeader(404)
	}))
	defer mockServer.Close()

	cli := httputil.NewHTTPClient(nil)
	doRequest := func() (*http.Response, error) {
		return cli.Get(mockServer.URL)
	}

	failure := false
	var got interface{}
	resp, err := httputil.RetryRequest("endp", doRequest, decodeInto(&got, &failure), testRetryStrategy)
	c.Assert(err, IsNil)
	c.Check(resp.StatusCode, Equals, 404)
	c.Check(n, Equals, 1)
}

func (s *retrySuite) TestShouldRetryError(c *C) {
	c.Check(httputil.ShouldRetryError(io.EOF), Equals, true)
	c.Check(httputil.ShouldRetryError(io.ErrUnexpectedEOF), Equals, true)
	c.Check(httputil.ShouldRetryError(os.ErrPermission), Equals, false)
}

type clientSuite struct{}

var _ = Suite(&clientSuite{})

func (s *clientSuite) TestClientSetsUserAgent(c *C) {
	defer httputil.MockUserAgent("backpork-test")()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.UserAgent(), Equals, "backpork-test")
		called = true
	}))
	defer srv.Close()

	cli := httputil.NewHTTPClient(nil)
	resp, err := cli.Get(srv.URL)
	c.Assert(err, IsNil)
	resp.Body.Close()
	c.Check(called, Equals, true)
}

func (s *clientSuite) TestClientStopsAfterTenRedirects(c *C) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/again", http.StatusFound)
	}))
	defer srv.Close()

	cli := httputil.NewHTTPClient(&httputil.ClientOptions{Timeout: 5 * time.Second})
	_, err := cli.Get(srv.URL)
	c.Check(err, ErrorMatches, ".*stopped after 10 redirects")
}

func (s *clientSuite) TestLoggedTransportDumps(c *C) {
	logbuf, restore := logger.MockDebugLogger()
	defer restore()
	os.Setenv(httputil.DebugEnvKey, "3")
	defer os.Unsetenv(httputil.DebugEnvKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Patch", "yes")
		io.WriteString(w, "BPS1")
	}))
	defer srv.Close()

	cli := httputil.NewHTTPClient(nil)
	resp, err := cli.Get(srv.URL + "/patches/1.00/libSceAgc.bps")
	c.Assert(err, IsNil)
	resp.Body.Close()

	c.Check(logbuf.String(), testutil.Contains, `> "GET /patches/1.00/libSceAgc.bps`)
	c.Check(logbuf.String(), testutil.Contains, `X-Patch: yes`)
}

func (s *clientSuite) TestLoggedTransportQuietByDefault(c *C) {
	logbuf, restore := logger.MockDebugLogger()
	defer restore()
	os.Unsetenv(httputil.DebugEnvKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	resp, err := httputil.NewHTTPClient(nil).Get(srv.URL)
	c.Assert(err, IsNil)
	resp.Body.Close()
	c.Check(logbuf.String(), Equals, "")
}
