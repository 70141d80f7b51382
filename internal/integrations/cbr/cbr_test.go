package cbr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dan9191/balance-planner/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyRateResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Body>
    <KeyRateResponse xmlns="http://web.cbr.ru/">
      <KeyRateResult>
        <diffgr:diffgram xmlns:msdata="urn:schemas-microsoft-com:xml-msdata" xmlns:diffgr="urn:schemas-microsoft-com:xml-diffgram-v1">
          <KeyRate xmlns="">
            <KR diffgr:id="KR1" msdata:rowOrder="0">
              <DT>2026-10-17T00:00:00+03:00</DT>
              <Rate>16.50</Rate>
            </KR>
            <KR diffgr:id="KR2" msdata:rowOrder="1">
              <DT>2026-10-16T00:00:00+03:00</DT>
              <Rate>17.00</Rate>
            </KR>
          </KeyRate>
        </diffgr:diffgram>
      </KeyRateResult>
    </KeyRateResponse>
  </soap:Body>
</soap:Envelope>`

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestGetKeyRate_AddsMarginAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "http://web.cbr.ru/KeyRate", r.Header.Get("SOAPAction"))
		_, _ = w.Write([]byte(keyRateResponse))
	}))
	defer srv.Close()

	c := NewCBRClient(srv.URL, 5, repository.NewMemoryCache(), time.Hour, quietLogger())

	rate, err := c.GetKeyRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "21.5", rate.String())

	rate, err = c.GetKeyRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "21.5", rate.String())
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetKeyRate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: ""},
		{name: "not xml", status: http.StatusOK, body: "rate: 16"},
		{name: "no rows", status: http.StatusOK, body: `<diffgram><KeyRate></KeyRate></diffgram>`},
		{name: "bad rate", status: http.StatusOK, body: `<diffgram><KeyRate><KR><Rate>n/a</Rate></KR></KeyRate></diffgram>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewCBRClient(srv.URL, 0, repository.NewMemoryCache(), time.Hour, quietLogger())
			_, err := c.GetKeyRate(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestBuildSOAPRequest_Window(t *testing.T) {
	c := NewCBRClient("http://unused", 0, repository.NewMemoryCache(), 0, quietLogger())
	c.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	req := c.buildSOAPRequest()
	assert.Contains(t, req, "<fromDate>2026-09-19</fromDate>")
	assert.Contains(t, req, "<ToDate>2026-10-19</ToDate>")
}
