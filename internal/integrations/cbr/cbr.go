package cbr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Dan9191/balance-planner/internal/repository"
	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const cacheKey = "cbr:key_rate"

// CBRClient fetches the Central Bank of Russia key rate used as the annual rate of a plan
type CBRClient struct {
	url    string
	margin decimal.Decimal
	cache  repository.Cache
	ttl    time.Duration
	client *http.Client
	log    *logrus.Logger
	now    func() time.Time
}

// NewCBRClient initializes a new CBR client. margin is added to the published rate, in percent.
func NewCBRClient(url string, margin float64, cache repository.Cache, ttl time.Duration, log *logrus.Logger) *CBRClient {
	return &CBRClient{
		url:    url,
		margin: decimal.NewFromFloat(margin),
		cache:  cache,
		ttl:    ttl,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
		now: time.Now,
	}
}

// buildSOAPRequest creates a SOAP request for the last 30 days of key rates
func (c *CBRClient) buildSOAPRequest() string {
	now := c.now()
	fromDate := now.AddDate(0, 0, -30).Format("2006-01-02")
	toDate := now.Format("2006-01-02")
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
			<soap12:Body>
				<KeyRate xmlns="http://web.cbr.ru/">
					<fromDate>%s</fromDate>
					<ToDate>%s</ToDate>
				</KeyRate>
			</soap12:Body>
		</soap12:Envelope>`, fromDate, toDate)
}

// sendRequest sends a SOAP request to CBR
func (c *CBRClient) sendRequest(ctx context.Context, soapRequest string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString(soapRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://web.cbr.ru/KeyRate")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debugf("CBR XML response: %s", string(body))
	return body, nil
}

// parseXMLResponse extracts the latest key rate from the response
func parseXMLResponse(rawBody []byte) (decimal.Decimal, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse XML: %w", err)
	}

	krElements := doc.FindElements("//diffgram/KeyRate/KR")
	if len(krElements) == 0 {
		return decimal.Zero, fmt.Errorf("no key rate data found in XML")
	}

	// the service lists the newest rate first
	rateElement := krElements[0].FindElement("./Rate")
	if rateElement == nil {
		return decimal.Zero, fmt.Errorf("rate element not found in XML")
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(rateElement.Text()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse rate: %w", err)
	}
	return rate, nil
}

// GetKeyRate returns the key rate plus the bank margin, in percent, serving from the cache when it is fresh
func (c *CBRClient) GetKeyRate(ctx context.Context) (decimal.Decimal, error) {
	if cached, ok, err := c.cache.Get(ctx, cacheKey); err != nil {
		c.log.WithError(err).Warn("Key rate cache unavailable")
	} else if ok {
		if rate, err := decimal.NewFromString(cached); err == nil {
			return rate, nil
		}
	}
	return c.Refresh(ctx)
}

// Refresh fetches the key rate from CBR and stores it in the cache
func (c *CBRClient) Refresh(ctx context.Context) (decimal.Decimal, error) {
	body, err := c.sendRequest(ctx, c.buildSOAPRequest())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch key rate: %w", err)
	}
	rate, err := parseXMLResponse(body)
	if err != nil {
		return decimal.Zero, err
	}
	rate = rate.Add(c.margin)

	if err := c.cache.Set(ctx, cacheKey, rate.String(), c.ttl); err != nil {
		c.log.WithError(err).Warn("Failed to cache key rate")
	}
	c.log.Infof("Retrieved key rate: %s%% (including %s%% bank margin)", rate.StringFixed(2), c.margin.StringFixed(2))
	return rate, nil
}
