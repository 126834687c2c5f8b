package cbr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/microfin/internal/config"
	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"
)

// lenderMargin is added on top of the central bank key rate.
const lenderMargin = 5.0

// CBRClient fetches the Central Bank of Russia key rate used to price microcredits
type CBRClient struct {
	url    string
	client *http.Client
	log    *logrus.Logger
	now    func() time.Time
}

// NewCBRClient initializes a new CBR client
func NewCBRClient(cfg *config.Config, log *logrus.Logger) *CBRClient {
	return &CBRClient{
		url: cfg.CBRURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
		now: time.Now,
	}
}

func (c *CBRClient) buildSOAPRequest() string {
	to := c.now()
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
			<soap12:Body>
				<KeyRate xmlns="http://web.cbr.ru/">
					<fromDate>%s</fromDate>
					<ToDate>%s</ToDate>
				</KeyRate>
			</soap12:Body>
		</soap12:Envelope>`, to.AddDate(0, 0, -30).Format("2006-01-02"), to.Format("2006-01-02"))
}

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

// parseXMLResponse returns the rate of the most recent KR record
func parseXMLResponse(rawBody []byte) (float64, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return 0, fmt.Errorf("failed to parse XML: %w", err)
	}

	records := doc.FindElements("//diffgram/KeyRate/KR")
	if len(records) == 0 {
		return 0, fmt.Errorf("no key rate data found in XML")
	}

	var (
		latestDate string
		latestRate string
	)
	for _, kr := range records {
		rate := kr.FindElement("./Rate")
		if rate == nil {
			continue
		}
		date := ""
		if dt := kr.FindElement("./DT"); dt != nil {
			date = strings.TrimSpace(dt.Text())
		}
		// DT is ISO-8601, so lexical order is chronological.
		if latestRate == "" || date > latestDate {
			latestDate, latestRate = date, strings.TrimSpace(rate.Text())
		}
	}
	if latestRate == "" {
		return 0, fmt.Errorf("rate element not found in XML")
	}

	rate, err := strconv.ParseFloat(latestRate, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rate %q: %w", latestRate, err)
	}
	return rate, nil
}

// GetKeyRate retrieves the current key rate and adds the lender margin
func (c *CBRClient) GetKeyRate(ctx context.Context) (float64, error) {
	body, err := c.sendRequest(ctx, c.buildSOAPRequest())
	if err != nil {
		return 0, err
	}
	rate, err := parseXMLResponse(body)
	if err != nil {
		return 0, err
	}
	rate += lenderMargin

	c.log.Infof("Retrieved key rate: %.2f%% (including %.2f%% margin)", rate, lenderMargin)
	return rate, nil
}
