package pool

import (
	"context"
	"encoding/csv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"poolwatch/internal/extract"
	"poolwatch/internal/model"
)

// DefaultRootURL is the pool operator's public web root.
const DefaultRootURL = "https://ocean.xyz"

// Dashboard label substrings matched case-insensitively against extracted
// container labels.
const (
	labelEstimated = "estimated rewards in window"
	labelLifetime  = "lifetime earnings"
	labelUnpaid    = "unpaid earnings"
)

// Client fetches earnings data from the pool's dashboard and CSV export.
type Client struct {
	http *resty.Client
}

// ClientConfig holds client settings.
type ClientConfig struct {
	RootURL string
	Timeout time.Duration
}

// NewClient builds a pool client. An explicit request timeout is always
// set; scraping an uncontrolled remote without one risks a wedged cycle.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = DefaultRootURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(cfg.RootURL)
	httpClient.SetTimeout(cfg.Timeout)

	return &Client{http: httpClient}
}

// FetchSnapshot reads the account's dashboard page and produces one balance
// snapshot. The snapshot time is the wall clock at the call, not a value
// scraped from the page. Missing labels surface as IncompleteDataError.
func (c *Client) FetchSnapshot(ctx context.Context, account string) (model.EarningSnapshot, error) {
	path := "/stats/" + account

	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return model.EarningSnapshot{}, &FetchError{URL: c.http.BaseURL + path, Err: err}
	}
	if resp.StatusCode() != 200 {
		return model.EarningSnapshot{}, &FetchError{URL: c.http.BaseURL + path, Status: resp.StatusCode()}
	}

	values := extract.Extract(resp.String())

	var estimated, lifetime, unpaid int64
	var haveEstimated, haveLifetime, haveUnpaid bool
	for label, value := range values {
		lower := strings.ToLower(label)
		switch {
		case strings.Contains(lower, labelEstimated):
			if estimated, err = Sats(value); err != nil {
				return model.EarningSnapshot{}, err
			}
			haveEstimated = true
		case strings.Contains(lower, labelLifetime):
			if lifetime, err = Sats(value); err != nil {
				return model.EarningSnapshot{}, err
			}
			haveLifetime = true
		case strings.Contains(lower, labelUnpaid):
			if unpaid, err = Sats(value); err != nil {
				return model.EarningSnapshot{}, err
			}
			haveUnpaid = true
		}
	}

	var missing []string
	if !haveEstimated {
		missing = append(missing, labelEstimated)
	}
	if !haveLifetime {
		missing = append(missing, labelLifetime)
	}
	if !haveUnpaid {
		missing = append(missing, labelUnpaid)
	}
	if len(missing) > 0 {
		return model.EarningSnapshot{}, &IncompleteDataError{Missing: missing}
	}

	// Paid is derived, not scraped. It can go negative if the remote
	// lifetime/unpaid figures are inconsistent; passed through unclamped.
	return model.EarningSnapshot{
		Time:            time.Now().UTC().Unix(),
		Estimated:       estimated,
		AccountedUnpaid: unpaid,
		AccountedPaid:   lifetime - unpaid,
	}, nil
}

// FetchBlockEarnings reads the account's CSV earnings export. The endpoint
// requires a bodyless POST. Records are returned in file order, which the
// remote emits newest-first; callers wanting chronological order must sort.
func (c *Client) FetchBlockEarnings(ctx context.Context, account string) ([]model.BlockEarning, error) {
	path := "/data/csv/" + account + "/earnings"

	resp, err := c.http.R().SetContext(ctx).Post(path)
	if err != nil {
		return nil, &FetchError{URL: c.http.BaseURL + path, Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &FetchError{URL: c.http.BaseURL + path, Status: resp.StatusCode()}
	}

	return parseEarningsCSV(resp.String())
}

// parseEarningsCSV parses the row-oriented export. The header row is
// skipped; rows with fewer than 5 fields are dropped as trailing noise.
// Field layout: timestamp, block hash, _, _, earned amount, optional fee.
func parseEarningsCSV(body string) ([]model.BlockEarning, error) {
	reader := csv.NewReader(strings.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{Input: "earnings csv", Err: err}
	}

	earnings := make([]model.BlockEarning, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) < 5 {
			continue
		}

		ts, err := Timestamp(row[0])
		if err != nil {
			return nil, err
		}
		earned, err := Sats(row[4])
		if err != nil {
			return nil, err
		}
		poolFee := int64(0)
		if len(row) >= 6 {
			if poolFee, err = Sats(row[5]); err != nil {
				return nil, err
			}
		}

		earnings = append(earnings, model.BlockEarning{
			Time:       ts,
			BlockHash:  row[1],
			EarnedSats: earned,
			PoolFee:    poolFee,
		})
	}

	return earnings, nil
}
