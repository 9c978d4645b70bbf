package ordershttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/DriverTrack/internal/models"
	"github.com/pkg/errors"
)

var ErrOrderNotFound = errors.New("order not found")

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type respDriver struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type respDelivery struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Status *int    `json:"status"`
}

type respBody struct {
	Driver   *respDriver   `json:"driver"`
	Delivery *respDelivery `json:"delivery"`
}

func (c *Client) GetDriverLocation(ctx context.Context, businessOrderID string) (models.DriverLocation, error) {
	if businessOrderID == "" {
		return models.DriverLocation{}, errors.New("businessOrderId is required")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.DriverLocation{}, errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/v1/orders/%s/driver-location", url.PathEscape(businessOrderID))
	q := u.Query()
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.DriverLocation{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.DriverLocation{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.DriverLocation{}, errors.Wrapf(ErrOrderNotFound, "business order %s", businessOrderID)
	}
	if resp.StatusCode/100 != 2 {
		return models.DriverLocation{}, fmt.Errorf("order service http %d", resp.StatusCode)
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return models.DriverLocation{}, errors.Wrap(err, "decode")
	}

	var out models.DriverLocation
	if rb.Driver != nil {
		out.Driver = &models.DriverInfo{Name: rb.Driver.Name, Lat: rb.Driver.Lat, Lng: rb.Driver.Lng}
	}
	if rb.Delivery != nil {
		out.Delivery = &models.DeliveryInfo{Lat: rb.Delivery.Lat, Lng: rb.Delivery.Lng, Status: rb.Delivery.Status}
	}
	return out, nil
}
