package downstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/log"
)

// BrokerAPI talks to the MQTT broker management API.
type BrokerAPI struct {
	http *resty.Client
	log  *log.Logger
}

var _ ConnectionCloser = (*BrokerAPI)(nil)

// NewBrokerAPI creates a management API client
func NewBrokerAPI(cfg *config.BrokerAPIConfig, logger *log.Logger) *BrokerAPI {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Accept", "application/json")
	if cfg.Username != "" {
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}
	return &BrokerAPI{http: client, log: logger}
}

// CloseConnection kicks each client. Unknown clients are skipped; transport
// failures are returned joined after every id was tried.
func (b *BrokerAPI) CloseConnection(ctx context.Context, clientIDs []string) (int, error) {
	closed := 0
	var errs []error
	for _, id := range clientIDs {
		if id == "" {
			continue
		}
		resp, err := b.http.R().
			SetContext(ctx).
			Delete("/api/v5/clients/" + url.PathEscape(id))
		if err != nil {
			errs = append(errs, fmt.Errorf("close client %s: %w", id, err))
			continue
		}
		switch resp.StatusCode() {
		case http.StatusOK, http.StatusNoContent:
			closed++
		case http.StatusNotFound:
			b.log.Debug("Client %s is not connected", id)
		default:
			errs = append(errs, fmt.Errorf("close client %s: unexpected status %d", id, resp.StatusCode()))
		}
	}
	if closed > 0 {
		b.log.Info("Closed %d of %d client connections", closed, len(clientIDs))
	}
	return closed, errors.Join(errs...)
}
