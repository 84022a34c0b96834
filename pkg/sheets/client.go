// Package sheets wraps the Google Sheets v4 API for reading availability
// grids and keeping the record-keeping spreadsheet in step with bookings.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/AnatolyKozmin/Shend/pkg/config"
)

// Client is a retrying Sheets API client authenticated with a service account.
type Client struct {
	svc        *sheets.Service
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// New reads service-account credentials and builds a client.
func New(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*Client, error) {
	raw, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(raw, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		svc:        svc,
		timeout:    cfg.RequestTimeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}, nil
}

// ReadRange returns the formatted cell values of an A1 range. Trailing empty
// cells are omitted by the API, so rows may be ragged.
func (c *Client) ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	var resp *sheets.ValueRange
	err := c.withRetries(ctx, "read "+rng, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
			ValueRenderOption("FORMATTED_VALUE").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return stringify(resp.Values), nil
}

// AppendRow appends one row below the last filled row of sheet.
func (c *Client) AppendRow(ctx context.Context, spreadsheetID, sheet string, row []string) error {
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	body := &sheets.ValueRange{Values: [][]interface{}{values}}
	return c.withRetries(ctx, "append "+sheet, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.Append(spreadsheetID, QuoteSheet(sheet), body).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
}

// WriteCell overwrites a single cell.
func (c *Client) WriteCell(ctx context.Context, spreadsheetID, sheet string, col, row int, value string) error {
	rng := Range(sheet, col, row, col, row)
	body := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	return c.withRetries(ctx, "write "+rng, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, rng, body).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
}

func (c *Client) withRetries(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := c.maxRetries
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx := ctx
		cancel := func() {}
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !Retryable(err) || attempt == attempts {
			break
		}
		c.logger.Sugar().Warnw("sheets call failed, retrying", "op", op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("sheets %s: %w", op, ctx.Err())
		case <-time.After(c.retryDelay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("sheets %s: %w", op, err)
}

// Retryable reports whether a Sheets call failure is transient.
func Retryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func stringify(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, cell := range row {
			if cell == nil {
				continue
			}
			cells[j] = fmt.Sprint(cell)
		}
		out[i] = cells
	}
	return out
}
