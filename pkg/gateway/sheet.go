package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/config"
	"github.com/example/orderfunnel/pkg/models"
)

// SheetClient appends rows to the spreadsheet webapp. There is no update or
// delete; the sheet is an append-only log.
type SheetClient struct {
	cfg        *config.SheetsConfig
	logger     *zap.Logger
	httpClient *http.Client
}

func NewSheetClient(cfg *config.SheetsConfig, logger *zap.Logger) *SheetClient {
	return &SheetClient{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *SheetClient) AppendOrder(ctx context.Context, row models.OrderRow) error {
	return s.append(ctx, "orders", row)
}

func (s *SheetClient) AppendContact(ctx context.Context, contact models.Contact) error {
	return s.append(ctx, "contacts", contact)
}

func (s *SheetClient) append(ctx context.Context, sheet string, row interface{}) error {
	if s.cfg.WebAppURL == "" {
		return fmt.Errorf("sheet webapp url not configured")
	}

	payload := map[string]interface{}{
		"spreadsheet_id": s.cfg.SpreadsheetID,
		"sheet":          sheet,
		"row":            row,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebAppURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build append request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Error("sheet append failed",
			zap.String("sheet", sheet),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", respBody))
		return fmt.Errorf("append row: status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
