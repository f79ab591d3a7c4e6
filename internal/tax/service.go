package tax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/storelens/avatax-bridge/internal/avatax"
	"github.com/storelens/avatax-bridge/internal/order"
)

// ErrDocumentCommitDisabled is returned when a final commit is requested while
// document committing is switched off.
var ErrDocumentCommitDisabled = errors.New("document committing disabled")

// Client is the outbound tax service surface the transaction service depends on.
type Client interface {
	GetTax(ctx context.Context, req avatax.GetTaxRequest) (avatax.GetTaxResult, error)
	CancelTax(ctx context.Context, req avatax.CancelTaxRequest) (avatax.CancelTaxResult, error)
}

// OrderLoader assembles order aggregates and refunds. *order.Repo satisfies it.
type OrderLoader interface {
	LoadOrder(ctx context.Context, id int64) (*order.Order, error)
	LoadRefund(ctx context.Context, id int64) (*order.Refund, error)
	RefundOrderID(ctx context.Context, refundID int64) (int64, error)
}

// Service coordinates line building, tax service calls, caching and recording.
type Service struct {
	Orders      OrderLoader
	Client      Client
	Store       *Store
	Cache       *Cache
	CompanyCode string
	Origin      avatax.Address

	// TaxCalculation gates every outbound GetTax; when false all flows
	// return a zero-tax result without calling out.
	TaxCalculation bool
	// DocumentCommit gates committed documents (final invoices and returns).
	DocumentCommit bool

	Logger zerolog.Logger
	Now    func() time.Time
}

// Estimate computes tax for the order without recording a document. Results
// are cached per request fingerprint.
func (s *Service) Estimate(ctx context.Context, orderID int64) (avatax.GetTaxResult, error) {
	o, err := s.Orders.LoadOrder(ctx, orderID)
	if err != nil {
		return avatax.GetTaxResult{}, err
	}
	if !s.TaxCalculation {
		return zeroResult(o.Number), nil
	}
	req := s.buildRequest(o, avatax.DocTypeSalesOrder, nil, false)

	key := EstimateKey(orderID, req)
	var cached avatax.GetTaxResult
	if hit, err := s.Cache.Get(ctx, key, &cached); err != nil {
		s.Logger.Warn().Err(err).Int64("order_id", orderID).Msg("estimate cache read failed")
	} else if hit {
		return cached, nil
	}

	res, err := s.call(ctx, o.ID, "get", req)
	if err != nil {
		return avatax.GetTaxResult{}, err
	}
	if err := s.Cache.Set(ctx, key, res); err != nil {
		s.Logger.Warn().Err(err).Int64("order_id", orderID).Msg("estimate cache write failed")
	}
	return res, nil
}

// Commit records a sales invoice with the tax service without finalising it.
func (s *Service) Commit(ctx context.Context, orderID int64) (avatax.GetTaxResult, error) {
	o, err := s.Orders.LoadOrder(ctx, orderID)
	if err != nil {
		return avatax.GetTaxResult{}, err
	}
	if !s.TaxCalculation {
		return zeroResult(o.Number), nil
	}
	req := s.buildRequest(o, avatax.DocTypeSalesInvoice, nil, false)
	res, err := s.call(ctx, o.ID, "get", req)
	if err != nil {
		return avatax.GetTaxResult{}, err
	}
	if err := s.record(ctx, o.ID, req, res, StatusRecorded); err != nil {
		return avatax.GetTaxResult{}, err
	}
	return res, nil
}

// CommitFinal records and finalises the sales invoice. The document-commit
// flag must be on; callers decide whether that is an error worth surfacing.
func (s *Service) CommitFinal(ctx context.Context, orderID int64) (avatax.GetTaxResult, error) {
	if !s.DocumentCommit {
		return avatax.GetTaxResult{}, ErrDocumentCommitDisabled
	}
	o, err := s.Orders.LoadOrder(ctx, orderID)
	if err != nil {
		return avatax.GetTaxResult{}, err
	}
	if !s.TaxCalculation {
		return zeroResult(o.Number), nil
	}
	req := s.buildRequest(o, avatax.DocTypeSalesInvoice, nil, true)
	res, err := s.call(ctx, o.ID, "get", req)
	if err != nil {
		return avatax.GetTaxResult{}, err
	}
	if err := s.record(ctx, o.ID, req, res, StatusCommitted); err != nil {
		return avatax.GetTaxResult{}, err
	}
	return res, nil
}

// CaptureReturn submits a return invoice for the refund. The refund's order is
// resolved first so the line builder sees the full aggregate.
func (s *Service) CaptureReturn(ctx context.Context, refundID int64) (avatax.GetTaxResult, error) {
	orderID, err := s.Orders.RefundOrderID(ctx, refundID)
	if err != nil {
		return avatax.GetTaxResult{}, err
	}
	o, err := s.Orders.LoadOrder(ctx, orderID)
	if err != nil {
		return avatax.GetTaxResult{}, err
	}
	refund, err := s.Orders.LoadRefund(ctx, refundID)
	if err != nil {
		return avatax.GetTaxResult{}, err
	}
	if !s.TaxCalculation {
		return zeroResult(o.Number), nil
	}
	// Return documents only finalise when document committing is on.
	req := s.buildRequest(o, avatax.DocTypeReturnInvoice, refund, s.DocumentCommit)
	req.DocCode = o.Number + "." + strconv.FormatInt(refund.ID, 10)
	res, err := s.call(ctx, o.ID, "get", req)
	if err != nil {
		return avatax.GetTaxResult{}, err
	}
	status := StatusRecorded
	if s.DocumentCommit {
		status = StatusCommitted
	}
	if err := s.record(ctx, o.ID, req, res, status); err != nil {
		return avatax.GetTaxResult{}, err
	}
	return res, nil
}

// Cancel voids (or deletes) the order's recorded document with the tax service.
func (s *Service) Cancel(ctx context.Context, orderID int64, cancelCode string) (avatax.CancelTaxResult, error) {
	tx, err := s.Store.GetByOrder(ctx, orderID)
	if err != nil {
		return avatax.CancelTaxResult{}, err
	}
	if cancelCode == "" {
		cancelCode = avatax.CancelCodeDocVoided
	}
	req := avatax.CancelTaxRequest{
		CompanyCode: s.CompanyCode,
		DocCode:     tx.DocCode,
		DocType:     tx.DocType,
		CancelCode:  cancelCode,
	}
	res, err := s.Client.CancelTax(ctx, req)
	if err != nil {
		return avatax.CancelTaxResult{}, err
	}
	if err := s.Store.SetStatus(ctx, orderID, StatusVoided); err != nil {
		return avatax.CancelTaxResult{}, err
	}
	s.logEvent(ctx, orderID, "cancel", req, res)
	return res, nil
}

// LastTransaction returns the recorded transaction for the order, if any.
func (s *Service) LastTransaction(ctx context.Context, orderID int64) (Transaction, error) {
	return s.Store.GetByOrder(ctx, orderID)
}

func (s *Service) buildRequest(o *order.Order, docType string, refund *order.Refund, commit bool) avatax.GetTaxRequest {
	origin := s.Origin
	origin.AddressCode = "Orig"
	dest := avatax.Address{
		AddressCode: "Dest",
		Line1:       o.ShipAddress.Line1,
		City:        o.ShipAddress.City,
		Region:      o.ShipAddress.Region,
		Country:     o.ShipAddress.Country,
		PostalCode:  o.ShipAddress.PostalCode,
	}
	return avatax.GetTaxRequest{
		CompanyCode:       s.CompanyCode,
		DocCode:           o.Number,
		DocType:           docType,
		DocDate:           s.now().Format("2006-01-02"),
		CustomerCode:      o.Number,
		CustomerUsageType: o.CustomerUsageType,
		Commit:            commit,
		Addresses:         []avatax.Address{origin, dest},
		Lines:             avatax.BuildLines(o, docType, refund),
	}
}

func (s *Service) call(ctx context.Context, orderID int64, op string, req avatax.GetTaxRequest) (avatax.GetTaxResult, error) {
	res, err := s.Client.GetTax(ctx, req)
	if err != nil {
		s.Logger.Error().Err(err).Int64("order_id", orderID).Str("doc_type", req.DocType).Msg("tax service call failed")
		return avatax.GetTaxResult{}, err
	}
	s.logEvent(ctx, orderID, op, req, res)
	return res, nil
}

func (s *Service) record(ctx context.Context, orderID int64, req avatax.GetTaxRequest, res avatax.GetTaxResult, status string) error {
	totalTax, err := decimal.NewFromString(res.TotalTax)
	if err != nil {
		return fmt.Errorf("parse total tax %q: %w", res.TotalTax, err)
	}
	tx := Transaction{
		OrderID:  orderID,
		DocCode:  req.DocCode,
		DocType:  req.DocType,
		TotalTax: totalTax,
		Status:   status,
	}
	// First document for the order inserts; a re-commit replaces it.
	_, err = s.Store.Create(ctx, tx)
	if errors.Is(err, ErrTransactionExists) {
		_, err = s.Store.Upsert(ctx, tx)
	}
	return err
}

// logEvent is best-effort: a failed audit write never fails the calculation.
func (s *Service) logEvent(ctx context.Context, orderID int64, op string, req, res any) {
	if s.Store == nil {
		return
	}
	reqJSON, _ := json.Marshal(req)
	resJSON, _ := json.Marshal(res)
	if err := s.Store.LogEvent(ctx, orderID, op, reqJSON, resJSON); err != nil {
		s.Logger.Warn().Err(err).Int64("order_id", orderID).Msg("tax event log failed")
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func zeroResult(docCode string) avatax.GetTaxResult {
	return avatax.GetTaxResult{
		DocCode:    docCode,
		ResultCode: avatax.ResultSuccess,
		TotalTax:   "0.00",
	}
}
