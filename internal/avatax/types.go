package avatax

// Document types accepted by the tax service. SalesOrder and ReturnOrder are
// estimates; the Invoice variants are recordable documents.
const (
	DocTypeSalesOrder    = "SalesOrder"
	DocTypeSalesInvoice  = "SalesInvoice"
	DocTypeReturnOrder   = "ReturnOrder"
	DocTypeReturnInvoice = "ReturnInvoice"
)

// IsReturnDocType reports whether the document type selects the refund branch
// of the line builder.
func IsReturnDocType(docType string) bool {
	return docType == DocTypeReturnInvoice || docType == DocTypeReturnOrder
}

// TransactionLine is one row of a GetTax request. Field names and casing are a
// fixed wire contract with the tax service. Discounted and TaxIncluded are
// pointers so that refund-style lines omit them entirely.
type TransactionLine struct {
	LineNo            string  `json:"LineNo"`
	Description       string  `json:"Description"`
	TaxCode           string  `json:"TaxCode,omitempty"`
	ItemCode          string  `json:"ItemCode"`
	Qty               int     `json:"Qty"`
	Amount            float64 `json:"Amount"`
	OriginCode        string  `json:"OriginCode"`
	DestinationCode   string  `json:"DestinationCode"`
	CustomerUsageType string  `json:"CustomerUsageType"`
	Discounted        *bool   `json:"Discounted,omitempty"`
	TaxIncluded       *bool   `json:"TaxIncluded,omitempty"`
}

// Address identifies an origin or destination for jurisdiction lookup.
type Address struct {
	AddressCode string `json:"AddressCode"`
	Line1       string `json:"Line1,omitempty"`
	Line2       string `json:"Line2,omitempty"`
	City        string `json:"City,omitempty"`
	Region      string `json:"Region,omitempty"`
	Country     string `json:"Country,omitempty"`
	PostalCode  string `json:"PostalCode,omitempty"`
}

// GetTaxRequest is the payload for POST /1.0/tax/get.
type GetTaxRequest struct {
	CompanyCode       string            `json:"CompanyCode"`
	DocCode           string            `json:"DocCode"`
	DocType           string            `json:"DocType"`
	DocDate           string            `json:"DocDate"`
	CustomerCode      string            `json:"CustomerCode"`
	CustomerUsageType string            `json:"CustomerUsageType,omitempty"`
	Commit            bool              `json:"Commit"`
	Discount          float64           `json:"Discount,omitempty"`
	Addresses         []Address         `json:"Addresses"`
	Lines             []TransactionLine `json:"Lines"`
}

// TaxLine is the per-line detail echoed back by the tax service.
type TaxLine struct {
	LineNo  string `json:"LineNo"`
	TaxCode string `json:"TaxCode"`
	Taxable string `json:"Taxable"`
	Rate    string `json:"Rate"`
	Tax     string `json:"Tax"`
}

// Message carries diagnostic detail on non-success results.
type Message struct {
	Summary string `json:"Summary"`
	Details string `json:"Details"`
	Source  string `json:"Source"`
}

// GetTaxResult is the response of POST /1.0/tax/get.
type GetTaxResult struct {
	DocCode       string    `json:"DocCode"`
	ResultCode    string    `json:"ResultCode"`
	TotalAmount   string    `json:"TotalAmount"`
	TotalTax      string    `json:"TotalTax"`
	TotalDiscount string    `json:"TotalDiscount"`
	TaxLines      []TaxLine `json:"TaxLines"`
	Messages      []Message `json:"Messages,omitempty"`
}

// CancelCode values for POST /1.0/tax/cancel.
const (
	CancelCodeDocVoided  = "DocVoided"
	CancelCodeDocDeleted = "DocDeleted"
)

// CancelTaxRequest is the payload for POST /1.0/tax/cancel.
type CancelTaxRequest struct {
	CompanyCode string `json:"CompanyCode"`
	DocCode     string `json:"DocCode"`
	DocType     string `json:"DocType"`
	CancelCode  string `json:"CancelCode"`
}

// CancelTaxResult is the response of POST /1.0/tax/cancel.
type CancelTaxResult struct {
	ResultCode    string    `json:"ResultCode"`
	TransactionID string    `json:"TransactionId"`
	Messages      []Message `json:"Messages,omitempty"`
}

// ResultSuccess is the ResultCode the service returns on success.
const ResultSuccess = "Success"
